package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

const sweepBatch = 100

// Obligations is the part of the engine the sweeper drives.
type Obligations interface {
	Overdue(ctx context.Context, status obligation.Status, cutoff time.Time, limit int) ([]models.Obligation, error)
	Timeout(ctx context.Context, id string) (*models.Obligation, error)
	DisputeLapsed(ctx context.Context, id string) (*models.Obligation, error)
}

// Sweeper closes obligations whose policy window ran out. A pending
// obligation with no proof after ProofWindow times out and frees its sender.
// Submitted proof that the receiver never answered within ConfirmWindow is
// disputed so an administrator can resolve it.
type Sweeper struct {
	Obligations   Obligations
	Logger        *slog.Logger
	Interval      time.Duration
	ProofWindow   time.Duration
	ConfirmWindow time.Duration
	Now           func() time.Time
}

// SweepResult counts what one pass changed.
type SweepResult struct {
	TimedOut int
	Disputed int
	Failed   int
}

func NewSweeper(obs Obligations, logger *slog.Logger, interval, proofWindow, confirmWindow time.Duration) *Sweeper {
	return &Sweeper{
		Obligations:   obs,
		Logger:        logger,
		Interval:      interval,
		ProofWindow:   proofWindow,
		ConfirmWindow: confirmWindow,
	}
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Run sweeps once right away and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger().Info("obligation sweeper started", "interval", interval)
	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger().Info("obligation sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass over both windows.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	var res SweepResult
	now := s.now()

	if s.ProofWindow > 0 {
		s.sweep(ctx, obligation.StatusPending, now.Add(-s.ProofWindow), s.Obligations.Timeout, &res.TimedOut, &res.Failed)
	}
	if s.ConfirmWindow > 0 {
		s.sweep(ctx, obligation.StatusProofSubmitted, now.Add(-s.ConfirmWindow), s.Obligations.DisputeLapsed, &res.Disputed, &res.Failed)
	}

	if res.TimedOut+res.Disputed+res.Failed > 0 {
		s.logger().Info("sweep finished",
			"timed_out", res.TimedOut, "disputed", res.Disputed, "failed", res.Failed)
	}
	return res
}

func (s *Sweeper) sweep(
	ctx context.Context,
	status obligation.Status,
	cutoff time.Time,
	apply func(context.Context, string) (*models.Obligation, error),
	done, failed *int,
) {
	overdue, err := s.Obligations.Overdue(ctx, status, cutoff, sweepBatch)
	if err != nil {
		s.logger().Error("failed to query overdue obligations", "status", status, "error", err)
		return
	}
	for _, ob := range overdue {
		if ctx.Err() != nil {
			return
		}
		if _, err := apply(ctx, ob.ID); err != nil {
			// Someone else moved it first; nothing left to do.
			if errors.Is(err, obligation.ErrInvalidTransition) {
				continue
			}
			*failed++
			s.logger().Error("failed to close overdue obligation", "obligation_id", ob.ID, "status", status, "error", err)
			continue
		}
		*done++
	}
}
