package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sendhelp/internal/database"
	"sendhelp/internal/engine"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

type fakeObligations struct {
	mu       sync.Mutex
	overdue  map[obligation.Status][]models.Obligation
	cutoffs  map[obligation.Status]time.Time
	timedOut []string
	disputed []string
	failOn   string
	calls    int
}

func (f *fakeObligations) Overdue(_ context.Context, status obligation.Status, cutoff time.Time, _ int) ([]models.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.cutoffs == nil {
		f.cutoffs = map[obligation.Status]time.Time{}
	}
	f.cutoffs[status] = cutoff
	return f.overdue[status], nil
}

func (f *fakeObligations) Timeout(_ context.Context, id string) (*models.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failOn {
		return nil, errors.New("database is gone")
	}
	f.timedOut = append(f.timedOut, id)
	return &models.Obligation{ID: id, Status: obligation.StatusTimeout}, nil
}

func (f *fakeObligations) DisputeLapsed(_ context.Context, id string) (*models.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "raced" {
		return nil, fmt.Errorf("%w: dispute from confirmed", obligation.ErrInvalidTransition)
	}
	f.disputed = append(f.disputed, id)
	return &models.Obligation{ID: id, Status: obligation.StatusDisputed}, nil
}

func (f *fakeObligations) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweepOnceUsesWindows(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeObligations{overdue: map[obligation.Status][]models.Obligation{
		obligation.StatusPending:        {{ID: "a"}, {ID: "b"}, {ID: "broken"}},
		obligation.StatusProofSubmitted: {{ID: "c"}, {ID: "raced"}},
	}, failOn: "broken"}

	s := NewSweeper(fake, nil, time.Minute, 24*time.Hour, 48*time.Hour)
	s.Now = func() time.Time { return now }

	res := s.SweepOnce(context.Background())
	assert.Equal(t, SweepResult{TimedOut: 2, Disputed: 1, Failed: 1}, res)
	assert.Equal(t, []string{"a", "b"}, fake.timedOut)
	assert.Equal(t, []string{"c"}, fake.disputed)
	assert.Equal(t, now.Add(-24*time.Hour), fake.cutoffs[obligation.StatusPending])
	assert.Equal(t, now.Add(-48*time.Hour), fake.cutoffs[obligation.StatusProofSubmitted])
}

func TestSweepOnceSkipsDisabledWindows(t *testing.T) {
	fake := &fakeObligations{}
	s := NewSweeper(fake, nil, time.Minute, 0, 0)
	assert.Equal(t, SweepResult{}, s.SweepOnce(context.Background()))
	assert.Zero(t, fake.callCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeObligations{}
	s := NewSweeper(fake, nil, 5*time.Millisecond, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fake.callCount() >= 4 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweepAgainstStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.ConnectSQLite("file:sweep_store?mode=memory&cache=shared", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }
	e := engine.New(db, engine.Options{Now: clock})
	ctx := context.Background()

	receiver := &models.Member{ExternalID: "R", ReferralCode: "ref_R", Level: level.Tier1, IsActivated: true}
	sender := &models.Member{ExternalID: "S", ReferralCode: "ref_S", Level: level.Tier1}
	require.NoError(t, db.Create(receiver).Error)
	require.NoError(t, db.Create(sender).Error)

	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	s := NewSweeper(e, nil, time.Minute, time.Hour, time.Hour)
	s.Now = clock

	assert.Equal(t, SweepResult{}, s.SweepOnce(ctx))

	now = start.Add(2 * time.Hour)
	assert.Equal(t, SweepResult{TimedOut: 1}, s.SweepOnce(ctx))

	stored, err := e.Obligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusTimeout, stored.Status)

	_, err = e.Assign(ctx, sender.ID)
	require.NoError(t, err)
}
