package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sendhelp/internal/block"
	"sendhelp/internal/eligibility"
	"sendhelp/internal/level"
	"sendhelp/internal/lock"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

// plan is what an assignment will create once a receiver is found.
type plan struct {
	kind       obligation.Kind
	level      level.Level
	amount     int
	blockPoint int
}

// Assign creates a help obligation from senderID to a selected receiver at
// the sender's level. ErrNoReceiverAvailable is an expected outcome; callers
// try again on a later trigger.
func (e *Engine) Assign(ctx context.Context, senderID uint) (*models.Obligation, error) {
	return e.assign(ctx, senderID, obligation.KindHelp)
}

// AssignUnblockPayment creates the upgrade or sponsor obligation that lifts
// the member's current block point. Upgrade payments go to a receiver at the
// next level, sponsor payments to one at the member's own level.
func (e *Engine) AssignUnblockPayment(ctx context.Context, memberID uint) (*models.Obligation, error) {
	return e.assign(ctx, memberID, "")
}

func (e *Engine) assign(ctx context.Context, senderID uint, kind obligation.Kind) (*models.Obligation, error) {
	started := time.Now()
	label := string(kind)
	if label == "" {
		label = "unblock"
	}

	ob, err := e.assignLocked(ctx, senderID, kind)
	e.metrics.assignDuration.Observe(time.Since(started).Seconds())
	e.metrics.assignments.WithLabelValues(label, outcome(err)).Inc()

	switch {
	case err == nil:
		e.logger.Info("obligation assigned",
			"obligation_id", ob.ID, "kind", ob.Kind, "sender_id", ob.SenderID,
			"receiver_id", ob.ReceiverID, "level", ob.Level.String(), "amount", ob.Amount)
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrAlreadyPending),
		errors.Is(err, ErrNoReceiverAvailable), errors.Is(err, ErrNotBlocked):
		e.logger.Debug("assignment refused", "sender_id", senderID, "kind", label, "reason", err)
	default:
		e.logger.Error("assignment failed", "sender_id", senderID, "kind", label, "error", err)
	}
	return ob, err
}

func (e *Engine) assignLocked(ctx context.Context, senderID uint, kind obligation.Kind) (*models.Obligation, error) {
	release, err := e.locker.Acquire(ctx, fmt.Sprintf("assign:%d", senderID), e.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrAlreadyPending
	}
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		ob, err := e.tryAssign(ctx, senderID, kind)
		if err == nil || !retryable(err) {
			return ob, err
		}
		e.metrics.assignAttempts.Inc()
		e.logger.Debug("assignment attempt lost a race, retrying",
			"sender_id", senderID, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts", ErrTransactionConflict, e.maxAttempts)
}

// tryAssign is one attempt: pure reads up to the final transaction, so a
// failure before commit leaves nothing behind.
func (e *Engine) tryAssign(ctx context.Context, senderID uint, kind obligation.Kind) (*models.Obligation, error) {
	sender, err := e.member(ctx, e.db, senderID)
	if err != nil {
		return nil, err
	}

	p, err := planFor(sender, kind)
	if err != nil {
		return nil, err
	}

	var active models.ActiveObligation
	err = e.db.WithContext(ctx).Where("sender_id = ?", senderID).Limit(1).Find(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check open obligation: %w", err)
	}
	if active.ObligationID != "" {
		return nil, ErrAlreadyPending
	}

	receiver, err := e.SelectReceiver(ctx, senderID, p.level)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ErrNoReceiverAvailable
	}

	created := e.clock.Next()
	ob := &models.Obligation{
		ID:                 ObligationID(receiver.ID, sender.ID, created),
		Kind:               p.kind,
		Level:              p.level,
		Amount:             p.amount,
		BlockPoint:         p.blockPoint,
		SenderID:           sender.ID,
		SenderExternalID:   sender.ExternalID,
		SenderName:         sender.Name,
		ReceiverID:         receiver.ID,
		ReceiverExternalID: receiver.ExternalID,
		ReceiverName:       receiver.Name,
		Status:             obligation.StatusPending,
		Version:            1,
		CreatedAt:          created,
		UpdatedAt:          created,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ActiveObligation{
			SenderID:     sender.ID,
			ObligationID: ob.ID,
			CreatedAt:    created,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to claim sender: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyPending
		}

		var fresh models.Member
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&fresh, receiver.ID).Error; err != nil {
			return fmt.Errorf("failed to lock receiver: %w", err)
		}
		if fresh.Level != p.level || !eligibility.CanReceive(&fresh).Eligible {
			return errReceiverSaturated
		}
		limit, err := block.ReceiveLimit(&fresh)
		if err != nil {
			return err
		}
		load, err := receiverLoad(ctx, tx, fresh.ID, p.level)
		if err != nil {
			return err
		}
		if fresh.HelpReceived+load >= limit {
			return errReceiverSaturated
		}

		if err := tx.Create(ob).Error; err != nil {
			return fmt.Errorf("failed to create obligation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ob, nil
}

// planFor checks the sender and works out level and amount. An empty kind
// means an unblock payment whose kind follows the block point.
func planFor(sender *models.Member, kind obligation.Kind) (plan, error) {
	def, err := level.Lookup(sender.Level)
	if err != nil {
		return plan{}, fmt.Errorf("member %d: %w", sender.ID, err)
	}

	if kind == obligation.KindHelp {
		if d := eligibility.CanSend(sender); !d.Eligible {
			return plan{}, &NotEligibleError{Reason: d.Reason}
		}
		return plan{kind: kind, level: def.Level, amount: def.Amount}, nil
	}

	if d := eligibility.CanSendUnblockPayment(sender); !d.Eligible {
		return plan{}, &NotEligibleError{Reason: d.Reason}
	}
	payment := block.RequiredPaymentToUnblock(sender)
	if payment == nil {
		return plan{}, ErrNotBlocked
	}
	p := plan{
		kind:       obligation.KindSponsor,
		level:      def.Level,
		amount:     payment.Amount,
		blockPoint: payment.BlockPoint,
	}
	if payment.Type == level.PaymentUpgrade {
		p.kind = obligation.KindUpgrade
		if next, ok := level.Next(def.Level); ok {
			p.level = next
		}
	}
	return p, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrAlreadyPending):
		return "already_pending"
	case errors.Is(err, ErrNoReceiverAvailable):
		return "no_receiver"
	case errors.Is(err, ErrNotBlocked):
		return "not_blocked"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	case errors.Is(err, ErrUnknownLevel):
		return "unknown_level"
	}
	return "error"
}
