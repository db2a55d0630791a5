package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sendhelp/internal/block"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

// Proof is what a sender attaches to show the payment was made.
type Proof struct {
	Method        string `json:"method"`
	Reference     string `json:"reference"`
	ScreenshotRef string `json:"screenshot_ref,omitempty"`
}

// SubmitProof moves a pending obligation to proof_submitted. Only the sender
// may attach proof.
func (e *Engine) SubmitProof(ctx context.Context, id string, senderID uint, proof Proof) (*models.Obligation, error) {
	proof.Method = strings.TrimSpace(proof.Method)
	proof.Reference = strings.TrimSpace(proof.Reference)
	if proof.Method == "" || proof.Reference == "" {
		return nil, fmt.Errorf("%w: proof needs a method and a reference", ErrInvalidInput)
	}
	return e.transition(ctx, id, obligation.EventSubmitProof,
		func(ob *models.Obligation) error {
			if ob.SenderID != senderID {
				return ErrNotParticipant
			}
			return nil
		},
		func(ob *models.Obligation, updates map[string]any) {
			now := e.now()
			updates["proof_method"] = proof.Method
			updates["proof_reference"] = proof.Reference
			updates["proof_screenshot_ref"] = proof.ScreenshotRef
			updates["proof_submitted_at"] = now
		})
}

// Confirm records the receiver's confirmation. It is the only path, besides
// ForceConfirm, that counts a help for the receiver.
func (e *Engine) Confirm(ctx context.Context, id string, receiverID uint) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventConfirm,
		func(ob *models.Obligation) error {
			if ob.ReceiverID != receiverID {
				return ErrNotParticipant
			}
			return nil
		},
		func(ob *models.Obligation, updates map[string]any) {
			updates["confirmed_by_receiver"] = true
			updates["confirmed_at"] = e.now()
		})
}

// Dispute is the receiver rejecting the submitted proof.
func (e *Engine) Dispute(ctx context.Context, id string, receiverID uint, reason string) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventDispute,
		func(ob *models.Obligation) error {
			if ob.ReceiverID != receiverID {
				return ErrNotParticipant
			}
			return nil
		},
		func(ob *models.Obligation, updates map[string]any) {
			updates["dispute_reason"] = reason
		})
}

// DisputeLapsed disputes an obligation whose receiver never answered the
// submitted proof within the confirmation window.
func (e *Engine) DisputeLapsed(ctx context.Context, id string) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventDispute, nil,
		func(ob *models.Obligation, updates map[string]any) {
			updates["dispute_reason"] = "confirmation window lapsed"
		})
}

// Cancel is administrative. It frees the sender and leaves counters alone.
func (e *Engine) Cancel(ctx context.Context, id string, reason string) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventCancel, nil,
		func(ob *models.Obligation, updates map[string]any) {
			updates["cancel_reason"] = reason
		})
}

// Timeout is called by the sweep when no proof arrived in time.
func (e *Engine) Timeout(ctx context.Context, id string) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventTimeout, nil, nil)
}

// ForceConfirm is the administrative override. Counters move exactly as for
// Confirm. Authorisation is the caller's job.
func (e *Engine) ForceConfirm(ctx context.Context, id string) (*models.Obligation, error) {
	return e.transition(ctx, id, obligation.EventForceConfirm, nil,
		func(ob *models.Obligation, updates map[string]any) {
			updates["confirmed_at"] = e.now()
		})
}

func (e *Engine) transition(
	ctx context.Context,
	id string,
	ev obligation.Event,
	check func(*models.Obligation) error,
	mutate func(*models.Obligation, map[string]any),
) (*models.Obligation, error) {
	var result models.Obligation
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ob models.Obligation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&ob).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrObligationNotFound
			}
			return fmt.Errorf("failed to load obligation: %w", err)
		}
		if check != nil {
			if err := check(&ob); err != nil {
				return err
			}
		}
		to, err := obligation.Next(ob.Status, ev)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":     to,
			"version":    ob.Version + 1,
			"updated_at": e.now(),
		}
		if mutate != nil {
			mutate(&ob, updates)
		}
		res := tx.Model(&models.Obligation{}).
			Where("id = ? AND status = ? AND version = ?", ob.ID, ob.Status, ob.Version).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update obligation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %w: obligation %s changed concurrently", ErrTransactionConflict, ErrInvalidStateTransition, ob.ID)
		}

		if to.Counts() {
			if err := e.applyConfirmed(ctx, tx, &ob); err != nil {
				return err
			}
		}
		if !to.Open() {
			err := tx.Where("sender_id = ? AND obligation_id = ?", ob.SenderID, ob.ID).
				Delete(&models.ActiveObligation{}).Error
			if err != nil {
				return fmt.Errorf("failed to release sender: %w", err)
			}
		}

		return tx.Where("id = ?", ob.ID).First(&result).Error
	})

	label := "ok"
	if err != nil {
		label = "rejected"
		if !errors.Is(err, ErrInvalidStateTransition) && !errors.Is(err, ErrNotParticipant) && !errors.Is(err, ErrObligationNotFound) {
			label = "error"
			e.logger.Error("obligation transition failed", "obligation_id", id, "event", ev, "error", err)
		} else {
			e.logger.Warn("obligation transition rejected", "obligation_id", id, "event", ev, "reason", err)
		}
		e.metrics.transitions.WithLabelValues(string(ev), label).Inc()
		return nil, err
	}
	e.metrics.transitions.WithLabelValues(string(ev), label).Inc()
	e.logger.Info("obligation transitioned", "obligation_id", id, "event", ev, "status", result.Status)
	return &result, nil
}

// applyConfirmed runs the counter side effects of a confirmed or force
// confirmed obligation inside the transition's transaction.
func (e *Engine) applyConfirmed(ctx context.Context, tx *gorm.DB, ob *models.Obligation) error {
	res := tx.Model(&models.Member{}).
		Where("id = ?", ob.ReceiverID).
		Update("help_received", gorm.Expr("help_received + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to count help for receiver: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("receiver %d: %w", ob.ReceiverID, ErrMemberNotFound)
	}

	receiver, err := e.member(ctx, tx, ob.ReceiverID)
	if err != nil {
		return err
	}
	if block.IsBlocked(receiver) && !receiver.IsReceivingHeld {
		if err := tx.Model(&models.Member{}).Where("id = ?", receiver.ID).Update("is_receiving_held", true).Error; err != nil {
			return fmt.Errorf("failed to hold receiver: %w", err)
		}
		payment := block.RequiredPaymentToUnblock(receiver)
		e.logger.Info("receiver reached a block point",
			"member_id", receiver.ID, "level", receiver.Level.String(),
			"help_received", receiver.HelpReceived, "payment", payment.Type, "amount", payment.Amount)
	}
	if total, err := level.TotalHelps(receiver.Level); err == nil {
		switch {
		case receiver.HelpReceived == total:
			e.logger.Info("receiver completed its level", "member_id", receiver.ID, "level", receiver.Level.String())
		case receiver.HelpReceived > total:
			e.logger.Warn("receiver is over its level total",
				"member_id", receiver.ID, "level", receiver.Level.String(),
				"help_received", receiver.HelpReceived, "total", total, "obligation_id", ob.ID)
		}
	}

	res = tx.Model(&models.Member{}).
		Where("id = ? AND is_activated = ?", ob.SenderID, false).
		Update("is_activated", true)
	if res.Error != nil {
		return fmt.Errorf("failed to activate sender: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		e.logger.Info("member activated", "member_id", ob.SenderID, "obligation_id", ob.ID)
	}

	if ob.Kind == obligation.KindUpgrade || ob.Kind == obligation.KindSponsor {
		err := tx.Model(&models.Member{}).
			Where("id = ? AND help_received = ?", ob.SenderID, ob.BlockPoint).
			Updates(map[string]any{
				"paid_block_point":  ob.BlockPoint,
				"is_receiving_held": false,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to lift block for sender: %w", err)
		}
	}

	e.metrics.confirmedHelp.WithLabelValues(ob.Level.String()).Add(float64(ob.Amount))
	return nil
}
