package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

func (e *Engine) Obligation(ctx context.Context, id string) (*models.Obligation, error) {
	var ob models.Obligation
	if err := e.db.WithContext(ctx).Where("id = ?", id).First(&ob).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("failed to load obligation: %w", err)
	}
	return &ob, nil
}

// SentBy is the sender's view, newest first.
func (e *Engine) SentBy(ctx context.Context, senderID uint, limit int) ([]models.Obligation, error) {
	return e.listObligations(ctx, "sender_id = ?", senderID, limit)
}

// ReceivedBy is the receiver's view, newest first.
func (e *Engine) ReceivedBy(ctx context.Context, receiverID uint, limit int) ([]models.Obligation, error) {
	return e.listObligations(ctx, "receiver_id = ?", receiverID, limit)
}

func (e *Engine) listObligations(ctx context.Context, where string, id uint, limit int) ([]models.Obligation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Obligation
	err := e.db.WithContext(ctx).
		Where(where, id).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	return out, nil
}

// Overdue lists obligations that have sat in status since before cutoff.
// Pending obligations age from creation, proof_submitted ones from the proof.
func (e *Engine) Overdue(ctx context.Context, status obligation.Status, cutoff time.Time, limit int) ([]models.Obligation, error) {
	column := "created_at"
	switch status {
	case obligation.StatusPending:
	case obligation.StatusProofSubmitted:
		column = "proof_submitted_at"
	default:
		return nil, fmt.Errorf("%w: no policy window for %s", ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = 100
	}
	var out []models.Obligation
	err := e.db.WithContext(ctx).
		Where("status = ?", status).
		Where(column+" < ?", cutoff).
		Order(column + " asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue obligations: %w", err)
	}
	return out, nil
}
