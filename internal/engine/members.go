package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sendhelp/internal/block"
	"sendhelp/internal/eligibility"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
)

type Registration struct {
	ExternalID   string `json:"external_id"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code,omitempty"`
	ReferredBy   string `json:"referred_by,omitempty"`
}

// FlagUpdate changes administrative flags; nil fields are left as they are.
type FlagUpdate struct {
	IsBlocked       *bool `json:"is_blocked,omitempty"`
	IsOnHold        *bool `json:"is_on_hold,omitempty"`
	IsReceivingHeld *bool `json:"is_receiving_held,omitempty"`
	HelpVisibility  *bool `json:"help_visibility,omitempty"`
	Archived        *bool `json:"archived,omitempty"`
}

// MemberStatus is the read model shown to members and the chat layer.
type MemberStatus struct {
	Member             models.Member        `json:"member"`
	CanSend            eligibility.Decision `json:"can_send"`
	CanReceive         eligibility.Decision `json:"can_receive"`
	Blocked            bool                 `json:"blocked"`
	UnblockPayment     *block.Payment       `json:"unblock_payment,omitempty"`
	TotalHelps         int                  `json:"total_helps"`
	OpenObligationID   string               `json:"open_obligation_id,omitempty"`
	AdvancementPending bool                 `json:"advancement_pending"`
}

func (e *Engine) member(ctx context.Context, db *gorm.DB, id uint) (*models.Member, error) {
	var m models.Member
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
		}
		return nil, fmt.Errorf("failed to load member %d: %w", id, err)
	}
	return &m, nil
}

func (e *Engine) Member(ctx context.Context, id uint) (*models.Member, error) {
	return e.member(ctx, e.db, id)
}

func (e *Engine) MemberByExternalID(ctx context.Context, externalID string) (*models.Member, error) {
	var m models.Member
	if err := e.db.WithContext(ctx).Where("external_id = ?", externalID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %s: %w", externalID, ErrMemberNotFound)
		}
		return nil, fmt.Errorf("failed to load member %s: %w", externalID, err)
	}
	return &m, nil
}

// Register creates a member at the first level. A known ReferredBy code
// credits the referrer in the same transaction; an unknown one is ignored.
func (e *Engine) Register(ctx context.Context, r Registration) (*models.Member, error) {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	if r.ExternalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}
	if e.IsSystemMember(r.ExternalID) {
		return nil, fmt.Errorf("%w: external id %s is reserved", ErrInvalidInput, r.ExternalID)
	}
	if r.ReferralCode == "" {
		r.ReferralCode = "ref_" + r.ExternalID
	}

	m := models.Member{
		ExternalID:   r.ExternalID,
		Name:         r.Name,
		Level:        level.First,
		ReferralCode: r.ReferralCode,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Member{}).Where("external_id = ?", r.ExternalID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("member %s: %w", r.ExternalID, ErrMemberExists)
		}

		if code := strings.TrimSpace(r.ReferredBy); code != "" && code != r.ReferralCode {
			var referrer models.Member
			err := tx.Where("referral_code = ?", code).Limit(1).Find(&referrer).Error
			if err != nil {
				return fmt.Errorf("failed to look up referrer: %w", err)
			}
			if referrer.ID != 0 {
				m.ReferrerID = &referrer.ID
				err := tx.Model(&models.Member{}).Where("id = ?", referrer.ID).
					Update("referral_count", gorm.Expr("referral_count + ?", 1)).Error
				if err != nil {
					return fmt.Errorf("failed to credit referrer: %w", err)
				}
			}
		}

		if err := tx.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("member %s: %w", r.ExternalID, ErrMemberExists)
			}
			return fmt.Errorf("failed to create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("member registered", "member_id", m.ID, "external_id", m.ExternalID, "referred", m.ReferrerID != nil)
	return &m, nil
}

// Advance moves a member that received every help of its level to the next
// level and starts its counter over.
func (e *Engine) Advance(ctx context.Context, memberID uint) (*models.Member, error) {
	var out *models.Member
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Member
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
			}
			return err
		}
		total, err := level.TotalHelps(m.Level)
		if err != nil {
			return fmt.Errorf("member %d: %w", memberID, err)
		}
		if m.HelpReceived < total {
			return fmt.Errorf("%w: %d of %d helps received", ErrCannotAdvance, m.HelpReceived, total)
		}
		next, ok := level.Next(m.Level)
		if !ok {
			return fmt.Errorf("%w: %s is the last level", ErrCannotAdvance, m.Level)
		}
		err = tx.Model(&models.Member{}).Where("id = ?", m.ID).Updates(map[string]any{
			"level":             next,
			"help_received":     0,
			"paid_block_point":  0,
			"is_receiving_held": false,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to advance member: %w", err)
		}
		out, err = e.member(ctx, tx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("member advanced", "member_id", out.ID, "level", out.Level.String())
	return out, nil
}

// SetFlags applies an administrative flag change. It bypasses eligibility.
func (e *Engine) SetFlags(ctx context.Context, memberID uint, f FlagUpdate) (*models.Member, error) {
	updates := map[string]any{}
	if f.IsBlocked != nil {
		updates["is_blocked"] = *f.IsBlocked
	}
	if f.IsOnHold != nil {
		updates["is_on_hold"] = *f.IsOnHold
	}
	if f.IsReceivingHeld != nil {
		updates["is_receiving_held"] = *f.IsReceivingHeld
	}
	if f.HelpVisibility != nil {
		updates["help_visibility"] = *f.HelpVisibility
	}
	if f.Archived != nil {
		if *f.Archived {
			updates["archived_at"] = e.now()
		} else {
			updates["archived_at"] = nil
		}
	}
	if len(updates) == 0 {
		return e.Member(ctx, memberID)
	}

	res := e.db.WithContext(ctx).Model(&models.Member{}).Where("id = ?", memberID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update flags: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("member %d: %w", memberID, ErrMemberNotFound)
	}
	e.logger.Info("member flags changed", "member_id", memberID, "changes", updates)
	return e.Member(ctx, memberID)
}

// Status evaluates a member's eligibility without side effects.
func (e *Engine) Status(ctx context.Context, memberID uint) (*MemberStatus, error) {
	m, err := e.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	st := &MemberStatus{
		Member:         *m,
		CanSend:        eligibility.CanSend(m),
		CanReceive:     eligibility.CanReceive(m),
		Blocked:        block.IsBlocked(m),
		UnblockPayment: block.RequiredPaymentToUnblock(m),
	}
	if total, err := level.TotalHelps(m.Level); err == nil {
		st.TotalHelps = total
		_, hasNext := level.Next(m.Level)
		st.AdvancementPending = hasNext && m.HelpReceived >= total
	}

	var active models.ActiveObligation
	if err := e.db.WithContext(ctx).Where("sender_id = ?", m.ID).Limit(1).Find(&active).Error; err != nil {
		return nil, fmt.Errorf("failed to check open obligation: %w", err)
	}
	st.OpenObligationID = active.ObligationID
	return st, nil
}
