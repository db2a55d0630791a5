package engine

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"sendhelp/internal/block"
	"sendhelp/internal/eligibility"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

// Candidate is a member that may receive at a level, with the number of open
// obligations already headed its way there.
type Candidate struct {
	Member models.Member
	Load   int
}

// SelectReceiver picks the receiver for a sender at lvl. Higher referral
// counts are served first and ties go to the lowest member id. A referral
// count of zero is the lowest tier, not a disqualification. It returns nil
// when nobody qualifies.
func SelectReceiver(senderID uint, lvl level.Level, candidates []Candidate, reserved map[string]struct{}) (*models.Member, error) {
	if _, err := level.Lookup(lvl); err != nil {
		return nil, err
	}

	pool := make([]models.Member, 0, len(candidates))
	for _, c := range candidates {
		m := c.Member
		if m.ID == senderID || m.Level != lvl {
			continue
		}
		if _, ok := reserved[m.ExternalID]; ok {
			continue
		}
		if !eligibility.CanReceive(&m).Eligible {
			continue
		}
		limit, err := block.ReceiveLimit(&m)
		if err != nil || m.HelpReceived+c.Load >= limit {
			continue
		}
		pool = append(pool, m)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].ReferralCount != pool[j].ReferralCount {
			return pool[i].ReferralCount > pool[j].ReferralCount
		}
		return pool[i].ID < pool[j].ID
	})

	// The head is the best referral tier, or the lowest id of an all-zero pool.
	return &pool[0], nil
}

// receiveCandidates loads the members at lvl that pass the stored flag
// filters, along with their open load at that level.
func receiveCandidates(ctx context.Context, db *gorm.DB, lvl level.Level) ([]Candidate, error) {
	var members []models.Member
	err := db.WithContext(ctx).
		Where("level = ?", lvl).
		Where("is_activated = ? AND is_blocked = ? AND is_on_hold = ? AND is_receiving_held = ?", true, false, false, false).
		Where("(help_visibility IS NULL OR help_visibility = ?)", true).
		Where("archived_at IS NULL").
		Order("referral_count DESC, id ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query receive candidates: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	var rows []struct {
		ReceiverID uint
		N          int
	}
	err = db.WithContext(ctx).
		Model(&models.Obligation{}).
		Select("receiver_id, COUNT(*) AS n").
		Where("level = ? AND status IN ?", lvl, obligation.OpenStatuses()).
		Where("receiver_id IN ?", ids).
		Group("receiver_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count receiver load: %w", err)
	}
	load := make(map[uint]int, len(rows))
	for _, r := range rows {
		load[r.ReceiverID] = r.N
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		candidates = append(candidates, Candidate{Member: m, Load: load[m.ID]})
	}
	return candidates, nil
}

// receiverLoad counts the open obligations of receiverID at lvl. Together
// with help_received it must stay within block.ReceiveLimit.
func receiverLoad(ctx context.Context, db *gorm.DB, receiverID uint, lvl level.Level) (int, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&models.Obligation{}).
		Where("receiver_id = ? AND level = ? AND status IN ?", receiverID, lvl, obligation.OpenStatuses()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count receiver load: %w", err)
	}
	return int(n), nil
}

// SelectReceiver runs the selector against the store.
func (e *Engine) SelectReceiver(ctx context.Context, senderID uint, lvl level.Level) (*models.Member, error) {
	candidates, err := receiveCandidates(ctx, e.db, lvl)
	if err != nil {
		return nil, err
	}
	return SelectReceiver(senderID, lvl, candidates, e.systemIDs)
}
