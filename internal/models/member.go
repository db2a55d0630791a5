package models

import (
	"time"

	"sendhelp/internal/level"
)

type Member struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	ExternalID      string      `json:"external_id" gorm:"size:32;uniqueIndex;not null"`
	Name            string      `json:"name" gorm:"size:255"`
	Level           level.Level `json:"level" gorm:"type:varchar(16);not null;index:idx_members_receive"`
	ReferralCode    string      `json:"referral_code" gorm:"size:32;uniqueIndex"`
	ReferrerID      *uint       `json:"referrer_id,omitempty" gorm:"index"`
	ReferralCount   int         `json:"referral_count" gorm:"not null;default:0"`
	HelpReceived    int         `json:"help_received" gorm:"not null;default:0"`
	PaidBlockPoint  int         `json:"paid_block_point" gorm:"not null;default:0"`
	IsActivated     bool        `json:"is_activated" gorm:"not null;default:false;index:idx_members_receive"`
	IsBlocked       bool        `json:"is_blocked" gorm:"not null;default:false"`
	IsOnHold        bool        `json:"is_on_hold" gorm:"not null;default:false"`
	IsReceivingHeld bool        `json:"is_receiving_held" gorm:"not null;default:false"`
	HelpVisibility  *bool       `json:"help_visibility,omitempty"`
	ArchivedAt      *time.Time  `json:"archived_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Visible reports whether the member has not opted out of receiving.
func (m *Member) Visible() bool {
	return m.HelpVisibility == nil || *m.HelpVisibility
}
