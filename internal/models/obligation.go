package models

import (
	"time"

	"sendhelp/internal/level"
	"sendhelp/internal/obligation"
)

// Obligation is a single sender to receiver payment. The sender and receiver
// views are the sender_id and receiver_id indexes over the same row.
type Obligation struct {
	ID                  string            `json:"id" gorm:"primaryKey;size:96"`
	Kind                obligation.Kind   `json:"kind" gorm:"size:16;not null;default:'help'"`
	Level               level.Level       `json:"level" gorm:"type:varchar(16);not null;index:idx_obligations_receiver,priority:2"`
	Amount              int               `json:"amount" gorm:"not null"`
	BlockPoint          int               `json:"block_point,omitempty" gorm:"not null;default:0"`
	SenderID            uint              `json:"sender_id" gorm:"not null;index"`
	SenderExternalID    string            `json:"sender_external_id" gorm:"size:32"`
	SenderName          string            `json:"sender_name" gorm:"size:255"`
	ReceiverID          uint              `json:"receiver_id" gorm:"not null;index:idx_obligations_receiver,priority:1"`
	ReceiverExternalID  string            `json:"receiver_external_id" gorm:"size:32"`
	ReceiverName        string            `json:"receiver_name" gorm:"size:255"`
	Status              obligation.Status `json:"status" gorm:"size:24;not null;index:idx_obligations_receiver,priority:3"`
	ProofMethod         string            `json:"proof_method,omitempty" gorm:"size:64"`
	ProofReference      string            `json:"proof_reference,omitempty" gorm:"size:255"`
	ProofScreenshotRef  string            `json:"proof_screenshot_ref,omitempty" gorm:"size:512"`
	ProofSubmittedAt    *time.Time        `json:"proof_submitted_at,omitempty"`
	ConfirmedByReceiver bool              `json:"confirmed_by_receiver" gorm:"not null;default:false"`
	ConfirmedAt         *time.Time        `json:"confirmed_at,omitempty"`
	CancelReason        string            `json:"cancel_reason,omitempty" gorm:"size:255"`
	DisputeReason       string            `json:"dispute_reason,omitempty" gorm:"size:255"`
	Version             int               `json:"version" gorm:"not null;default:1"`
	CreatedAt           time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ActiveObligation points at the one open obligation of a sender. The primary
// key on SenderID is what keeps a sender to a single open obligation.
type ActiveObligation struct {
	SenderID     uint   `gorm:"primaryKey;autoIncrement:false"`
	ObligationID string `gorm:"size:96;not null;uniqueIndex"`
	CreatedAt    time.Time
}

// MigrateModels lists every table the engine needs.
var MigrateModels = []any{
	&Member{},
	&Obligation{},
	&ActiveObligation{},
}
