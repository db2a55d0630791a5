// Package block decides when a member stops receiving at a block point and
// which payment lifts the block.
package block

import (
	"sendhelp/internal/level"
	"sendhelp/internal/models"
)

// Payment is what a blocked member must pay to receive again.
type Payment struct {
	Type       level.PaymentType `json:"type"`
	Amount     int               `json:"amount"`
	BlockPoint int               `json:"block_point"`
}

// AtBlockPoint reports whether help count sits exactly on a block point of l.
func AtBlockPoint(l level.Level, helpReceived int) bool {
	_, ok := level.BlockPayment(l, helpReceived)
	return ok
}

// IsBlocked is true when the member's counter equals one of its level's
// block points and the payment for that point has not been confirmed yet.
func IsBlocked(m *models.Member) bool {
	if !AtBlockPoint(m.Level, m.HelpReceived) {
		return false
	}
	return m.PaidBlockPoint != m.HelpReceived
}

// ReceiveLimit is the help count m may reach before it has to stop: the next
// unpaid block point at or above its counter, or the level total.
func ReceiveLimit(m *models.Member) (int, error) {
	def, err := level.Lookup(m.Level)
	if err != nil {
		return 0, err
	}
	for _, bp := range def.BlockPoints {
		if bp.At >= m.HelpReceived && bp.At != m.PaidBlockPoint && bp.At < def.TotalHelps {
			return bp.At, nil
		}
	}
	return def.TotalHelps, nil
}

// RequiredPaymentToUnblock returns nil when m is not blocked.
func RequiredPaymentToUnblock(m *models.Member) *Payment {
	if !IsBlocked(m) {
		return nil
	}
	bp, _ := level.BlockPayment(m.Level, m.HelpReceived)
	return &Payment{
		Type:       bp.Type,
		Amount:     bp.Amount,
		BlockPoint: bp.At,
	}
}
