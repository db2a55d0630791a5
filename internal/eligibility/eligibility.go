// Package eligibility decides whether a member may send or receive help.
// Both checks are pure functions of the member record and the level catalog.
package eligibility

import (
	"sendhelp/internal/block"
	"sendhelp/internal/models"
)

// Reason explains a refusal. It is stable enough to show to members.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonBlocked        Reason = "blocked"
	ReasonOnHold         Reason = "on_hold"
	ReasonIncomeBlocked  Reason = "income_blocked"
	ReasonNotActivated   Reason = "not_activated"
	ReasonReceivingHeld  Reason = "receiving_held"
	ReasonHiddenFromHelp Reason = "help_visibility_off"
	ReasonUnknownLevel   Reason = "unknown_level"
	ReasonArchived       Reason = "archived"
)

type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Eligible: true} }

func deny(r Reason) Decision { return Decision{Reason: r} }

// CanSend allows members that have not been activated yet: their first
// confirmed send is what activates them.
func CanSend(m *models.Member) Decision {
	switch {
	case m.ArchivedAt != nil:
		return deny(ReasonArchived)
	case m.IsBlocked:
		return deny(ReasonBlocked)
	case m.IsOnHold:
		return deny(ReasonOnHold)
	case block.IsBlocked(m):
		return deny(ReasonIncomeBlocked)
	}
	return allow()
}

// CanSendUnblockPayment is CanSend without the income block, which is the
// very thing the payment lifts.
func CanSendUnblockPayment(m *models.Member) Decision {
	switch {
	case m.ArchivedAt != nil:
		return deny(ReasonArchived)
	case m.IsBlocked:
		return deny(ReasonBlocked)
	case m.IsOnHold:
		return deny(ReasonOnHold)
	}
	return allow()
}

// CanReceive reports an unpaid block point ahead of the receiving hold it
// causes, so the member is pointed at the payment that lifts it.
func CanReceive(m *models.Member) Decision {
	switch {
	case m.ArchivedAt != nil:
		return deny(ReasonArchived)
	case !m.IsActivated:
		return deny(ReasonNotActivated)
	case m.IsBlocked:
		return deny(ReasonBlocked)
	case m.IsOnHold:
		return deny(ReasonOnHold)
	case block.IsBlocked(m):
		return deny(ReasonIncomeBlocked)
	case m.IsReceivingHeld:
		return deny(ReasonReceivingHeld)
	case !m.Visible():
		return deny(ReasonHiddenFromHelp)
	case !m.Level.Valid():
		return deny(ReasonUnknownLevel)
	}
	return allow()
}
