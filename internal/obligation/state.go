// Package obligation holds the lifecycle rules of a payment obligation
// between a sender and a receiver. It has no storage dependencies.
package obligation

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid state transition")

type Status string

const (
	StatusPending        Status = "pending"
	StatusProofSubmitted Status = "proof_submitted"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
	StatusTimeout        Status = "timeout"
	StatusDisputed       Status = "disputed"
	StatusForceConfirmed Status = "force_confirmed"
)

type Event string

const (
	EventSubmitProof  Event = "submit_proof"
	EventConfirm      Event = "confirm"
	EventDispute      Event = "dispute"
	EventCancel       Event = "cancel"
	EventTimeout      Event = "timeout"
	EventForceConfirm Event = "force_confirm"
)

// Kind tells what an obligation pays for.
type Kind string

const (
	KindHelp    Kind = "help"
	KindUpgrade Kind = "upgrade"
	KindSponsor Kind = "sponsor"
)

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Event]transition{
	EventSubmitProof: {from: []Status{StatusPending}, to: StatusProofSubmitted},
	EventConfirm:     {from: []Status{StatusProofSubmitted}, to: StatusConfirmed},
	EventDispute:     {from: []Status{StatusProofSubmitted}, to: StatusDisputed},
	EventCancel:      {from: []Status{StatusPending, StatusProofSubmitted, StatusDisputed}, to: StatusCancelled},
	EventTimeout:     {from: []Status{StatusPending, StatusProofSubmitted}, to: StatusTimeout},
	EventForceConfirm: {
		from: []Status{StatusPending, StatusProofSubmitted, StatusDisputed, StatusCancelled, StatusTimeout},
		to:   StatusForceConfirmed,
	},
}

// Next returns the status reached by applying ev to from.
func Next(from Status, ev Event) (Status, error) {
	t, ok := transitions[ev]
	if !ok {
		return from, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}

// Counts reports whether s contributes to the receiver's help counter.
func (s Status) Counts() bool {
	return s == StatusConfirmed || s == StatusForceConfirmed
}

// Open reports whether s keeps the sender from starting another obligation.
// Disputed stays open until an administrator resolves it.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusProofSubmitted, StatusDisputed:
		return true
	}
	return false
}

// OpenStatuses returns the statuses for which Open is true.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusProofSubmitted, StatusDisputed}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProofSubmitted, StatusConfirmed, StatusCancelled,
		StatusTimeout, StatusDisputed, StatusForceConfirmed:
		return true
	}
	return false
}
