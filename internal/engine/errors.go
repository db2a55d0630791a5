package engine

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"sendhelp/internal/eligibility"
	"sendhelp/internal/level"
	"sendhelp/internal/obligation"
)

var (
	ErrNotEligible            = errors.New("not eligible")
	ErrAlreadyPending         = errors.New("sender already has an open obligation")
	ErrNoReceiverAvailable    = errors.New("no receiver available")
	ErrInvalidStateTransition = obligation.ErrInvalidTransition
	ErrTransactionConflict    = errors.New("transaction conflict")
	ErrUnknownLevel           = level.ErrUnknownLevel
	ErrNotParticipant         = errors.New("member is not a participant of this obligation")
	ErrMemberNotFound         = errors.New("member not found")
	ErrMemberExists           = errors.New("member already exists")
	ErrObligationNotFound     = errors.New("obligation not found")
	ErrNotBlocked             = errors.New("member is not at a block point")
	ErrCannotAdvance          = errors.New("member cannot advance")
	ErrInvalidInput           = errors.New("invalid input")

	// errReceiverSaturated aborts an assignment transaction whose receiver
	// filled up between selection and commit.
	errReceiverSaturated = errors.New("receiver saturated")
)

// NotEligibleError is a business refusal carrying the reason to show.
type NotEligibleError struct {
	Reason eligibility.Reason
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("not eligible: %s", e.Reason)
}

func (e *NotEligibleError) Is(target error) bool {
	return target == ErrNotEligible
}

// retryable reports whether err came from concurrent writers and the whole
// attempt may be run again.
func retryable(err error) bool {
	if errors.Is(err, errReceiverSaturated) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
