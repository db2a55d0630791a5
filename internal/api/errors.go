package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sendhelp/internal/engine"
)

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// statusFor maps engine errors to a status and a code clients can switch on.
// Conflicts with the current state are 409, business refusals are 422.
// Anything else, an unknown stored level included, is a 500 for an operator.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, engine.ErrNotParticipant):
		return http.StatusForbidden, "not_participant"
	case errors.Is(err, engine.ErrMemberNotFound):
		return http.StatusNotFound, "member_not_found"
	case errors.Is(err, engine.ErrObligationNotFound):
		return http.StatusNotFound, "obligation_not_found"
	case errors.Is(err, engine.ErrTransactionConflict):
		return http.StatusConflict, "transaction_conflict"
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, engine.ErrAlreadyPending):
		return http.StatusConflict, "already_pending"
	case errors.Is(err, engine.ErrMemberExists):
		return http.StatusConflict, "member_exists"
	case errors.Is(err, engine.ErrNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, engine.ErrNoReceiverAvailable):
		return http.StatusUnprocessableEntity, "no_receiver_available"
	case errors.Is(err, engine.ErrNotBlocked):
		return http.StatusUnprocessableEntity, "not_blocked"
	case errors.Is(err, engine.ErrCannotAdvance):
		return http.StatusUnprocessableEntity, "cannot_advance"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: code}

	var ne *engine.NotEligibleError
	if errors.As(err, &ne) {
		body.Reason = string(ne.Reason)
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_input"})
}
