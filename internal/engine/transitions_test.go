package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendhelp/internal/block"
	"sendhelp/internal/eligibility"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

func TestConfirmCountsHelpAndActivatesSender(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})

	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	submitted, err := e.SubmitProof(ctx, ob.ID, sender.ID, Proof{Method: "bank", Reference: "TX-1", ScreenshotRef: "file-9"})
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusProofSubmitted, submitted.Status)
	assert.Equal(t, "bank", submitted.ProofMethod)
	assert.Equal(t, "TX-1", submitted.ProofReference)
	require.NotNil(t, submitted.ProofSubmittedAt)
	assert.Equal(t, 0, reload(t, db, receiver.ID).HelpReceived, "proof alone does not count")

	done, err := e.Confirm(ctx, ob.ID, receiver.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusConfirmed, done.Status)
	assert.True(t, done.ConfirmedByReceiver)
	require.NotNil(t, done.ConfirmedAt)
	assert.Equal(t, 3, done.Version)

	assert.Equal(t, 1, reload(t, db, receiver.ID).HelpReceived)
	assert.True(t, reload(t, db, sender.ID).IsActivated)
	assert.Zero(t, countOpen(t, db, sender.ID))
}

func TestTransitionsCheckParticipants(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	_, err = e.SubmitProof(ctx, ob.ID, receiver.ID, Proof{Method: "bank", Reference: "x"})
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = e.SubmitProof(ctx, ob.ID, sender.ID, Proof{Method: "bank", Reference: "x"})
	require.NoError(t, err)

	_, err = e.Confirm(ctx, ob.ID, sender.ID)
	require.ErrorIs(t, err, ErrNotParticipant)
	_, err = e.Dispute(ctx, ob.ID, sender.ID, "self dispute")
	require.ErrorIs(t, err, ErrNotParticipant)

	stored, err := e.Obligation(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusProofSubmitted, stored.Status)
}

func TestSubmitProofRequiresMethodAndReference(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	_, err = e.SubmitProof(ctx, ob.ID, sender.ID, Proof{Method: "  ", Reference: "TX"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.SubmitProof(ctx, ob.ID, sender.ID, Proof{Method: "bank"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestConfirmTwiceCountsOnce(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)
	pay(t, e, ob)

	_, err = e.Confirm(ctx, ob.ID, receiver.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = e.ForceConfirm(ctx, ob.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, 1, reload(t, db, receiver.ID).HelpReceived)
}

func TestConfirmPendingIsInvalid(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	_, err = e.Confirm(ctx, ob.ID, receiver.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Zero(t, reload(t, db, receiver.ID).HelpReceived)
}

func TestTransitionUnknownObligation(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	_, err := e.Cancel(context.Background(), "1-2-3", "nope")
	require.ErrorIs(t, err, ErrObligationNotFound)
}

func TestCancelFreesSenderWithoutCounting(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	cancelled, err := e.Cancel(ctx, ob.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusCancelled, cancelled.Status)
	assert.Equal(t, "duplicate", cancelled.CancelReason)
	assert.Zero(t, reload(t, db, receiver.ID).HelpReceived)
	assert.False(t, reload(t, db, sender.ID).IsActivated)
	assert.Zero(t, countOpen(t, db, sender.ID))

	_, err = e.Cancel(ctx, ob.ID, "again")
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestForceConfirmFromPendingCountsOnce(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)

	forced, err := e.ForceConfirm(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusForceConfirmed, forced.Status)
	assert.False(t, forced.ConfirmedByReceiver)

	_, err = e.ForceConfirm(ctx, ob.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, 1, reload(t, db, receiver.ID).HelpReceived)
	assert.True(t, reload(t, db, sender.ID).IsActivated)
}

func TestForceConfirmAfterCancel(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)
	_, err = e.Cancel(ctx, ob.ID, "mistake")
	require.NoError(t, err)

	_, err = e.ForceConfirm(ctx, ob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reload(t, db, receiver.ID).HelpReceived)
}

func TestDisputeKeepsSenderOpen(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	receiver := addReceiver(t, db, "R", level.Tier1, 0)
	addReceiver(t, db, "R2", level.Tier1, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S"})
	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)
	_, err = e.SubmitProof(ctx, ob.ID, sender.ID, Proof{Method: "bank", Reference: "TX"})
	require.NoError(t, err)

	disputed, err := e.Dispute(ctx, ob.ID, receiver.ID, "nothing arrived")
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusDisputed, disputed.Status)
	assert.Equal(t, "nothing arrived", disputed.DisputeReason)

	_, err = e.Assign(ctx, sender.ID)
	require.ErrorIs(t, err, ErrAlreadyPending)
	_, err = e.Confirm(ctx, ob.ID, receiver.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = e.Cancel(ctx, ob.ID, "resolved for sender")
	require.NoError(t, err)
	_, err = e.Assign(ctx, sender.ID)
	require.NoError(t, err)
}

func TestOverdueAndSweepTransitions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	e, db := newTestEngine(t, Options{Now: clock.Now})
	ctx := context.Background()
	addReceiver(t, db, "R", level.Tier1, 0)
	slow := addMember(t, db, models.Member{ExternalID: "SLOW"})
	quiet := addMember(t, db, models.Member{ExternalID: "QUIET"})

	stale, err := e.Assign(ctx, slow.ID)
	require.NoError(t, err)
	proved, err := e.Assign(ctx, quiet.ID)
	require.NoError(t, err)
	_, err = e.SubmitProof(ctx, proved.ID, quiet.ID, Proof{Method: "cash", Reference: "hand"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	cutoff := clock.Now().Add(-time.Hour)

	pending, err := e.Overdue(ctx, obligation.StatusPending, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)

	waiting, err := e.Overdue(ctx, obligation.StatusProofSubmitted, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, proved.ID, waiting[0].ID)

	timedOut, err := e.Timeout(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusTimeout, timedOut.Status)
	assert.Zero(t, countOpen(t, db, slow.ID))

	lapsed, err := e.DisputeLapsed(ctx, proved.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.StatusDisputed, lapsed.Status)
	assert.Equal(t, int64(1), countOpen(t, db, quiet.ID))

	_, err = e.Overdue(ctx, obligation.StatusConfirmed, cutoff, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestBlockPointHoldsAndUnblockPaymentReleases(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()

	member := addMember(t, db, models.Member{
		ExternalID: "M", Level: level.Tier2, IsActivated: true, HelpReceived: 3, ReferralCount: 5,
	})
	upline := addReceiver(t, db, "UP", level.Tier3, 1)
	sender := addMember(t, db, models.Member{ExternalID: "S", Level: level.Tier2})

	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)
	require.Equal(t, member.ID, ob.ReceiverID)
	assert.Equal(t, 600, ob.Amount)
	pay(t, e, ob)

	held := reload(t, db, member.ID)
	assert.Equal(t, 4, held.HelpReceived)
	assert.True(t, held.IsReceivingHeld)
	assert.True(t, block.IsBlocked(&held))
	assert.Equal(t, eligibility.ReasonIncomeBlocked, eligibility.CanReceive(&held).Reason)

	// a blocked member still sends the payment that lifts the block
	unblock, err := e.AssignUnblockPayment(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, obligation.KindUpgrade, unblock.Kind)
	assert.Equal(t, level.Tier3, unblock.Level)
	assert.Equal(t, 1200, unblock.Amount)
	assert.Equal(t, 4, unblock.BlockPoint)
	assert.Equal(t, upline.ID, unblock.ReceiverID)
	pay(t, e, unblock)

	free := reload(t, db, member.ID)
	assert.Equal(t, 4, free.PaidBlockPoint)
	assert.False(t, free.IsReceivingHeld)
	assert.False(t, block.IsBlocked(&free))
	assert.True(t, eligibility.CanReceive(&free).Eligible)
	assert.Equal(t, 1, reload(t, db, upline.ID).HelpReceived)

	_, err = e.AssignUnblockPayment(ctx, member.ID)
	require.ErrorIs(t, err, ErrNotBlocked)
}

func TestBlockedReceiverIsSkipped(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	addMember(t, db, models.Member{ExternalID: "B", Level: level.Tier2, IsActivated: true, HelpReceived: 7, PaidBlockPoint: 4, ReferralCount: 9})
	open := addReceiver(t, db, "O", level.Tier2, 0)
	sender := addMember(t, db, models.Member{ExternalID: "S", Level: level.Tier2})

	ob, err := e.Assign(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, ob.ReceiverID)
}

// Open obligations toward a receiver must never carry it past an unpaid
// block point, or it would land beyond the point with nothing to pay.
func TestReceiverNotAssignedPastUnpaidBlockPoint(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()

	member := addMember(t, db, models.Member{
		ExternalID: "M", Level: level.Tier2, IsActivated: true, HelpReceived: 3, ReferralCount: 5,
	})
	addReceiver(t, db, "UP", level.Tier3, 0)
	first := addMember(t, db, models.Member{ExternalID: "S1", Level: level.Tier2})
	second := addMember(t, db, models.Member{ExternalID: "S2", Level: level.Tier2})

	ob, err := e.Assign(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, member.ID, ob.ReceiverID)

	_, err = e.Assign(ctx, second.ID)
	require.ErrorIs(t, err, ErrNoReceiverAvailable)
	assert.Zero(t, countOpen(t, db, second.ID))

	pay(t, e, ob)
	held := reload(t, db, member.ID)
	assert.Equal(t, 4, held.HelpReceived)
	require.True(t, block.IsBlocked(&held))
	assert.Equal(t, eligibility.ReasonIncomeBlocked, eligibility.CanReceive(&held).Reason)

	unblock, err := e.AssignUnblockPayment(ctx, member.ID)
	require.NoError(t, err)
	pay(t, e, unblock)

	next, err := e.Assign(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, next.ReceiverID)
	pay(t, e, next)

	done := reload(t, db, member.ID)
	assert.Equal(t, 5, done.HelpReceived)
	assert.False(t, done.IsReceivingHeld)
	assert.True(t, eligibility.CanReceive(&done).Eligible)
}
