package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sendhelp/internal/eligibility"
	"sendhelp/internal/engine"
	"sendhelp/internal/models"
	"sendhelp/internal/obligation"
)

// Service is the part of the engine the chat surface talks to.
type Service interface {
	MemberByExternalID(ctx context.Context, externalID string) (*models.Member, error)
	Register(ctx context.Context, r engine.Registration) (*models.Member, error)
	Assign(ctx context.Context, senderID uint) (*models.Obligation, error)
	AssignUnblockPayment(ctx context.Context, memberID uint) (*models.Obligation, error)
	SubmitProof(ctx context.Context, id string, senderID uint, proof engine.Proof) (*models.Obligation, error)
	Confirm(ctx context.Context, id string, receiverID uint) (*models.Obligation, error)
	Status(ctx context.Context, memberID uint) (*engine.MemberStatus, error)
}

// User is the sender of a chat message.
type User struct {
	ID        int64
	FirstName string
}

// ExternalID is how a Telegram account is known to the engine.
func ExternalID(telegramID int64) string {
	return "tg" + strconv.FormatInt(telegramID, 10)
}

// splitCommand turns "/proof@bot a b" into "proof" and its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

const helpText = `Commands:
/sendhelp - get a member to send help to
/unblock - pay the amount that lifts your block point
/proof <id> <method> <reference> - attach proof of payment
/confirm <id> - confirm a help you received
/status - your level, counters and open obligation`

// Reply runs one command for u and returns the text to send back.
func Reply(ctx context.Context, svc Service, u User, text string) string {
	cmd, args := splitCommand(text)
	if cmd == "start" {
		code := ""
		if len(args) > 0 {
			code = args[0]
		}
		return start(ctx, svc, u, code)
	}
	if cmd == "" || cmd == "help" {
		return helpText
	}

	me, err := svc.MemberByExternalID(ctx, ExternalID(u.ID))
	if err != nil {
		if errors.Is(err, engine.ErrMemberNotFound) {
			return "You are not registered yet. Send /start to join."
		}
		return explain(err)
	}

	switch cmd {
	case "sendhelp":
		ob, err := svc.Assign(ctx, me.ID)
		if err != nil {
			return explain(err)
		}
		return describeAssignment(ob)
	case "unblock":
		ob, err := svc.AssignUnblockPayment(ctx, me.ID)
		if err != nil {
			return explain(err)
		}
		return describeAssignment(ob)
	case "proof":
		if len(args) < 3 {
			return "Usage: /proof <id> <method> <reference>"
		}
		proof := engine.Proof{Method: args[1], Reference: strings.Join(args[2:], " ")}
		ob, err := svc.SubmitProof(ctx, args[0], me.ID, proof)
		if err != nil {
			return explain(err)
		}
		return fmt.Sprintf("📨 Proof for %s sent. %s will confirm once the money arrives.", ob.ID, ob.ReceiverName)
	case "confirm":
		if len(args) != 1 {
			return "Usage: /confirm <id>"
		}
		ob, err := svc.Confirm(ctx, args[0], me.ID)
		if err != nil {
			return explain(err)
		}
		return fmt.Sprintf("✅ Confirmed %d from %s. Thank you!", ob.Amount, ob.SenderName)
	case "status":
		st, err := svc.Status(ctx, me.ID)
		if err != nil {
			return explain(err)
		}
		return describeStatus(st)
	}
	return "Unknown command.\n\n" + helpText
}

func start(ctx context.Context, svc Service, u User, code string) string {
	ext := ExternalID(u.ID)
	m, err := svc.MemberByExternalID(ctx, ext)
	if err == nil {
		return fmt.Sprintf("Welcome back, %s! Your referral code is %s.\n\n%s", u.FirstName, m.ReferralCode, helpText)
	}
	if !errors.Is(err, engine.ErrMemberNotFound) {
		return explain(err)
	}

	m, err = svc.Register(ctx, engine.Registration{ExternalID: ext, Name: u.FirstName, ReferredBy: code})
	if err != nil {
		return explain(err)
	}
	return fmt.Sprintf("Hi, %s! 👋 You joined at %s.\nShare your referral code %s to invite friends.\n\n%s",
		u.FirstName, m.Level, m.ReferralCode, helpText)
}

func describeAssignment(ob *models.Obligation) string {
	var b strings.Builder
	switch ob.Kind {
	case obligation.KindUpgrade:
		b.WriteString("🔓 Upgrade payment\n")
	case obligation.KindSponsor:
		b.WriteString("🔓 Sponsor payment\n")
	default:
		b.WriteString("🤝 New help\n")
	}
	fmt.Fprintf(&b, "Send %d to %s (%s).\n", ob.Amount, ob.ReceiverName, ob.Level)
	fmt.Fprintf(&b, "When paid: /proof %s <method> <reference>", ob.ID)
	return b.String()
}

func describeStatus(st *engine.MemberStatus) string {
	m := st.Member
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\nLevel: %s\nHelps received: %d of %d\nReferrals: %d\n",
		m.Name, m.Level, m.HelpReceived, st.TotalHelps, m.ReferralCount)
	if !m.IsActivated {
		b.WriteString("Not activated yet: your first confirmed help activates you.\n")
	}
	if st.UnblockPayment != nil {
		fmt.Fprintf(&b, "⛔ Receiving paused at %d. Send the %s payment of %d with /unblock.\n",
			st.UnblockPayment.BlockPoint, st.UnblockPayment.Type, st.UnblockPayment.Amount)
	}
	if st.AdvancementPending {
		b.WriteString("🎉 Level complete, ready to advance.\n")
	}
	if st.OpenObligationID != "" {
		fmt.Fprintf(&b, "Open obligation: %s\n", st.OpenObligationID)
	}
	if !st.CanSend.Eligible {
		fmt.Fprintf(&b, "Sending is unavailable: %s\n", reasonText(st.CanSend.Reason))
	}
	return strings.TrimRight(b.String(), "\n")
}

func reasonText(r eligibility.Reason) string {
	switch r {
	case eligibility.ReasonBlocked:
		return "your account is blocked"
	case eligibility.ReasonOnHold:
		return "your account is on hold"
	case eligibility.ReasonIncomeBlocked:
		return "you reached a block point, use /unblock first"
	case eligibility.ReasonArchived:
		return "your account is archived"
	case eligibility.ReasonNotActivated:
		return "your account is not activated"
	}
	return string(r)
}

// explain turns an engine error into a message for the member.
func explain(err error) string {
	var ne *engine.NotEligibleError
	switch {
	case errors.As(err, &ne):
		return "❌ Not possible right now: " + reasonText(ne.Reason) + "."
	case errors.Is(err, engine.ErrAlreadyPending):
		return "⏳ You already have an open obligation. Finish it first, see /status."
	case errors.Is(err, engine.ErrNoReceiverAvailable):
		return "Nobody can receive at your level right now. Try again later."
	case errors.Is(err, engine.ErrNotBlocked):
		return "You have nothing to unblock."
	case errors.Is(err, engine.ErrNotParticipant):
		return "❌ That obligation is not yours."
	case errors.Is(err, engine.ErrObligationNotFound):
		return "❌ No obligation with that id."
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return "❌ That obligation cannot take this step any more."
	case errors.Is(err, engine.ErrInvalidInput):
		return "❌ " + err.Error()
	}
	return "❌ Something went wrong. Please try again later."
}
