package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sendhelp/internal/database"
	"sendhelp/internal/level"
	"sendhelp/internal/models"
)

type grantAll struct{}

func (grantAll) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := database.ConnectSQLite("file:"+name+"?mode=memory&cache=shared", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	if opts.SystemMemberIDs == nil {
		opts.SystemMemberIDs = []string{"SYSTEM"}
	}
	return New(db, opts), db
}

func addMember(t *testing.T, db *gorm.DB, m models.Member) *models.Member {
	t.Helper()
	if m.Level == level.Unknown {
		m.Level = level.Tier1
	}
	if m.ReferralCode == "" {
		m.ReferralCode = "ref_" + m.ExternalID
	}
	require.NoError(t, db.Create(&m).Error)
	return &m
}

// addReceiver adds an activated member ready to receive.
func addReceiver(t *testing.T, db *gorm.DB, ext string, l level.Level, referrals int) *models.Member {
	t.Helper()
	return addMember(t, db, models.Member{
		ExternalID:    ext,
		Name:          "receiver " + ext,
		Level:         l,
		ReferralCount: referrals,
		IsActivated:   true,
	})
}

func reload(t *testing.T, db *gorm.DB, id uint) models.Member {
	t.Helper()
	var m models.Member
	require.NoError(t, db.First(&m, id).Error)
	return m
}

func countOpen(t *testing.T, db *gorm.DB, senderID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Obligation{}).
		Where("sender_id = ? AND status IN ?", senderID, []string{"pending", "proof_submitted", "disputed"}).
		Count(&n).Error)
	return n
}

// pay submits proof and confirms on behalf of both parties.
func pay(t *testing.T, e *Engine, ob *models.Obligation) *models.Obligation {
	t.Helper()
	ctx := context.Background()
	_, err := e.SubmitProof(ctx, ob.ID, ob.SenderID, Proof{Method: "bank", Reference: "TX-" + ob.ID})
	require.NoError(t, err)
	done, err := e.Confirm(ctx, ob.ID, ob.ReceiverID)
	require.NoError(t, err)
	return done
}
