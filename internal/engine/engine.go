// Package engine assigns help obligations between members and moves them
// through their lifecycle. All writes go through gorm transactions so the
// single open obligation per sender and the per-level receive limit hold
// under concurrent requests.
package engine

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"sendhelp/internal/lock"
)

const (
	defaultMaxAssignAttempts = 3
	defaultLockTTL           = 10 * time.Second
)

type Options struct {
	Locker            lock.Locker
	Logger            *slog.Logger
	Registerer        prometheus.Registerer
	SystemMemberIDs   []string
	MaxAssignAttempts int
	LockTTL           time.Duration
	Now               func() time.Time
}

type Engine struct {
	db          *gorm.DB
	locker      lock.Locker
	logger      *slog.Logger
	metrics     *metrics
	clock       *idClock
	now         func() time.Time
	systemIDs   map[string]struct{}
	maxAttempts int
	lockTTL     time.Duration
}

func New(db *gorm.DB, opts Options) *Engine {
	e := &Engine{
		db:          db,
		locker:      opts.Locker,
		logger:      opts.Logger,
		metrics:     newMetrics(opts.Registerer),
		systemIDs:   make(map[string]struct{}, len(opts.SystemMemberIDs)),
		maxAttempts: opts.MaxAssignAttempts,
		lockTTL:     opts.LockTTL,
	}
	if e.locker == nil {
		e.locker = lock.NewLocal()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	e.now = func() time.Time { return now().UTC() }
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAssignAttempts
	}
	if e.lockTTL <= 0 {
		e.lockTTL = defaultLockTTL
	}
	for _, id := range opts.SystemMemberIDs {
		e.systemIDs[id] = struct{}{}
	}
	e.clock = &idClock{now: e.now}
	return e
}

// IsSystemMember reports whether externalID is reserved and never matched
// as an ordinary counterparty.
func (e *Engine) IsSystemMember(externalID string) bool {
	_, ok := e.systemIDs[externalID]
	return ok
}
