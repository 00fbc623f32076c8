// Package ops implements the user facing operations shared by the CLI, the
// MCP server and the web UI.
package ops

import (
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/sitediff/internal/config"
	"github.com/hpungsan/sitediff/internal/db"
	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/notify"
	"github.com/hpungsan/sitediff/internal/tracker"
)

// Pagination limits
const (
	DefaultHistoryLimit = db.DefaultListLimit
	MaxHistoryLimit     = db.MaxListLimit
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Env is everything an operation needs. Notifier may be nil.
type Env struct {
	BaseDir  string
	Config   *config.Config
	DB       *sql.DB
	Tracker  *tracker.Tracker
	Notifier *notify.Notifier
	Log      zerolog.Logger
}

// lock takes the cross-process run lock on the snapshot directory.
func (e *Env) lock() (*tracker.RunLock, error) {
	return tracker.AcquireRunLock(e.Tracker.Store().Dir(), e.Config.LockStaleAfter())
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a new ULID. IDs from one process sort in creation order.
func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// recordCheck stores one tracking result in the history. A failure here is
// logged and not returned; history is secondary to the snapshot store.
func (e *Env) recordCheck(runID string, r tracker.Result) string {
	if e.DB == nil {
		return ""
	}
	c := checkFromResult(runID, r, time.Now())
	if err := db.InsertCheck(e.DB, c); err != nil {
		e.Log.Warn().Err(err).Str("url", r.URL).Msg("record check failed")
		return ""
	}
	return c.ID
}

func checkFromResult(runID string, r tracker.Result, at time.Time) *db.Check {
	c := &db.Check{
		ID:        newID(),
		RunID:     runID,
		URL:       r.URL,
		Key:       r.Key,
		CheckedAt: at.Unix(),
	}
	if r.Err != nil {
		c.ErrorCode = string(errors.ErrInternal)
		c.ErrorMessage = r.Err.Error()
		if sErr, ok := errors.As(r.Err); ok {
			c.ErrorCode = string(sErr.Code)
			c.ErrorMessage = sErr.Message
		}
		return c
	}
	c.Kind = string(r.Outcome.Kind())
	if ch, ok := r.Outcome.(tracker.Changed); ok {
		c.Added, c.Removed = ch.Script.Counts()
		c.PlainDiff = ch.PlainText
		c.MarkupDiff = ch.MarkupText
	}
	return c
}

// countOutcomes tallies a batch.
func countOutcomes(results []tracker.Result) (created, changed, unchanged, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.IsCreated():
			created++
		case r.IsChanged():
			changed++
		default:
			unchanged++
		}
	}
	return
}
