/*
store.go - Persistence interfaces shared by every generator

PURPOSE:
  Defines what the engine needs from the outside world besides the entity
  stores (see billing.Store and payroll.Store): somewhere to announce a
  run's summary, somewhere to keep run history, and an inbox for owners.

IDEMPOTENCY:
  Record stores enforce a unique key on (entity, period_from, period_to).
  The pre-insert existence check in the generators is an optimization only:
  two overlapping runs can both pass it, and the second insert must come back
  as ErrDuplicateRecord. Stores return that sentinel; generators count it as
  skipped.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:    SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
  - store/memory/memory.go:    In-memory for testing

SEE ALSO:
  - batch.go: GenerationResult published through Notifier
  - notify/: Notifier implementations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// NOTIFIER - Receives the summary of every run
// =============================================================================

// Notifier delivers a run summary. Delivery failures never fail the run.
type Notifier interface {
	PublishSummary(ctx context.Context, result *GenerationResult) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, result *GenerationResult) error

func (f NotifierFunc) PublishSummary(ctx context.Context, result *GenerationResult) error {
	return f(ctx, result)
}

// =============================================================================
// RUN LOG - History of generation runs
// =============================================================================

// RunRecord is the persisted form of a GenerationResult.
type RunRecord struct {
	ID            string
	Kind          Kind
	Status        RunStatus
	Reason        string
	ReferenceDate TimePoint
	Actor         string
	Entities      int
	Created       int
	Skipped       int
	Failed        int
	Errors        []string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// RunLog stores run history. Append-only.
type RunLog interface {
	SaveRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, kind Kind, limit int) ([]RunRecord, error)
}

// =============================================================================
// INBOX - In-app notifications for owners
// =============================================================================

type Notification struct {
	ID        string
	Recipient string
	Title     string
	Message   string
	Type      string
	CreatedBy string
	CreatedAt time.Time
}

type Inbox interface {
	SaveNotification(ctx context.Context, n Notification) error
}
