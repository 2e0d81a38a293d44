/*
store.go - Persistence interfaces for entries, aggregates and habit lookups

PURPOSE:
  Defines the boundary between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  EntryStore:     Ledger persistence (insert, update, soft delete, reads)
  AggregateStore: Day-aggregate cache (upsert, delete, reads)
  HabitDirectory: Read access to habit/category definitions owned by the
                  external CRUD collaborator, plus the freeze counter

APPEND-MOSTLY CONTRACT:
  Entries are never physically deleted. SoftDelete sets DeletedAt; every
  "active" read filters DeletedAt == nil. The full history (including
  deleted rows) stays available for audit.

DERIVED-STATE CONTRACT:
  The AggregateStore is a cache, not truth. Upsert is keyed by
  (habitID, dayKey); Delete removes the slot when no active entries remain.
  Only the recompute engine writes to it.

IMPLEMENTATIONS:
  - habit/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: production SQLite
*/
package habit

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY STORE - The ledger
// =============================================================================

type EntryStore interface {
	// Insert persists a new entry.
	Insert(ctx context.Context, e Entry) error

	// Update replaces a stored entry. Only Value, DayKey and Note are
	// expected to change; callers go through the ledger which enforces that.
	Update(ctx context.Context, e Entry) error

	// SoftDelete marks the entry deleted at the given instant.
	// The row is never removed.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// FindByID returns the entry (deleted or not), or NotFoundError.
	FindByID(ctx context.Context, id string) (*Entry, error)

	// FindActiveForDay returns active entries for (habitID, dayKey).
	FindActiveForDay(ctx context.Context, habitID string, day DayKey) ([]Entry, error)

	// FindActiveInRange returns active entries for habitID with
	// start <= DayKey <= end, ordered by DayKey.
	FindActiveInRange(ctx context.Context, habitID string, start, end DayKey) ([]Entry, error)

	// FindAllForUser returns every entry for the user, optionally including
	// soft-deleted rows (audit/history reads).
	FindAllForUser(ctx context.Context, userID string, includeDeleted bool) ([]Entry, error)
}

// =============================================================================
// AGGREGATE STORE - Derived cache (recompute engine writes, everyone reads)
// =============================================================================

type AggregateStore interface {
	// Upsert replaces the aggregate keyed by (HabitID, DayKey).
	Upsert(ctx context.Context, a DayAggregate) error

	// Delete removes the aggregate for the slot. Deleting a missing slot is
	// not an error (tombstone cleanup is idempotent).
	Delete(ctx context.Context, habitID string, day DayKey) error

	// Get returns the aggregate for the slot, or nil when absent.
	Get(ctx context.Context, habitID string, day DayKey) (*DayAggregate, error)

	// ListForHabit returns aggregates for habitID in [start, end],
	// ordered by DayKey.
	ListForHabit(ctx context.Context, habitID string, start, end DayKey) ([]DayAggregate, error)
}

// =============================================================================
// HABIT DIRECTORY - External collaborator (goal definitions, read-only here)
// =============================================================================

// HabitDirectory exposes the habit/category definitions owned by the
// excluded CRUD layer. The engine never creates or archives habits; the one
// thing it mutates is the freeze inventory counter.
type HabitDirectory interface {
	GetHabit(ctx context.Context, id string) (*Habit, error)
	ListHabitsByUser(ctx context.Context, userID string) ([]Habit, error)
	ListCategoriesByUser(ctx context.Context, userID string) ([]Category, error)

	// ConsumeFreeze decrements the habit's freeze inventory by one.
	// Fails (without going negative) when the inventory is already zero.
	ConsumeFreeze(ctx context.Context, habitID string) error

	// RestoreFreeze increments the inventory by one. Compensation for a
	// ConsumeFreeze whose follow-up marker insert failed.
	RestoreFreeze(ctx context.Context, habitID string) error
}
