/*
freeze.go - Automatic streak protection

PURPOSE:
  Once per day-boundary crossing, inspect yesterday's slot for each daily
  habit and, under a bounded inventory, insert a freeze-marker entry that
  preserves an at-risk streak. A freeze extends streak continuity but never
  counts as real work anywhere else (dashboards, completion counts).

WHEN DOES A FREEZE APPLY?
  - daily cadence, and
  - yesterday has NO active entries, and
  - the habit's freeze inventory is > 0, and
  - the day BEFORE yesterday has at least one active entry (there was a
    real streak worth protecting).

IDEMPOTENCE:
  The inserted marker makes yesterday non-empty, so running the procedure
  twice for the same boundary is a no-op. At most one marker per missed day,
  and the inventory never goes below zero.

BEST-EFFORT:
  This is a streak-preservation heuristic, not a correctness-critical path.
  Per-habit failures are logged and swallowed; they must never block the
  surrounding flow.
*/
package habit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// DefaultFreezeCap is the default bound on a habit's freeze inventory.
const DefaultFreezeCap = 3

// Freezer applies freeze markers through the validated ledger and keeps the
// affected day aggregates fresh.
type Freezer struct {
	Ledger     *Ledger
	Recomputer *Recomputer
	Habits     HabitDirectory
}

func NewFreezer(ledger *Ledger, rec *Recomputer, habits HabitDirectory) *Freezer {
	return &Freezer{Ledger: ledger, Recomputer: rec, Habits: habits}
}

// ProcessAutoFreezes runs the auto-freeze heuristic for every daily habit in
// the set, relative to an explicit "today". Errors are logged, never
// returned.
func (f *Freezer) ProcessAutoFreezes(ctx context.Context, habits []Habit, userID string, today DayKey) {
	yesterday := today.AddDays(-1)
	for _, h := range habits {
		if h.Cadence != CadenceDaily || h.Archived {
			continue
		}
		if err := f.freezeIfMissed(ctx, h, userID, yesterday); err != nil {
			log.Printf("[Freeze] habit %s day %s: %v", h.ID, yesterday, err)
		}
	}
}

func (f *Freezer) freezeIfMissed(ctx context.Context, h Habit, userID string, day DayKey) error {
	if h.FreezesLeft <= 0 {
		return nil
	}

	missed, err := f.Ledger.Entries.FindActiveForDay(ctx, h.ID, day)
	if err != nil {
		return err
	}
	if len(missed) > 0 {
		return nil // worked, or already frozen
	}

	prior, err := f.Ledger.Entries.FindActiveForDay(ctx, h.ID, day.AddDays(-1))
	if err != nil {
		return err
	}
	if len(prior) == 0 {
		return nil // no streak worth protecting
	}

	return f.Apply(ctx, h, userID, day)
}

// Apply inserts one freeze marker for the day and decrements the habit's
// inventory. Also used by the manual freeze endpoint; the inventory bound
// is enforced here in both paths.
func (f *Freezer) Apply(ctx context.Context, h Habit, userID string, day DayKey) error {
	if h.FreezesLeft <= 0 {
		return &ValidationError{Field: "freezesLeft", Message: "no freezes left"}
	}

	// Decrement first: ConsumeFreeze fails at zero, so a double-submit
	// cannot mint a marker without inventory.
	if err := f.Habits.ConsumeFreeze(ctx, h.ID); err != nil {
		return err
	}

	marker := Entry{
		ID:           uuid.NewString(),
		HabitID:      h.ID,
		UserID:       userID,
		DayKey:       day,
		TimestampUTC: time.Now().UTC(),
		Source:       SourceSystem,
		Note:         FreezeNote,
	}
	if err := f.Ledger.Append(ctx, marker); err != nil {
		// The marker never landed; hand the freeze back.
		if rerr := f.Habits.RestoreFreeze(ctx, h.ID); rerr != nil {
			log.Printf("[Freeze] habit %s: failed to restore inventory: %v", h.ID, rerr)
		}
		return err
	}

	if _, err := f.Recomputer.Recompute(ctx, h.ID, day, userID); err != nil {
		return err
	}
	return nil
}
