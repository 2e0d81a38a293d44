/*
recompute.go - Entry set -> DayAggregate projection

PURPOSE:
  Turns the raw ledger entries for one (habit, day) slot into a single
  derived aggregate record, idempotently. Runs synchronously after every
  entry create/update/delete.

INVARIANTS:
  1. IDEMPOTENT: recomputing an unchanged entry set yields an identical
     aggregate. The aggregate carries no timestamps for this reason.
  2. TOMBSTONE: when no active entries remain for the slot, the aggregate
     is deleted, never left present-with-false-values.
  3. NEVER TRUTH: the aggregate is always reproducible from the entries;
     discarding it is always safe.

SOURCE SELECTION:
  Routine-sourced entries take display precedence even when not last;
  otherwise the most recent TimestampUTC wins.

CRASH SAFETY (see also service.go):
  An entry write followed by a crash before recompute leaves a stale-but-
  safe aggregate. It self-heals on the next write to the slot, or via the
  reconciliation sweep.
*/
package habit

import (
	"context"
	"errors"
)

// Recomputer re-derives the day aggregate for a (habit, day) slot.
type Recomputer struct {
	Entries    EntryStore
	Aggregates AggregateStore
	Habits     HabitDirectory
}

func NewRecomputer(entries EntryStore, aggregates AggregateStore, habits HabitDirectory) *Recomputer {
	return &Recomputer{Entries: entries, Aggregates: aggregates, Habits: habits}
}

// Recompute replaces the aggregate for (habitID, day) from the active entry
// set. Returns nil (and deletes any stored aggregate) when the slot has no
// active entries.
func (r *Recomputer) Recompute(ctx context.Context, habitID string, day DayKey, userID string) (*DayAggregate, error) {
	entries, err := r.Entries.FindActiveForDay(ctx, habitID, day)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		// Tombstone cleanup: an aggregate must never exist for an empty day.
		if err := r.Aggregates.Delete(ctx, habitID, day); err != nil {
			return nil, err
		}
		return nil, nil
	}

	h, err := r.Habits.GetHabit(ctx, habitID)
	if err != nil {
		if errors.Is(err, ErrHabitNotFound) {
			// Entries exist for a habit that doesn't. Referential integrity
			// was violated upstream; fatal for this request.
			return nil, &RecomputeInconsistencyError{HabitID: habitID, DayKey: day}
		}
		return nil, err
	}

	agg := BuildAggregate(*h, day, entries)
	agg.UserID = userID
	if err := r.Aggregates.Upsert(ctx, agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

// BuildAggregate derives the aggregate value for a non-empty entry set.
// Pure; shared with the reconciliation sweep and tests.
func BuildAggregate(h Habit, day DayKey, entries []Entry) DayAggregate {
	return DayAggregate{
		HabitID:   h.ID,
		UserID:    h.UserID,
		DayKey:    day,
		Value:     DayValue(entries),
		Completed: DayCompleted(h, entries),
		Source:    aggregateSource(entries),
		IsFrozen:  DayFrozen(entries),
	}
}

// aggregateSource picks the display source: routine first, then the entry
// with the most recent audit timestamp.
func aggregateSource(entries []Entry) EntrySource {
	var best *Entry
	for i := range entries {
		e := &entries[i]
		if !e.Active() {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		bestRoutine := best.Source == SourceRoutine
		eRoutine := e.Source == SourceRoutine
		switch {
		case eRoutine && !bestRoutine:
			best = e
		case eRoutine == bestRoutine && e.TimestampUTC.After(best.TimestampUTC):
			best = e
		}
	}
	if best == nil {
		return ""
	}
	return best.Source
}
