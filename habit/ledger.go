/*
ledger.go - Validated entry ledger

PURPOSE:
  Wraps the raw EntryStore with the business rules an entry must satisfy
  before it may touch the ledger. The store stays dumb; this wrapper is the
  single write path.

WHAT IT CHECKS:
  1. Day key is canonical and calendar-valid.
  2. Choice-bundle entries carry exactly one selector (legacy bundleOptionId
     or current choiceChildHabitId) and it resolves to a known option.
  3. Option metric rules: a "required metric" option must carry a numeric
     value; a "no metric" option must not.
  4. No derived fields: completion is computed, never stored. The Entry type
     has no completed field (type-level enforcement); AssertNoDerivedFields
     additionally rejects raw payloads that try to smuggle one in.

SOFT DELETE:
  Deletion is a state transition (active -> deleted) on an otherwise
  immutable record. The row stays forever; every active read filters it out.

MUTABILITY:
  Committed entries allow exactly two meaningful mutations: Value, and
  DayKey (a user "moves" a log). Moving invalidates two day slots - the
  recompute engine handles both (see service.go).

SEE ALSO:
  - completion.go: what the entries mean once they're in
  - recompute.go: the projection that runs after every write
*/
package habit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// derivedFields are aggregate-only attributes that must never be accepted in
// an entry write payload.
var derivedFields = []string{"completed", "isFrozen", "is_frozen", "streak", "aggregateValue"}

// AssertNoDerivedFields rejects raw payloads that try to set derived-only
// state directly. Writing is otherwise intentionally permissive.
func AssertNoDerivedFields(payload map[string]any) error {
	for _, f := range derivedFields {
		if _, ok := payload[f]; ok {
			return &ValidationError{Field: f, Message: "derived field cannot be written; completion is computed from entries"}
		}
	}
	return nil
}

// Ledger is the validated write path for entries.
type Ledger struct {
	Entries EntryStore
	Habits  HabitDirectory
}

func NewLedger(entries EntryStore, habits HabitDirectory) *Ledger {
	return &Ledger{Entries: entries, Habits: habits}
}

// Append validates and persists a new entry.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	h, err := l.Habits.GetHabit(ctx, e.HabitID)
	if err != nil {
		return err
	}
	if err := ValidateEntry(*h, e); err != nil {
		return err
	}
	return l.Entries.Insert(ctx, e)
}

// EntryPatch carries the mutable fields of an update. Nil means unchanged;
// ClearValue distinguishes "set value to nil" from "leave value alone".
type EntryPatch struct {
	Value      *decimal.Decimal
	ClearValue bool
	DayKey     *DayKey
	Note       *string
}

// Apply merges the patch into a copy of the entry and re-validates against
// the habit definition. Returns the updated entry and the previous day key
// (callers must recompute both slots when they differ).
func (l *Ledger) Apply(ctx context.Context, id string, patch EntryPatch) (updated *Entry, oldDay DayKey, err error) {
	stored, err := l.Entries.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !stored.Active() {
		return nil, "", &NotFoundError{Kind: "entry", ID: id}
	}

	h, err := l.Habits.GetHabit(ctx, stored.HabitID)
	if err != nil {
		return nil, "", err
	}

	next := *stored
	oldDay = stored.DayKey
	if patch.DayKey != nil {
		if !patch.DayKey.Valid() {
			return nil, "", &ValidationError{Field: "dayKey", Message: fmt.Sprintf("invalid day key %q", *patch.DayKey)}
		}
		next.DayKey = *patch.DayKey
	}
	if patch.ClearValue {
		next.Value = nil
	} else if patch.Value != nil {
		v := *patch.Value
		next.Value = &v
	}
	if patch.Note != nil {
		next.Note = *patch.Note
	}

	if err := ValidateEntry(*h, next); err != nil {
		return nil, "", err
	}
	if err := l.Entries.Update(ctx, next); err != nil {
		return nil, "", err
	}
	return &next, oldDay, nil
}

// SoftDelete marks the entry deleted and returns it (the caller needs the
// day key to recompute the slot).
func (l *Ledger) SoftDelete(ctx context.Context, id string, at time.Time) (*Entry, error) {
	stored, err := l.Entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stored.Active() {
		return nil, &NotFoundError{Kind: "entry", ID: id}
	}
	if err := l.Entries.SoftDelete(ctx, id, at); err != nil {
		return nil, err
	}
	stored.DeletedAt = &at
	return stored, nil
}

// =============================================================================
// ENTRY VALIDATION
// =============================================================================

// ValidateEntry checks an entry against its habit's goal definition.
func ValidateEntry(h Habit, e Entry) error {
	if !e.DayKey.Valid() {
		return &ValidationError{Field: "dayKey", Message: fmt.Sprintf("invalid day key %q", e.DayKey)}
	}
	if e.Source == "" {
		return &ValidationError{Field: "source", Message: "source is required"}
	}

	// Freeze markers bypass bundle rules: they carry no work.
	if e.IsFreeze() {
		if e.Value != nil && !e.Value.IsZero() {
			return &ValidationError{Field: "value", Message: "freeze marker must have zero value"}
		}
		return nil
	}

	if h.BundleType == BundleChoice {
		return validateChoiceEntry(h, e)
	}

	if e.BundleOptionID != "" || e.ChoiceChildHabitID != "" {
		return &ValidationError{Field: "bundleOptionId", Message: "selector given for a non-choice habit"}
	}
	return nil
}

func validateChoiceEntry(h Habit, e Entry) error {
	hasLegacy := e.BundleOptionID != ""
	hasCurrent := e.ChoiceChildHabitID != ""
	if hasLegacy == hasCurrent { // both or neither
		return &ValidationError{Field: "choiceChildHabitId", Message: "choice entry must carry exactly one selector"}
	}

	opt := h.OptionByID(e.BundleOptionID, e.ChoiceChildHabitID)
	if opt == nil {
		sel := e.BundleOptionID + e.ChoiceChildHabitID
		return &ValidationError{Field: "choiceChildHabitId", Message: fmt.Sprintf("unknown bundle option %q", sel)}
	}

	switch opt.Metric {
	case MetricRequired:
		if e.Value == nil {
			return &ValidationError{Field: opt.Name, Message: "option requires a numeric value"}
		}
	case MetricNone:
		if e.Value != nil {
			return &ValidationError{Field: opt.Name, Message: "option does not take a value"}
		}
	}
	return nil
}
