/*
Package habit provides the ledger-and-derived-state engine for a habit tracker.

PURPOSE:
  Users log discrete completions ("entries") for habits with daily, weekly or
  cumulative cadences. The engine answers "is this habit done today", "what is
  my current streak", "did I satisfy this week's target" and "how did this
  category perform this month" - always by recomputing from the ledger, never
  by trusting a stale cache.

TWO LAYERS:
  1. The LEDGER: an append-mostly record of immutable completion events.
     Entries are soft-deleted, never physically removed, preserving the
     audit trail.
  2. DERIVED STATE: day aggregates, streak metrics and dashboards, all of
     which are pure projections of the active entry set. A derived record is
     always safe to discard and regenerate.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: a single completion event, tagged with a canonical DayKey
  - Habit: the goal definition (consumed read-only, owned elsewhere)
  - DayAggregate: derived per-habit-per-day summary (cache, never truth)
  - StreakMetrics: derived streak/weekly-progress answer (never persisted)

DESIGN PRINCIPLES:
  1. Entries are the source of truth; aggregates must be byte-reproducible
  2. Precision: decimal.Decimal for numeric contributions and targets
  3. Completion is COMPUTED, never stored on an entry - the Entry type has
     no completed field at all
  4. All calculators take an explicit reference day; nothing reads the
     process clock

SEE ALSO:
  - ledger.go: entry validation and soft delete
  - recompute.go: entry set -> DayAggregate projection
  - streak.go: day states -> StreakMetrics
*/
package habit

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY - One completion event in the ledger
// =============================================================================

type EntrySource string

const (
	SourceManual  EntrySource = "manual"
	SourceRoutine EntrySource = "routine"
	SourceImport  EntrySource = "import"
	SourceSystem  EntrySource = "system" // freeze markers
)

// FreezeNote marks an entry as a streak-freeze marker. A freeze protects
// streak continuity for a missed day without counting as real work.
const FreezeNote = "streak-freeze"

// Entry is an immutable completion event, except for two mutable fields:
// Value, and (rarely) DayKey when a user moves a log to another day.
// Deletion is a state transition: DeletedAt is set, the row stays.
type Entry struct {
	ID      string
	HabitID string
	UserID  string
	DayKey  DayKey
	Value   *decimal.Decimal // numeric contribution; nil for boolean logs

	// Informational/audit only. NEVER used for grouping - DayKey is the
	// only grouping axis.
	TimestampUTC time.Time

	Source EntrySource
	Note   string

	// Composite (choice bundle) selectors. A choice entry carries exactly
	// one of these.
	BundleOptionID     string
	ChoiceChildHabitID string

	DeletedAt *time.Time
}

func (e Entry) Active() bool   { return e.DeletedAt == nil }
func (e Entry) IsFreeze() bool { return e.Note == FreezeNote }

// Contribution returns the entry's numeric contribution to its day.
// A boolean log (no value) contributes 1; a freeze marker contributes 0.
func (e Entry) Contribution() decimal.Decimal {
	if e.IsFreeze() {
		return decimal.Zero
	}
	if e.Value == nil {
		return decimal.NewFromInt(1)
	}
	return *e.Value
}

// =============================================================================
// HABIT - Goal definition (consumed, not owned)
// =============================================================================

type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceTotal  Cadence = "total" // cumulative
)

type GoalType string

const (
	GoalBoolean GoalType = "boolean"
	GoalNumber  GoalType = "number"
)

type BundleType string

const (
	BundleNone      BundleType = ""
	BundleChoice    BundleType = "choice"    // satisfied by one selected option
	BundleChecklist BundleType = "checklist" // satisfied by completing all children
)

type OptionMetric string

const (
	MetricOptional OptionMetric = ""         // value allowed but not required
	MetricRequired OptionMetric = "required" // entry must carry a value
	MetricNone     OptionMetric = "none"     // entry must not carry a value
)

// BundleOption is one selectable child of a choice bundle.
type BundleOption struct {
	ID           string
	ChildHabitID string
	Name         string
	Metric       OptionMetric
}

// Habit is the goal definition. Habit CRUD is owned by an external
// collaborator; this engine treats it as read-only input.
type Habit struct {
	ID         string
	UserID     string
	CategoryID string
	Name       string
	Cadence    Cadence
	GoalType   GoalType
	Target     decimal.Decimal // required for number goals and weekly cadence
	Unit       string
	Archived   bool

	// Streak-protection inventory. Bounded; default cap 3.
	FreezesLeft int

	BundleType BundleType
	Options    []BundleOption
}

func (h Habit) IsBundleParent() bool { return h.BundleType != BundleNone }

// OptionByID resolves either selector form (legacy option ID or current
// child-habit ID). Returns nil when no option matches.
func (h Habit) OptionByID(bundleOptionID, choiceChildHabitID string) *BundleOption {
	for i := range h.Options {
		o := &h.Options[i]
		if bundleOptionID != "" && o.ID == bundleOptionID {
			return o
		}
		if choiceChildHabitID != "" && o.ChildHabitID == choiceChildHabitID {
			return o
		}
	}
	return nil
}

// Category is a grouping label on habits, consumed only for rollups.
type Category struct {
	ID     string
	UserID string
	Name   string
}

// =============================================================================
// DAY AGGREGATE - Derived per-habit-per-day summary (cache, never truth)
// =============================================================================

// DayAggregate summarizes one habit's activity on one day. It must always be
// exactly reproducible from the active entry set for (HabitID, DayKey); when
// no active entries remain the aggregate is deleted, never left stale.
//
// The struct carries no timestamps so that recomputing an unchanged entry
// set produces an identical value.
type DayAggregate struct {
	HabitID   string
	UserID    string
	DayKey    DayKey
	Value     decimal.Decimal
	Completed bool
	Source    EntrySource
	IsFrozen  bool
}

// =============================================================================
// STREAK METRICS - Derived, ephemeral (computed per query, never persisted)
// =============================================================================

// DayState is the per-day input to the streak calculator: one habit's state
// on one day, as produced by the recompute rule.
type DayState struct {
	DayKey    DayKey
	Value     decimal.Decimal
	Completed bool
	IsFrozen  bool
}

// StreakMetrics answers the streak questions for one habit relative to an
// explicit reference day.
type StreakMetrics struct {
	CurrentStreak       int
	BestStreak          int
	LastCompletedDayKey DayKey
	CompletedToday      bool
	AtRisk              bool

	// Weekly cadence only.
	WeekSatisfied bool
	WeekProgress  decimal.Decimal
	WeekTarget    decimal.Decimal
}
