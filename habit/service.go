/*
service.go - Entry write orchestration

PURPOSE:
  The operations the surrounding web-API layer calls. Each ledger mutation
  is followed by one or two SYNCHRONOUS recompute calls in the same logical
  request; a dayKey move recomputes both the old and the new slot so a moved
  entry never leaves a stale aggregate behind.

CRASH SEMANTICS:
  The write and the recompute are not one transaction. If recompute fails
  after a successful ledger write, the write is NOT rolled back - entries
  are the source of truth and are never lost to fix a derived cache - but
  the error is surfaced so the caller knows the aggregate may be stale.
  Reconcile sweeps the gap closed.

RESOURCE SAFETY:
  Every operation runs under a bounded timeout around its store calls. This
  is an operational guard, not a protocol feature; cancellation semantics
  belong to the transport layer.
*/
package habit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service wires the ledger, recompute engine and calculators into the
// operation shapes the API layer consumes.
type Service struct {
	Ledger     *Ledger
	Recomputer *Recomputer
	Freezer    *Freezer
	Habits     HabitDirectory

	// OpTimeout bounds each operation's store work.
	OpTimeout time.Duration
}

func NewService(entries EntryStore, aggregates AggregateStore, habits HabitDirectory) *Service {
	ledger := NewLedger(entries, habits)
	rec := NewRecomputer(entries, aggregates, habits)
	return &Service{
		Ledger:     ledger,
		Recomputer: rec,
		Freezer:    NewFreezer(ledger, rec, habits),
		Habits:     habits,
		OpTimeout:  10 * time.Second,
	}
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.OpTimeout)
}

// CreateEntryInput is the validated-at-ingress shape of an entry write.
type CreateEntryInput struct {
	HabitID string
	Time    EntryTimeInput
	Value   *decimal.Decimal
	Source  EntrySource
	Note    string

	BundleOptionID     string
	ChoiceChildHabitID string
}

// CreateEntry validates, normalizes the day key, persists and recomputes.
// Deprecation warnings from legacy date input are logged here.
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryInput, userID string) (*Entry, *DayAggregate, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	day, warnings, err := NormalizeEntryInput(in.Time)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		log.Printf("[Ledger] habit %s: %s", in.HabitID, w)
	}

	source := in.Source
	if source == "" {
		source = SourceManual
	}

	e := Entry{
		ID:                 uuid.NewString(),
		HabitID:            in.HabitID,
		UserID:             userID,
		DayKey:             day,
		Value:              in.Value,
		TimestampUTC:       time.Now().UTC(),
		Source:             source,
		Note:               in.Note,
		BundleOptionID:     in.BundleOptionID,
		ChoiceChildHabitID: in.ChoiceChildHabitID,
	}
	if in.Time.Timestamp != nil {
		e.TimestampUTC = in.Time.Timestamp.UTC()
	}

	if err := s.Ledger.Append(ctx, e); err != nil {
		return nil, nil, err
	}

	agg, err := s.Recomputer.Recompute(ctx, e.HabitID, e.DayKey, userID)
	if err != nil {
		// Entry is committed; surface the recompute failure without undoing
		// the write.
		return &e, nil, err
	}
	return &e, agg, nil
}

// UpdateEntry applies a patch and recomputes every affected slot. When the
// day key changes, the old slot is recomputed first, then the new one; both
// run even if the first fails, and the first error wins.
func (s *Service) UpdateEntry(ctx context.Context, id string, patch EntryPatch, userID string) (*Entry, *DayAggregate, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	updated, oldDay, err := s.Ledger.Apply(ctx, id, patch)
	if err != nil {
		return nil, nil, err
	}

	var firstErr error
	if oldDay != updated.DayKey {
		if _, err := s.Recomputer.Recompute(ctx, updated.HabitID, oldDay, userID); err != nil {
			firstErr = err
		}
	}
	agg, err := s.Recomputer.Recompute(ctx, updated.HabitID, updated.DayKey, userID)
	if firstErr == nil {
		firstErr = err
	}
	return updated, agg, firstErr
}

// DeleteEntry soft-deletes and recomputes the slot. The returned aggregate
// is nil when the deletion emptied the day (tombstone property).
func (s *Service) DeleteEntry(ctx context.Context, id string, userID string) (*DayAggregate, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	deleted, err := s.Ledger.SoftDelete(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.Recomputer.Recompute(ctx, deleted.HabitID, deleted.DayKey, userID)
}

// StreakFor fetches a bounded entry range for the habit, derives per-day
// states with the shared completion rule, and runs the pure calculator.
// lookbackDays bounds the fetch; <= 0 means one year.
func (s *Service) StreakFor(ctx context.Context, habitID string, today DayKey, lookbackDays int) (*StreakMetrics, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	h, err := s.Habits.GetHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if lookbackDays <= 0 {
		lookbackDays = 366
	}

	entries, err := s.Ledger.Entries.FindActiveInRange(ctx, habitID, today.AddDays(-lookbackDays), today)
	if err != nil {
		return nil, err
	}

	states := DayStatesFromEntries(*h, entries)
	m := CalculateStreak(*h, states, today)
	return &m, nil
}

// DayStatesFromEntries groups active entries by day and applies the
// completion rule, producing the calculator's input.
func DayStatesFromEntries(h Habit, entries []Entry) []DayState {
	byDay := make(map[DayKey][]Entry)
	for _, e := range entries {
		if e.Active() {
			byDay[e.DayKey] = append(byDay[e.DayKey], e)
		}
	}
	states := make([]DayState, 0, len(byDay))
	for d, es := range byDay {
		states = append(states, DayState{
			DayKey:    d,
			Value:     DayValue(es),
			Completed: DayCompleted(h, es),
			IsFrozen:  DayFrozen(es),
		})
	}
	return states
}

// Dashboard fetches the user's habits, categories and the month's entries
// (widened to the full ISO weeks overlapping the month, so week rollups at
// the edges see their out-of-month days) and runs the pure builder.
func (s *Service) Dashboard(ctx context.Context, userID string, q DashboardQuery) (*DashboardResponse, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	first, err := ParseMonthKey(q.Month)
	if err != nil {
		return nil, err
	}
	days := MonthDays(first)
	start := first.WeekStart()
	end := days[len(days)-1].WeekStart().AddDays(6)

	habits, err := s.Habits.ListHabitsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	categories, err := s.Habits.ListCategoriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, h := range habits {
		es, err := s.Ledger.Entries.FindActiveInRange(ctx, h.ID, start, end)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	}
	return BuildDashboard(habits, categories, entries, q)
}

// RunAutoFreeze executes the best-effort freeze pass for the user.
func (s *Service) RunAutoFreeze(ctx context.Context, userID string, today DayKey) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	habits, err := s.Habits.ListHabitsByUser(ctx, userID)
	if err != nil {
		return err
	}
	s.Freezer.ProcessAutoFreezes(ctx, habits, userID, today)
	return nil
}

// Reconcile heals the aggregate cache: every (habit, day) slot that has
// active entries gets a fresh recompute, and aggregates whose slots turn
// out empty are tombstoned by the same call. Returns the number of slots
// touched.
func (s *Service) Reconcile(ctx context.Context, userID string) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	entries, err := s.Ledger.Entries.FindAllForUser(ctx, userID, false)
	if err != nil {
		return 0, err
	}

	type slot struct {
		habitID string
		day     DayKey
	}
	seen := make(map[slot]bool)
	touched := 0
	for _, e := range entries {
		k := slot{e.HabitID, e.DayKey}
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, err := s.Recomputer.Recompute(ctx, k.habitID, k.day, userID); err != nil {
			return touched, err
		}
		touched++
	}

	// The other direction: aggregates whose entries are all gone. Recompute
	// tombstones them.
	habits, err := s.Habits.ListHabitsByUser(ctx, userID)
	if err != nil {
		return touched, err
	}
	for _, h := range habits {
		aggs, err := s.Recomputer.Aggregates.ListForHabit(ctx, h.ID, DayKey("0000-01-01"), DayKey("9999-12-31"))
		if err != nil {
			return touched, err
		}
		for _, a := range aggs {
			k := slot{a.HabitID, a.DayKey}
			if seen[k] {
				continue
			}
			seen[k] = true
			if _, err := s.Recomputer.Recompute(ctx, k.habitID, k.day, userID); err != nil {
				return touched, err
			}
			touched++
		}
	}
	return touched, nil
}
