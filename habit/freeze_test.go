package habit_test

import (
	"context"
	"testing"

	"github.com/ember/habit-engine/habit"
	"github.com/ember/habit-engine/habit/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestFreezer() (*habit.Freezer, *store.Memory) {
	mem := store.NewMemory()
	ledger := habit.NewLedger(mem, mem)
	rec := habit.NewRecomputer(mem, mem, mem)
	return habit.NewFreezer(ledger, rec, mem), mem
}

func seedFreezeHabit(mem *store.Memory, freezes int) habit.Habit {
	h := dailyHabit()
	h.FreezesLeft = freezes
	mem.PutHabit(h)
	return h
}

func activeOn(t *testing.T, mem *store.Memory, habitID string, day habit.DayKey) []habit.Entry {
	t.Helper()
	entries, err := mem.FindActiveForDay(context.Background(), habitID, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return entries
}

// =============================================================================
// AUTO-FREEZE TESTS
// =============================================================================

func TestAutoFreeze_ProtectsMissedDay(t *testing.T) {
	// GIVEN: work on the 18th, nothing on the 19th, inventory available
	// WHEN: the boundary pass runs on the 20th
	// THEN: exactly one marker lands on the 19th and it reads as frozen

	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, habit.DefaultFreezeCap)
	ctx := context.Background()

	mem.Insert(ctx, entryOn(h.ID, "2026-02-18", "e-1"))

	f.ProcessAutoFreezes(ctx, []habit.Habit{h}, "u-1", "2026-02-20")

	markers := activeOn(t, mem, h.ID, "2026-02-19")
	if len(markers) != 1 {
		t.Fatalf("expected 1 freeze marker, got %d", len(markers))
	}
	if !markers[0].IsFreeze() || markers[0].Source != habit.SourceSystem {
		t.Errorf("unexpected marker: %+v", markers[0])
	}

	agg, err := mem.Get(ctx, h.ID, "2026-02-19")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg == nil || !agg.IsFrozen {
		t.Errorf("expected a frozen aggregate, got %+v", agg)
	}

	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != habit.DefaultFreezeCap-1 {
		t.Errorf("expected inventory decremented to %d, got %d", habit.DefaultFreezeCap-1, got.FreezesLeft)
	}
}

func TestAutoFreeze_RerunIsNoOp(t *testing.T) {
	// The marker makes yesterday non-empty: a second pass for the same
	// boundary must neither add a marker nor spend inventory.

	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 2)
	ctx := context.Background()

	mem.Insert(ctx, entryOn(h.ID, "2026-02-18", "e-1"))

	f.ProcessAutoFreezes(ctx, []habit.Habit{h}, "u-1", "2026-02-20")
	h2, _ := mem.GetHabit(ctx, h.ID)
	f.ProcessAutoFreezes(ctx, []habit.Habit{*h2}, "u-1", "2026-02-20")

	if markers := activeOn(t, mem, h.ID, "2026-02-19"); len(markers) != 1 {
		t.Errorf("expected exactly 1 marker after rerun, got %d", len(markers))
	}
	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 1 {
		t.Errorf("expected inventory 1 after rerun, got %d", got.FreezesLeft)
	}
}

func TestAutoFreeze_NoStreakNoFreeze(t *testing.T) {
	// Nothing on the day before yesterday: there is no streak worth
	// protecting, inventory stays.

	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 3)
	ctx := context.Background()

	f.ProcessAutoFreezes(ctx, []habit.Habit{h}, "u-1", "2026-02-20")

	if markers := activeOn(t, mem, h.ID, "2026-02-19"); len(markers) != 0 {
		t.Errorf("expected no marker, got %d", len(markers))
	}
	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 3 {
		t.Errorf("expected inventory untouched, got %d", got.FreezesLeft)
	}
}

func TestAutoFreeze_WorkedYesterdayNoFreeze(t *testing.T) {
	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 3)
	ctx := context.Background()

	mem.Insert(ctx, entryOn(h.ID, "2026-02-18", "e-1"))
	mem.Insert(ctx, entryOn(h.ID, "2026-02-19", "e-2"))

	f.ProcessAutoFreezes(ctx, []habit.Habit{h}, "u-1", "2026-02-20")

	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 3 {
		t.Errorf("expected inventory untouched, got %d", got.FreezesLeft)
	}
}

func TestAutoFreeze_ExhaustedInventory(t *testing.T) {
	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 0)
	ctx := context.Background()

	mem.Insert(ctx, entryOn(h.ID, "2026-02-18", "e-1"))

	f.ProcessAutoFreezes(ctx, []habit.Habit{h}, "u-1", "2026-02-20")

	if markers := activeOn(t, mem, h.ID, "2026-02-19"); len(markers) != 0 {
		t.Errorf("expected no marker without inventory, got %d", len(markers))
	}
	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 0 {
		t.Errorf("inventory must never go below zero, got %d", got.FreezesLeft)
	}
}

func TestAutoFreeze_SkipsWeeklyAndArchived(t *testing.T) {
	f, mem := newTestFreezer()
	ctx := context.Background()

	weekly := weeklyHabit(3)
	weekly.FreezesLeft = 3
	mem.PutHabit(weekly)
	mem.Insert(ctx, entryOn(weekly.ID, "2026-02-18", "e-1"))

	archived := dailyHabit()
	archived.ID = "h-archived"
	archived.Archived = true
	archived.FreezesLeft = 3
	mem.PutHabit(archived)
	mem.Insert(ctx, entryOn(archived.ID, "2026-02-18", "e-2"))

	f.ProcessAutoFreezes(ctx, []habit.Habit{weekly, archived}, "u-1", "2026-02-20")

	if markers := activeOn(t, mem, weekly.ID, "2026-02-19"); len(markers) != 0 {
		t.Error("weekly habits must not be auto-frozen")
	}
	if markers := activeOn(t, mem, archived.ID, "2026-02-19"); len(markers) != 0 {
		t.Error("archived habits must not be auto-frozen")
	}
}

// =============================================================================
// MANUAL FREEZE TESTS
// =============================================================================

func TestFreezeApply_ManualSpendsInventory(t *testing.T) {
	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 1)
	ctx := context.Background()

	if err := f.Apply(ctx, h, "u-1", "2026-02-19"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 0 {
		t.Errorf("expected inventory 0, got %d", got.FreezesLeft)
	}

	// Inventory exhausted: the next apply is rejected client-side.
	err := f.Apply(ctx, *got, "u-1", "2026-02-18")
	if err == nil {
		t.Fatal("expected error at zero inventory")
	}
	if !habit.IsClientError(err) {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestFreezeApply_FailedInsertRestoresInventory(t *testing.T) {
	// GIVEN: inventory available but a day key the ledger will reject
	// WHEN: the marker insert fails after the decrement
	// THEN: the freeze is handed back and no marker exists

	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 2)
	ctx := context.Background()

	err := f.Apply(ctx, h, "u-1", "2026-02-30")
	if err == nil {
		t.Fatal("expected the ledger to reject the day key")
	}
	if !habit.IsClientError(err) {
		t.Errorf("expected client error, got %v", err)
	}

	got, _ := mem.GetHabit(ctx, h.ID)
	if got.FreezesLeft != 2 {
		t.Errorf("expected inventory restored to 2, got %d", got.FreezesLeft)
	}
	if markers := activeOn(t, mem, h.ID, "2026-02-30"); len(markers) != 0 {
		t.Errorf("expected no marker, got %d", len(markers))
	}
}

func TestFreezeApply_StaleInventoryCannotOverspend(t *testing.T) {
	// A caller holding a stale habit snapshot with FreezesLeft > 0 still
	// cannot mint a marker: the directory decrement is the gate.

	f, mem := newTestFreezer()
	h := seedFreezeHabit(mem, 1)
	ctx := context.Background()

	if err := f.Apply(ctx, h, "u-1", "2026-02-19"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// h still claims FreezesLeft == 1.
	err := f.Apply(ctx, h, "u-1", "2026-02-18")
	if err == nil {
		t.Fatal("expected stale snapshot to be rejected")
	}
	if markers := activeOn(t, mem, h.ID, "2026-02-18"); len(markers) != 0 {
		t.Errorf("expected no marker, got %d", len(markers))
	}
}
