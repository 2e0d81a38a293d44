package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember/habit-engine/habit"
	"github.com/ember/habit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedHabit(t *testing.T, store *sqlite.Store, freezes int) habit.Habit {
	h := habit.Habit{
		ID:          "h-1",
		UserID:      "u-1",
		CategoryID:  "cat-1",
		Name:        "Meditate",
		Cadence:     habit.CadenceDaily,
		GoalType:    habit.GoalBoolean,
		FreezesLeft: freezes,
	}
	require.NoError(t, store.SaveHabit(context.Background(), h))
	return h
}

func testEntry(id string, day habit.DayKey) habit.Entry {
	return habit.Entry{
		ID:           id,
		HabitID:      "h-1",
		UserID:       "u-1",
		DayKey:       day,
		TimestampUTC: time.Date(2026, time.February, 20, 8, 0, 0, 0, time.UTC),
		Source:       habit.SourceManual,
		Note:         "morning",
	}
}

// =============================================================================
// ENTRY STORE TESTS
// =============================================================================

func TestSQLite_Entry_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 0)

	val := decimal.NewFromFloat(2.5)
	e := testEntry("e-1", "2026-02-20")
	e.Value = &val
	require.NoError(t, store.Insert(ctx, e))

	got, err := store.FindByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, habit.DayKey("2026-02-20"), got.DayKey)
	assert.Equal(t, habit.SourceManual, got.Source)
	assert.Equal(t, "morning", got.Note)
	require.NotNil(t, got.Value)
	assert.True(t, got.Value.Equal(val))
	assert.True(t, got.Active())
}

func TestSQLite_Entry_FindByID_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByID(context.Background(), "e-ghost")
	require.Error(t, err)
	assert.True(t, habit.IsNotFound(err))
}

func TestSQLite_Entry_ActiveQueriesFilterDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 0)

	require.NoError(t, store.Insert(ctx, testEntry("e-1", "2026-02-20")))
	require.NoError(t, store.Insert(ctx, testEntry("e-2", "2026-02-20")))
	require.NoError(t, store.SoftDelete(ctx, "e-1", time.Now().UTC()))

	active, err := store.FindActiveForDay(ctx, "h-1", "2026-02-20")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "e-2", active[0].ID)

	// The deleted row survives for audit reads.
	all, err := store.FindAllForUser(ctx, "u-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := store.FindAllForUser(ctx, "u-1", false)
	require.NoError(t, err)
	assert.Len(t, activeOnly, 1)
}

func TestSQLite_Entry_SoftDeleteTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 0)

	require.NoError(t, store.Insert(ctx, testEntry("e-1", "2026-02-20")))
	require.NoError(t, store.SoftDelete(ctx, "e-1", time.Now().UTC()))

	err := store.SoftDelete(ctx, "e-1", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, habit.IsNotFound(err))
}

func TestSQLite_Entry_RangeQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 0)

	for i, day := range []habit.DayKey{"2026-02-17", "2026-02-19", "2026-02-21"} {
		e := testEntry("e-"+string(rune('a'+i)), day)
		require.NoError(t, store.Insert(ctx, e))
	}

	got, err := store.FindActiveInRange(ctx, "h-1", "2026-02-18", "2026-02-20")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, habit.DayKey("2026-02-19"), got[0].DayKey)
}

// =============================================================================
// AGGREGATE STORE TESTS
// =============================================================================

func TestSQLite_Aggregate_UpsertGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := habit.DayAggregate{
		HabitID:   "h-1",
		UserID:    "u-1",
		DayKey:    "2026-02-20",
		Value:     decimal.NewFromInt(3),
		Completed: true,
		Source:    habit.SourceManual,
	}
	require.NoError(t, store.Upsert(ctx, a))

	got, err := store.Get(ctx, "h-1", "2026-02-20")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Completed)
	assert.True(t, got.Value.Equal(decimal.NewFromInt(3)))

	// Upsert replaces in place.
	a.Completed = false
	a.Value = decimal.NewFromInt(1)
	require.NoError(t, store.Upsert(ctx, a))

	got, err = store.Get(ctx, "h-1", "2026-02-20")
	require.NoError(t, err)
	assert.False(t, got.Completed)

	require.NoError(t, store.Delete(ctx, "h-1", "2026-02-20"))
	got, err = store.Get(ctx, "h-1", "2026-02-20")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Aggregate_ListForHabit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, day := range []habit.DayKey{"2026-02-18", "2026-02-20", "2026-02-19"} {
		require.NoError(t, store.Upsert(ctx, habit.DayAggregate{
			HabitID: "h-1", UserID: "u-1", DayKey: day,
			Value: decimal.NewFromInt(1), Completed: true,
			Source: habit.SourceManual,
		}))
	}

	got, err := store.ListForHabit(ctx, "h-1", "2026-02-18", "2026-02-19")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, habit.DayKey("2026-02-18"), got[0].DayKey)
	assert.Equal(t, habit.DayKey("2026-02-19"), got[1].DayKey)
}

// =============================================================================
// HABIT DIRECTORY TESTS
// =============================================================================

func TestSQLite_Habit_RoundTripWithOptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h := habit.Habit{
		ID:         "h-bundle",
		UserID:     "u-1",
		Name:       "Workout",
		Cadence:    habit.CadenceDaily,
		GoalType:   habit.GoalBoolean,
		BundleType: habit.BundleChoice,
		Options: []habit.BundleOption{
			{ID: "opt-1", ChildHabitID: "h-run", Name: "Run", Metric: habit.MetricRequired},
			{ID: "opt-2", ChildHabitID: "h-yoga", Name: "Yoga", Metric: habit.MetricNone},
		},
	}
	require.NoError(t, store.SaveHabit(ctx, h))

	got, err := store.GetHabit(ctx, "h-bundle")
	require.NoError(t, err)
	assert.Equal(t, habit.BundleChoice, got.BundleType)
	require.Len(t, got.Options, 2)
	assert.Equal(t, habit.MetricRequired, got.Options[0].Metric)
	assert.Equal(t, "h-yoga", got.Options[1].ChildHabitID)
}

func TestSQLite_Habit_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetHabit(context.Background(), "h-ghost")
	require.Error(t, err)
	assert.True(t, habit.IsNotFound(err))
}

func TestSQLite_ConsumeFreeze_GuardsAtZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 1)

	require.NoError(t, store.ConsumeFreeze(ctx, "h-1"))

	got, err := store.GetHabit(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.FreezesLeft)

	err = store.ConsumeFreeze(ctx, "h-1")
	require.Error(t, err)
	assert.True(t, habit.IsClientError(err))

	got, err = store.GetHabit(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.FreezesLeft, "inventory must never go negative")
}

func TestSQLite_RestoreFreeze_HandsBackOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedHabit(t, store, 1)

	require.NoError(t, store.ConsumeFreeze(ctx, "h-1"))
	require.NoError(t, store.RestoreFreeze(ctx, "h-1"))

	got, err := store.GetHabit(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FreezesLeft)

	err = store.RestoreFreeze(ctx, "h-ghost")
	require.Error(t, err)
	assert.True(t, habit.IsNotFound(err))
}

func TestSQLite_ListUserIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedHabit(t, store, 0)
	other := habit.Habit{
		ID: "h-2", UserID: "u-2", Name: "Stretch",
		Cadence: habit.CadenceDaily, GoalType: habit.GoalBoolean,
	}
	require.NoError(t, store.SaveHabit(ctx, other))

	ids, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, ids)
}
