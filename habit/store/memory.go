// Package store provides in-memory implementations of the engine's
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ember/habit-engine/habit"
)

// =============================================================================
// MEMORY STORE - Implements EntryStore, AggregateStore and HabitDirectory
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	entries    map[string]habit.Entry // by entry ID
	aggregates map[slotKey]habit.DayAggregate
	habits     map[string]habit.Habit
	categories map[string]habit.Category
}

type slotKey struct {
	HabitID string
	DayKey  habit.DayKey
}

func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string]habit.Entry),
		aggregates: make(map[slotKey]habit.DayAggregate),
		habits:     make(map[string]habit.Habit),
		categories: make(map[string]habit.Category),
	}
}

// Seed helpers for tests/dev. The habit/category definitions are owned by
// an external collaborator in production; here they're just maps.

func (m *Memory) PutHabit(h habit.Habit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.habits[h.ID] = h
}

func (m *Memory) PutCategory(c habit.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
}

// -----------------------------------------------------------------------------
// EntryStore
// -----------------------------------------------------------------------------

func (m *Memory) Insert(_ context.Context, e habit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) Update(_ context.Context, e habit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return &habit.NotFoundError{Kind: "entry", ID: e.ID}
	}
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &habit.NotFoundError{Kind: "entry", ID: id}
	}
	e.DeletedAt = &at
	m.entries[id] = e
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*habit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, &habit.NotFoundError{Kind: "entry", ID: id}
	}
	out := e
	return &out, nil
}

func (m *Memory) FindActiveForDay(_ context.Context, habitID string, day habit.DayKey) ([]habit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Entry
	for _, e := range m.entries {
		if e.HabitID == habitID && e.DayKey == day && e.Active() {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *Memory) FindActiveInRange(_ context.Context, habitID string, start, end habit.DayKey) ([]habit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Entry
	for _, e := range m.entries {
		if e.HabitID == habitID && e.Active() && !e.DayKey.Before(start) && !e.DayKey.After(end) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *Memory) FindAllForUser(_ context.Context, userID string, includeDeleted bool) ([]habit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Entry
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		if !includeDeleted && !e.Active() {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(es []habit.Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].DayKey != es[j].DayKey {
			return es[i].DayKey < es[j].DayKey
		}
		return es[i].TimestampUTC.Before(es[j].TimestampUTC)
	})
}

// -----------------------------------------------------------------------------
// AggregateStore
// -----------------------------------------------------------------------------

func (m *Memory) Upsert(_ context.Context, a habit.DayAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[slotKey{a.HabitID, a.DayKey}] = a
	return nil
}

func (m *Memory) Delete(_ context.Context, habitID string, day habit.DayKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aggregates, slotKey{habitID, day})
	return nil
}

func (m *Memory) Get(_ context.Context, habitID string, day habit.DayKey) (*habit.DayAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.aggregates[slotKey{habitID, day}]
	if !ok {
		return nil, nil
	}
	out := a
	return &out, nil
}

func (m *Memory) ListForHabit(_ context.Context, habitID string, start, end habit.DayKey) ([]habit.DayAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.DayAggregate
	for k, a := range m.aggregates {
		if k.HabitID == habitID && !k.DayKey.Before(start) && !k.DayKey.After(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayKey < out[j].DayKey })
	return out, nil
}

// -----------------------------------------------------------------------------
// HabitDirectory
// -----------------------------------------------------------------------------

func (m *Memory) GetHabit(_ context.Context, id string) (*habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.habits[id]
	if !ok {
		return nil, &habit.NotFoundError{Kind: "habit", ID: id}
	}
	out := h
	return &out, nil
}

func (m *Memory) ListHabitsByUser(_ context.Context, userID string) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Habit
	for _, h := range m.habits {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListCategoriesByUser(_ context.Context, userID string) ([]habit.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ConsumeFreeze(_ context.Context, habitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[habitID]
	if !ok {
		return &habit.NotFoundError{Kind: "habit", ID: habitID}
	}
	if h.FreezesLeft <= 0 {
		return &habit.ValidationError{Field: "freezesLeft", Message: "no freezes left"}
	}
	h.FreezesLeft--
	m.habits[habitID] = h
	return nil
}

func (m *Memory) RestoreFreeze(_ context.Context, habitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[habitID]
	if !ok {
		return &habit.NotFoundError{Kind: "habit", ID: habitID}
	}
	h.FreezesLeft++
	m.habits[habitID] = h
	return nil
}
