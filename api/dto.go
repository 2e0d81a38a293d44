/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Shape validation is done in handlers; semantic validation (day keys,
  bundle rules) lives in the habit package. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ember/habit-engine/habit"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateEntryRequest is the write payload for a completion entry.
// Time resolution priority: dayKey > date (deprecated) > timestamp+timeZone.
type CreateEntryRequest struct {
	HabitID   string           `json:"habitId"`
	DayKey    string           `json:"dayKey,omitempty"`
	Date      string           `json:"date,omitempty"` // deprecated
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	TimeZone  string           `json:"timeZone,omitempty"`
	Value     *decimal.Decimal `json:"value,omitempty"`
	Source    string           `json:"source,omitempty"`
	Note      string           `json:"note,omitempty"`

	BundleOptionID     string `json:"bundleOptionId,omitempty"`
	ChoiceChildHabitID string `json:"choiceChildHabitId,omitempty"`
}

// UpdateEntryRequest patches an existing entry. Null fields are unchanged;
// clearValue removes the numeric value.
type UpdateEntryRequest struct {
	Value      *decimal.Decimal `json:"value,omitempty"`
	ClearValue bool             `json:"clearValue,omitempty"`
	DayKey     *string          `json:"dayKey,omitempty"`
	Note       *string          `json:"note,omitempty"`
}

// FreezeRequest applies a manual freeze marker.
type FreezeRequest struct {
	DayKey string `json:"dayKey"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EntryDTO is an entry in API responses.
type EntryDTO struct {
	ID                 string           `json:"id"`
	HabitID            string           `json:"habitId"`
	DayKey             string           `json:"dayKey"`
	Value              *decimal.Decimal `json:"value,omitempty"`
	TimestampUTC       string           `json:"timestampUtc"`
	Source             string           `json:"source"`
	Note               string           `json:"note,omitempty"`
	BundleOptionID     string           `json:"bundleOptionId,omitempty"`
	ChoiceChildHabitID string           `json:"choiceChildHabitId,omitempty"`
	DeletedAt          *string          `json:"deletedAt,omitempty"`
}

// AggregateDTO is a day aggregate in API responses.
type AggregateDTO struct {
	HabitID   string          `json:"habitId"`
	DayKey    string          `json:"dayKey"`
	Value     decimal.Decimal `json:"value"`
	Completed bool            `json:"completed"`
	Source    string          `json:"source"`
	IsFrozen  bool            `json:"isFrozen"`
}

// EntryWriteResponse pairs the written entry with the recomputed aggregate.
type EntryWriteResponse struct {
	Entry        EntryDTO      `json:"entry"`
	DayAggregate *AggregateDTO `json:"dayAggregate"`
}

// StreakDTO is the streak metrics answer.
type StreakDTO struct {
	CurrentStreak       int    `json:"currentStreak"`
	BestStreak          int    `json:"bestStreak"`
	LastCompletedDayKey string `json:"lastCompletedDayKey,omitempty"`
	CompletedToday      bool   `json:"completedToday"`
	AtRisk              bool   `json:"atRisk"`

	WeekSatisfied *bool            `json:"weekSatisfied,omitempty"`
	WeekProgress  *decimal.Decimal `json:"weekProgress,omitempty"`
	WeekTarget    *decimal.Decimal `json:"weekTarget,omitempty"`
}

// HabitDTO is a goal definition in API responses.
type HabitDTO struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Name        string          `json:"name"`
	Cadence     string          `json:"cadence"`
	GoalType    string          `json:"goalType"`
	Target      decimal.Decimal `json:"target"`
	Unit        string          `json:"unit,omitempty"`
	Archived    bool            `json:"archived"`
	FreezesLeft int             `json:"freezesLeft"`
	BundleType  string          `json:"bundleType,omitempty"`
}

// CategoryDTO is a category label.
type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReconcileResponse reports a reconciliation sweep.
type ReconcileResponse struct {
	SlotsRecomputed int `json:"slotsRecomputed"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toEntryDTO(e habit.Entry) EntryDTO {
	dto := EntryDTO{
		ID:                 e.ID,
		HabitID:            e.HabitID,
		DayKey:             string(e.DayKey),
		Value:              e.Value,
		TimestampUTC:       e.TimestampUTC.UTC().Format(time.RFC3339),
		Source:             string(e.Source),
		Note:               e.Note,
		BundleOptionID:     e.BundleOptionID,
		ChoiceChildHabitID: e.ChoiceChildHabitID,
	}
	if e.DeletedAt != nil {
		s := e.DeletedAt.UTC().Format(time.RFC3339)
		dto.DeletedAt = &s
	}
	return dto
}

func toAggregateDTO(a *habit.DayAggregate) *AggregateDTO {
	if a == nil {
		return nil
	}
	return &AggregateDTO{
		HabitID:   a.HabitID,
		DayKey:    string(a.DayKey),
		Value:     a.Value,
		Completed: a.Completed,
		Source:    string(a.Source),
		IsFrozen:  a.IsFrozen,
	}
}

func toStreakDTO(h habit.Habit, m habit.StreakMetrics) StreakDTO {
	dto := StreakDTO{
		CurrentStreak:       m.CurrentStreak,
		BestStreak:          m.BestStreak,
		LastCompletedDayKey: string(m.LastCompletedDayKey),
		CompletedToday:      m.CompletedToday,
		AtRisk:              m.AtRisk,
	}
	if h.Cadence == habit.CadenceWeekly {
		sat := m.WeekSatisfied
		prog := m.WeekProgress
		target := m.WeekTarget
		dto.WeekSatisfied = &sat
		dto.WeekProgress = &prog
		dto.WeekTarget = &target
	}
	return dto
}

func toHabitDTO(h habit.Habit) HabitDTO {
	return HabitDTO{
		ID:          h.ID,
		CategoryID:  h.CategoryID,
		Name:        h.Name,
		Cadence:     string(h.Cadence),
		GoalType:    string(h.GoalType),
		Target:      h.Target,
		Unit:        h.Unit,
		Archived:    h.Archived,
		FreezesLeft: h.FreezesLeft,
		BundleType:  string(h.BundleType),
	}
}
