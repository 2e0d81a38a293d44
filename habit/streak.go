/*
streak.go - Streak & weekly-progress calculator

PURPOSE:
  Pure functions over a habit's per-day states. No store access, no clock:
  the reference day ("today") is an explicit parameter, which keeps the math
  deterministic and testable.

DAILY ALGORITHM:
  1. Valid days = days where completed OR frozen.
  2. completedToday = today in the valid set. A frozen today counts: the
     streak is protected, so there is nothing left to close out.
  3. Current streak: walk backward one calendar day at a time, starting from
     today if valid, else yesterday, counting consecutive valid days.
  4. Best streak: longest run of step-1 consecutive days across the entire
     valid set.
  5. atRisk = streak exists but today hasn't closed it out yet.

WEEKLY ALGORITHM:
  Weeks are keyed by their ISO Monday. A week is satisfied per the rule in
  completion.go. Current streak walks backward week by week (current week
  counts only if already satisfied); best streak is the longest run of
  week-start keys exactly 7 days apart. atRisk needs an active streak, an
  unsatisfied current week, and 2 or fewer days left in it.

  An unsatisfied week between two satisfied weeks resets the streak to 0;
  there is no weekly grace policy (freezes are a daily-cadence mechanism).
*/
package habit

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CalculateStreak dispatches on the habit's cadence. Total (cumulative)
// habits use the daily walk as well: their streak is consecutive days of
// recorded progress.
func CalculateStreak(h Habit, states []DayState, today DayKey) StreakMetrics {
	if h.Cadence == CadenceWeekly {
		return weeklyStreak(h, states, today)
	}
	return dailyStreak(states, today)
}

// =============================================================================
// DAILY
// =============================================================================

func dailyStreak(states []DayState, today DayKey) StreakMetrics {
	valid := make(map[DayKey]bool, len(states))
	var lastCompleted DayKey
	for _, s := range states {
		if s.Completed || s.IsFrozen {
			valid[s.DayKey] = true
		}
		// Freeze markers never advance lastCompleted.
		if s.Completed && s.DayKey.After(lastCompleted) {
			lastCompleted = s.DayKey
		}
	}

	m := StreakMetrics{
		CompletedToday:      valid[today],
		LastCompletedDayKey: lastCompleted,
	}

	// Current streak: walk backward from today (if valid) or yesterday.
	cursor := today
	if !valid[cursor] {
		cursor = cursor.AddDays(-1)
	}
	for valid[cursor] {
		m.CurrentStreak++
		cursor = cursor.AddDays(-1)
	}

	m.BestStreak = bestRun(keysOf(valid), 1)
	m.AtRisk = m.CurrentStreak > 0 && !m.CompletedToday
	return m
}

// bestRun finds the longest run of sorted distinct keys whose day-to-day
// delta is exactly step (1 for daily streaks, 7 for weekly).
func bestRun(keys []DayKey, step int) int {
	if len(keys) == 0 {
		return 0
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	best, run := 1, 1
	for i := 1; i < len(keys); i++ {
		if keys[i-1].DaysBetween(keys[i]) == step {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

func keysOf(set map[DayKey]bool) []DayKey {
	keys := make([]DayKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// =============================================================================
// WEEKLY
// =============================================================================

type weekState struct {
	progress  decimal.Decimal
	satisfied bool
}

func weeklyStreak(h Habit, states []DayState, today DayKey) StreakMetrics {
	byWeek := make(map[DayKey][]DayState)
	for _, s := range states {
		ws := s.DayKey.WeekStart()
		byWeek[ws] = append(byWeek[ws], s)
	}

	weeks := make(map[DayKey]weekState, len(byWeek))
	for ws, days := range byWeek {
		weeks[ws] = weekState{
			progress:  WeekProgress(h, days),
			satisfied: WeekSatisfied(h, days),
		}
	}

	thisWeek := today.WeekStart()
	current := weeks[thisWeek]

	m := StreakMetrics{
		WeekSatisfied: current.satisfied,
		WeekProgress:  current.progress,
		WeekTarget:    h.Target,
	}

	// completedToday / lastCompleted still report per-day facts.
	var lastCompleted DayKey
	for _, s := range states {
		if s.Completed {
			if s.DayKey == today {
				m.CompletedToday = true
			}
			if s.DayKey.After(lastCompleted) {
				lastCompleted = s.DayKey
			}
		}
	}
	m.LastCompletedDayKey = lastCompleted

	// Current streak: consecutive satisfied weeks walking backward. The
	// current week counts if already satisfied, otherwise start from the
	// previous week.
	cursor := thisWeek
	if !current.satisfied {
		cursor = cursor.AddDays(-7)
	}
	for weeks[cursor].satisfied {
		m.CurrentStreak++
		cursor = cursor.AddDays(-7)
	}

	var satisfiedStarts []DayKey
	for ws, w := range weeks {
		if w.satisfied {
			satisfiedStarts = append(satisfiedStarts, ws)
		}
	}
	m.BestStreak = bestRun(satisfiedStarts, 7)

	m.AtRisk = m.CurrentStreak > 0 && !current.satisfied && today.DaysLeftInWeek() <= 2
	return m
}
