/*
completion.go - The single completion rule

PURPOSE:
  One place answers "is this day done?" and "is this week satisfied?".
  Both the recompute engine and the dashboard builder use these predicates;
  the dashboard deliberately duplicates the recompute path (it works off a
  pre-fetched entry set and never touches the stores) but the RULE must be
  identical, so it lives here.

THE RULE:
  Boolean, daily/total cadence:
    completed = any active entry with a positive contribution exists.
    Freeze markers are excluded: a frozen day is "protected", not "done".
  Numeric:
    completed = sum(active entry values for the day) >= target.
  Weekly boolean:
    satisfied(week) = count(distinct completed days in week) >= target.
  Weekly numeric:
    satisfied(week) = sum(values across week) >= target.
  Weeks are ISO weeks: Monday through Sunday in DayKey space.
*/
package habit

import "github.com/shopspring/decimal"

// DayValue sums the active entries' contributions for one day.
// Freeze markers contribute zero.
func DayValue(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		total = total.Add(e.Contribution())
	}
	return total
}

// DayCompleted applies the per-day completion rule for daily/total cadence.
// For weekly habits a single day "completed" means "work happened that day";
// week satisfaction is a separate question (WeekSatisfied).
func DayCompleted(h Habit, entries []Entry) bool {
	switch h.GoalType {
	case GoalNumber:
		return DayValue(entries).GreaterThanOrEqual(h.Target)
	default: // boolean
		for _, e := range entries {
			if e.Active() && !e.IsFreeze() && e.Contribution().IsPositive() {
				return true
			}
		}
		return false
	}
}

// DayFrozen reports whether an active freeze marker exists for the day.
func DayFrozen(entries []Entry) bool {
	for _, e := range entries {
		if e.Active() && e.IsFreeze() {
			return true
		}
	}
	return false
}

// WeekProgress computes a weekly habit's progress within one ISO week from
// its per-day states: distinct completed days for boolean goals, value sum
// for numeric goals.
func WeekProgress(h Habit, week []DayState) decimal.Decimal {
	if h.GoalType == GoalNumber {
		total := decimal.Zero
		for _, d := range week {
			total = total.Add(d.Value)
		}
		return total
	}
	days := 0
	for _, d := range week {
		if d.Completed {
			days++
		}
	}
	return decimal.NewFromInt(int64(days))
}

// WeekSatisfied applies the weekly satisfaction rule.
func WeekSatisfied(h Habit, week []DayState) bool {
	return WeekProgress(h, week).GreaterThanOrEqual(h.Target)
}
