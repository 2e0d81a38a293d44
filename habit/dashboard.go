/*
dashboard.go - Monthly dashboard read model

PURPOSE:
  Stateless aggregator: given a calendar month, the user's habits and
  categories, and a pre-fetched entry set, compute the per-day completion
  counts, per-habit monthly ratios, a week-to-date summary, heatmaps and
  category rollups.

NO STORE ACCESS:
  Build is a pure function over its inputs. It deliberately re-applies the
  completion predicates from completion.go instead of reading day aggregates
  - that keeps it independent of the cache (time travel and tests just feed
  a different entry set).

HABIT SELECTION:
  - archived habits excluded
  - bundle parents excluded (a container is not individually completable)
  - optional category filter
  - cadence filter (all/daily/weekly) combined with the includeWeekly toggle

RATIOS:
  Daily habits: completed days / days in month.
  Weekly habits: satisfied weeks / weeks overlapping the month (a week
  overlaps when any of its seven days falls inside the month).
*/
package habit

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CadenceFilter selects which cadences the dashboard counts.
type CadenceFilter string

const (
	FilterAll    CadenceFilter = "all"
	FilterDaily  CadenceFilter = "daily"
	FilterWeekly CadenceFilter = "weekly"
)

// DashboardQuery describes one dashboard read.
type DashboardQuery struct {
	Month         string // "YYYY-MM"
	Today         DayKey // explicit reference day, clamped into the month
	CategoryID    string // optional filter
	Cadence       CadenceFilter
	IncludeWeekly bool
}

// DayCount is the completion tally for one day of the month.
type DayCount struct {
	DayKey    DayKey  `json:"dayKey"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// HabitMonthStat is one habit's monthly performance.
type HabitMonthStat struct {
	HabitID       string          `json:"habitId"`
	Name          string          `json:"name"`
	CategoryID    string          `json:"categoryId"`
	Cadence       Cadence         `json:"cadence"`
	CompletedDays int             `json:"completedDays"`
	PeriodCount   int             `json:"periodCount"` // days in month, or weeks overlapping
	Ratio         float64         `json:"ratio"`
	Heatmap       map[DayKey]bool `json:"heatmap"`
}

// WeekSummary is the week-to-date view anchored on the reference day.
type WeekSummary struct {
	WeekStart     DayKey     `json:"weekStart"`
	WeekEnd       DayKey     `json:"weekEnd"`
	Days          []DayCount `json:"days"`
	CompletedDays int        `json:"completedDays"`
}

// CategoryStat is the rollup for one category, sorted by percentage
// descending with name as tie-break.
type CategoryStat struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Completed  int     `json:"completed"`
	Goal       int     `json:"goal"`
	Percent    float64 `json:"percent"`
}

// DashboardResponse is the full monthly read model.
type DashboardResponse struct {
	Month      string           `json:"month"`
	Days       []DayKey         `json:"days"`
	DayCounts  []DayCount       `json:"dayCounts"`
	Habits     []HabitMonthStat `json:"habits"`
	Week       WeekSummary      `json:"week"`
	Categories []CategoryStat   `json:"categories"`
}

// BuildDashboard computes the monthly read model. Pure.
func BuildDashboard(habits []Habit, categories []Category, entries []Entry, q DashboardQuery) (*DashboardResponse, error) {
	first, err := ParseMonthKey(q.Month)
	if err != nil {
		return nil, err
	}
	days := MonthDays(first)
	selected := selectHabits(habits, q)

	// Group active entries by habit and day once.
	byHabitDay := make(map[string]map[DayKey][]Entry)
	for _, e := range entries {
		if !e.Active() {
			continue
		}
		m := byHabitDay[e.HabitID]
		if m == nil {
			m = make(map[DayKey][]Entry)
			byHabitDay[e.HabitID] = m
		}
		m[e.DayKey] = append(m[e.DayKey], e)
	}

	// completedOn answers the shared per-day predicate.
	completedOn := func(h Habit, d DayKey) bool {
		return DayCompleted(h, byHabitDay[h.ID][d])
	}

	resp := &DashboardResponse{Month: q.Month, Days: days}

	// Per-day counts across selected habits.
	for _, d := range days {
		c := DayCount{DayKey: d, Total: len(selected)}
		for _, h := range selected {
			if completedOn(h, d) {
				c.Completed++
			}
		}
		if c.Total > 0 {
			c.Percent = roundPct(c.Completed, c.Total)
		}
		resp.DayCounts = append(resp.DayCounts, c)
	}

	// Per-habit stats and heatmaps.
	weeks := WeekStartsOverlapping(first)
	for _, h := range selected {
		stat := HabitMonthStat{
			HabitID:    h.ID,
			Name:       h.Name,
			CategoryID: h.CategoryID,
			Cadence:    h.Cadence,
			Heatmap:    make(map[DayKey]bool, len(days)),
		}
		for _, d := range days {
			done := completedOn(h, d)
			stat.Heatmap[d] = done
			if done {
				stat.CompletedDays++
			}
		}
		if h.Cadence == CadenceWeekly {
			stat.PeriodCount = len(weeks)
			satisfied := 0
			for _, ws := range weeks {
				if weekSatisfiedFromEntries(h, byHabitDay[h.ID], ws) {
					satisfied++
				}
			}
			if stat.PeriodCount > 0 {
				stat.Ratio = float64(satisfied) / float64(stat.PeriodCount)
			}
		} else {
			stat.PeriodCount = len(days)
			stat.Ratio = float64(stat.CompletedDays) / float64(len(days))
		}
		resp.Habits = append(resp.Habits, stat)
	}

	resp.Week = buildWeekSummary(selected, completedOn, clampIntoMonth(q.Today, days))
	resp.Categories = buildCategoryRollup(selected, categories, resp.Habits)
	return resp, nil
}

func selectHabits(habits []Habit, q DashboardQuery) []Habit {
	var out []Habit
	for _, h := range habits {
		if h.Archived || h.IsBundleParent() {
			continue
		}
		if q.CategoryID != "" && h.CategoryID != q.CategoryID {
			continue
		}
		switch q.Cadence {
		case FilterDaily:
			if h.Cadence == CadenceWeekly {
				continue
			}
		case FilterWeekly:
			if h.Cadence != CadenceWeekly {
				continue
			}
		}
		if h.Cadence == CadenceWeekly && !q.IncludeWeekly && q.Cadence != FilterWeekly {
			continue
		}
		out = append(out, h)
	}
	return out
}

// weekSatisfiedFromEntries applies the weekly rule to one ISO week of the
// pre-grouped entry map.
func weekSatisfiedFromEntries(h Habit, byDay map[DayKey][]Entry, weekStart DayKey) bool {
	var states []DayState
	for i := 0; i < 7; i++ {
		d := weekStart.AddDays(i)
		es := byDay[d]
		if len(es) == 0 {
			continue
		}
		states = append(states, DayState{
			DayKey:    d,
			Value:     DayValue(es),
			Completed: DayCompleted(h, es),
			IsFrozen:  DayFrozen(es),
		})
	}
	return WeekSatisfied(h, states)
}

// clampIntoMonth pins the reference day inside the queried month so the
// week-to-date window stays meaningful when "today" falls outside it.
func clampIntoMonth(today DayKey, days []DayKey) DayKey {
	if len(days) == 0 {
		return today
	}
	if today.Before(days[0]) {
		return days[0]
	}
	if today.After(days[len(days)-1]) {
		return days[len(days)-1]
	}
	return today
}

func buildWeekSummary(selected []Habit, completedOn func(Habit, DayKey) bool, today DayKey) WeekSummary {
	ws := WeekSummary{WeekStart: today.WeekStart(), WeekEnd: today.WeekEnd()}
	for d := ws.WeekStart; !d.After(today); d = d.AddDays(1) {
		c := DayCount{DayKey: d, Total: len(selected)}
		for _, h := range selected {
			if completedOn(h, d) {
				c.Completed++
			}
		}
		if c.Total > 0 {
			c.Percent = roundPct(c.Completed, c.Total)
		}
		if c.Completed > 0 {
			ws.CompletedDays++
		}
		ws.Days = append(ws.Days, c)
	}
	return ws
}

func buildCategoryRollup(selected []Habit, categories []Category, stats []HabitMonthStat) []CategoryStat {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	byCat := make(map[string]*CategoryStat)
	for _, s := range stats {
		cs := byCat[s.CategoryID]
		if cs == nil {
			cs = &CategoryStat{CategoryID: s.CategoryID, Name: names[s.CategoryID]}
			byCat[s.CategoryID] = cs
		}
		cs.Completed += s.CompletedDays
		cs.Goal += s.PeriodCount
	}

	out := make([]CategoryStat, 0, len(byCat))
	for _, cs := range byCat {
		if cs.Goal > 0 {
			cs.Percent = roundPct(cs.Completed, cs.Goal)
		}
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percent != out[j].Percent {
			return out[i].Percent > out[j].Percent
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// roundPct computes completed/total as a percentage with two decimals.
// decimal division keeps 1/3-style ratios stable across platforms.
func roundPct(completed, total int) float64 {
	pct := decimal.NewFromInt(int64(completed) * 100).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	f, _ := pct.Float64()
	return f
}
