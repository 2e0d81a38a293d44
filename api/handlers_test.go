/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Entry writes (create, update, delete) through the HTTP surface
- Derived-field rejection at ingress
- Identity header requirement
- Streak and dashboard reads
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ember/habit-engine/habit"
	"github.com/ember/habit-engine/habit/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutHabit(habit.Habit{
		ID:       "h-read",
		UserID:   "u-1",
		Name:     "Read",
		Cadence:  habit.CadenceDaily,
		GoalType: habit.GoalBoolean,
	})
	mem.PutCategory(habit.Category{ID: "cat-1", UserID: "u-1", Name: "Mind"})

	svc := habit.NewService(mem, mem, mem)
	handler := NewHandler(svc, "UTC")
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any, userID string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// =============================================================================
// ENTRY ENDPOINT TESTS
// =============================================================================

func TestCreateEntry_Success(t *testing.T) {
	// GIVEN: a known habit
	// WHEN: posting a completion for a day
	// THEN: 201 with the entry and its recomputed aggregate

	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-20",
	}, "u-1")

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}
	entry, _ := body["entry"].(map[string]any)
	if entry["dayKey"] != "2026-02-20" {
		t.Errorf("expected dayKey 2026-02-20, got %v", entry["dayKey"])
	}
	agg, _ := body["dayAggregate"].(map[string]any)
	if agg["completed"] != true {
		t.Errorf("expected completed aggregate, got %v", agg)
	}
}

func TestCreateEntry_RejectsDerivedFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId":   "h-read",
		"dayKey":    "2026-02-20",
		"completed": true,
	}, "u-1")

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for derived field, got %d (%v)", resp.StatusCode, body)
	}
}

func TestCreateEntry_RequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-20",
	}, "")

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-User-ID, got %d", resp.StatusCode)
	}
}

func TestCreateEntry_UnknownHabitIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-ghost",
		"dayKey":  "2026-02-20",
	}, "u-1")

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateEntry_BadDayKeyIs400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-30",
	}, "u-1")

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpdateEntry_MoveDay(t *testing.T) {
	srv, mem := newTestServer(t)

	_, created := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-20",
	}, "u-1")
	entryID := created["entry"].(map[string]any)["id"].(string)

	resp, body := doJSON(t, "PUT", srv.URL+"/api/entries/"+entryID, map[string]any{
		"dayKey": "2026-02-21",
	}, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}

	// The old slot is tombstoned.
	old, err := mem.Get(context.Background(), "h-read", "2026-02-20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if old != nil {
		t.Errorf("expected old slot tombstoned, got %+v", old)
	}
}

func TestDeleteEntry_Tombstone(t *testing.T) {
	srv, _ := newTestServer(t)

	_, created := doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-20",
	}, "u-1")
	entryID := created["entry"].(map[string]any)["id"].(string)

	resp, body := doJSON(t, "DELETE", srv.URL+"/api/entries/"+entryID, nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if agg, ok := body["dayAggregate"]; ok && agg != nil {
		t.Errorf("expected null aggregate after emptying the slot, got %v", agg)
	}

	// A second delete is a 404.
	resp, _ = doJSON(t, "DELETE", srv.URL+"/api/entries/"+entryID, nil, "u-1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on double delete, got %d", resp.StatusCode)
	}
}

// =============================================================================
// READ ENDPOINT TESTS
// =============================================================================

func TestGetStreak(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, day := range []string{"2026-02-18", "2026-02-19"} {
		doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
			"habitId": "h-read",
			"dayKey":  day,
		}, "u-1")
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/habits/h-read/streak?today=2026-02-20", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["currentStreak"] != float64(2) {
		t.Errorf("expected streak 2, got %v", body["currentStreak"])
	}
	if body["atRisk"] != true {
		t.Errorf("expected atRisk, got %v", body["atRisk"])
	}
	if body["lastCompletedDayKey"] != "2026-02-19" {
		t.Errorf("expected last completed 2026-02-19, got %v", body["lastCompletedDayKey"])
	}
}

func TestGetDashboard(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-19",
	}, "u-1")

	resp, body := doJSON(t, "GET", srv.URL+"/api/dashboard?month=2026-02&today=2026-02-20", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["month"] != "2026-02" {
		t.Errorf("expected month 2026-02, got %v", body["month"])
	}
	days, _ := body["days"].([]any)
	if len(days) != 28 {
		t.Errorf("expected 28 days, got %d", len(days))
	}
}

func TestListHabitsAndCategories(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "GET", srv.URL+"/api/habits", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", srv.URL+"/api/categories", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// =============================================================================
// FREEZE AND ADMIN ENDPOINT TESTS
// =============================================================================

func TestApplyFreeze_InventoryBound(t *testing.T) {
	srv, mem := newTestServer(t)
	mem.PutHabit(habit.Habit{
		ID:          "h-frozen",
		UserID:      "u-1",
		Name:        "Stretch",
		Cadence:     habit.CadenceDaily,
		GoalType:    habit.GoalBoolean,
		FreezesLeft: 1,
	})

	resp, _ := doJSON(t, "POST", srv.URL+"/api/habits/h-frozen/freeze", map[string]any{
		"dayKey": "2026-02-19",
	}, "u-1")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// Inventory exhausted: second apply is a client error.
	resp, _ = doJSON(t, "POST", srv.URL+"/api/habits/h-frozen/freeze", map[string]any{
		"dayKey": "2026-02-18",
	}, "u-1")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 at zero inventory, got %d", resp.StatusCode)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)

	doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-read",
		"dayKey":  "2026-02-20",
	}, "u-1")

	// Orphan an aggregate so the sweep has something to tombstone.
	mem.Upsert(context.Background(), habit.DayAggregate{
		HabitID: "h-read", UserID: "u-1", DayKey: "2026-02-10",
		Value: decimal.NewFromInt(1), Completed: true,
	})

	resp, body := doJSON(t, "POST", srv.URL+"/api/admin/reconcile", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["slotsRecomputed"] != float64(2) {
		t.Errorf("expected 2 slots recomputed, got %v", body["slotsRecomputed"])
	}
}

func TestAutoFreezeRunEndpoint(t *testing.T) {
	srv, mem := newTestServer(t)
	mem.PutHabit(habit.Habit{
		ID:          "h-frozen",
		UserID:      "u-1",
		Name:        "Stretch",
		Cadence:     habit.CadenceDaily,
		GoalType:    habit.GoalBoolean,
		FreezesLeft: habit.DefaultFreezeCap,
	})
	doJSON(t, "POST", srv.URL+"/api/entries", map[string]any{
		"habitId": "h-frozen",
		"dayKey":  "2026-02-18",
	}, "u-1")

	resp, _ := doJSON(t, "POST", srv.URL+"/api/admin/freeze-run?today=2026-02-20", nil, "u-1")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/habits/h-frozen/streak?today=2026-02-20", nil, "u-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["currentStreak"] != float64(2) {
		t.Errorf("expected the freeze to bridge the gap, got %v", body["currentStreak"])
	}
}
