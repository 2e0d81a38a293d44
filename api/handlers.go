/*
handlers.go - HTTP API handlers for the habit engine

PURPOSE:
  Exposes the ledger-and-derived-state engine via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the habit package.

ENDPOINTS:
  Entries:
    POST   /api/entries                    Log a completion (recomputes slot)
    PUT    /api/entries/{id}               Patch value/dayKey (recomputes both slots)
    DELETE /api/entries/{id}               Soft delete (recomputes slot)
    GET    /api/entries                    User history (?deleted=1 for audit)

  Habits (definitions are read-only here):
    GET    /api/habits                     List goal definitions
    GET    /api/habits/{id}/entries        Per-habit history
    GET    /api/habits/{id}/streak         Streak metrics (?today=YYYY-MM-DD)
    POST   /api/habits/{id}/freeze         Manual freeze marker

  Reads:
    GET    /api/dashboard                  Monthly read model
    GET    /api/categories                 Category labels

  Admin:
    POST   /api/admin/freeze-run           Run auto-freeze now
    POST   /api/admin/reconcile            Heal the aggregate cache

IDENTITY:
  Caller-supplied X-User-ID header. Authentication/session resolution is an
  external collaborator; this layer trusts the header.

ERROR HANDLING:
  - 400: validation errors (bad day key, bundle rules, derived fields)
  - 404: missing habit or entry
  - 500: store failures, recompute inconsistencies

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ember/habit-engine/habit"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *habit.Service

	// DefaultTimeZone resolves "today" when the client doesn't send one.
	DefaultTimeZone string
}

// NewHandler creates a new handler around the engine service.
func NewHandler(svc *habit.Service, defaultTZ string) *Handler {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return &Handler{Service: svc, DefaultTimeZone: defaultTZ}
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateEntry logs a completion event and returns it with the recomputed
// day aggregate.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	// Decode twice: once raw to reject derived-only fields, once typed.
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := habit.AssertNoDerivedFields(raw); err != nil {
		writeDomainError(w, err)
		return
	}
	var req CreateEntryRequest
	if err := remarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.HabitID == "" {
		writeError(w, http.StatusBadRequest, "habitId is required", nil)
		return
	}

	entry, agg, err := h.Service.CreateEntry(r.Context(), habit.CreateEntryInput{
		HabitID: req.HabitID,
		Time: habit.EntryTimeInput{
			DayKey:     req.DayKey,
			LegacyDate: req.Date,
			Timestamp:  req.Timestamp,
			TimeZone:   req.TimeZone,
		},
		Value:              req.Value,
		Source:             habit.EntrySource(req.Source),
		Note:               req.Note,
		BundleOptionID:     req.BundleOptionID,
		ChoiceChildHabitID: req.ChoiceChildHabitID,
	}, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, EntryWriteResponse{
		Entry:        toEntryDTO(*entry),
		DayAggregate: toAggregateDTO(agg),
	})
}

// UpdateEntry patches an entry; a dayKey move recomputes both slots.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if err := habit.AssertNoDerivedFields(raw); err != nil {
		writeDomainError(w, err)
		return
	}
	var req UpdateEntryRequest
	if err := remarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := habit.EntryPatch{
		Value:      req.Value,
		ClearValue: req.ClearValue,
		Note:       req.Note,
	}
	if req.DayKey != nil {
		dk := habit.DayKey(*req.DayKey)
		patch.DayKey = &dk
	}

	entry, agg, err := h.Service.UpdateEntry(r.Context(), id, patch, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryWriteResponse{
		Entry:        toEntryDTO(*entry),
		DayAggregate: toAggregateDTO(agg),
	})
}

// DeleteEntry soft-deletes and reports the (possibly tombstoned) aggregate.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	agg, err := h.Service.DeleteEntry(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dayAggregate": toAggregateDTO(agg)})
}

// ListEntries returns the user's ledger history. ?deleted=1 includes
// soft-deleted rows (audit trail).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	includeDeleted := r.URL.Query().Get("deleted") == "1"

	entries, err := h.Service.Ledger.Entries.FindAllForUser(r.Context(), userID, includeDeleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListHabitEntries returns one habit's active entries in a day range.
func (h *Handler) ListHabitEntries(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	habitID := chi.URLParam(r, "id")

	start := habit.DayKey("0000-01-01")
	end := habit.DayKey("9999-12-31")
	if s := r.URL.Query().Get("start"); s != "" {
		k, err := habit.ParseDayKey(s)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		start = k
	}
	if s := r.URL.Query().Get("end"); s != "" {
		k, err := habit.ParseDayKey(s)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		end = k
	}

	entries, err := h.Service.Ledger.Entries.FindActiveInRange(r.Context(), habitID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HABIT READS
// =============================================================================

// ListHabits returns the user's goal definitions.
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	habits, err := h.Service.Habits.ListHabitsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list habits", err)
		return
	}
	dtos := make([]HabitDTO, len(habits))
	for i, hh := range habits {
		dtos[i] = toHabitDTO(hh)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCategories returns the user's category labels.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	categories, err := h.Service.Habits.ListCategoriesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}
	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStreak computes streak metrics for one habit relative to an explicit
// reference day (?today=YYYY-MM-DD, defaulting to the server zone's today).
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	habitID := chi.URLParam(r, "id")

	today, err := h.resolveToday(r.URL.Query().Get("today"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hh, err := h.Service.Habits.GetHabit(r.Context(), habitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics, err := h.Service.StreakFor(r.Context(), habitID, today, 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakDTO(*hh, *metrics))
}

// GetDashboard builds the monthly read model.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	today, err := h.resolveToday(q.Get("today"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	month := q.Get("month")
	if month == "" {
		month = today.MonthKey()
	}

	cadence := habit.CadenceFilter(q.Get("cadence"))
	if cadence == "" {
		cadence = habit.FilterAll
	}

	resp, err := h.Service.Dashboard(r.Context(), userID, habit.DashboardQuery{
		Month:         month,
		Today:         today,
		CategoryID:    q.Get("categoryId"),
		Cadence:       cadence,
		IncludeWeekly: q.Get("includeWeekly") != "0",
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// FREEZE & ADMIN
// =============================================================================

// ApplyFreeze inserts a manual freeze marker under the inventory bound.
func (h *Handler) ApplyFreeze(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	habitID := chi.URLParam(r, "id")

	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	day, err := habit.ParseDayKey(req.DayKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hh, err := h.Service.Habits.GetHabit(r.Context(), habitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Service.Freezer.Apply(r.Context(), *hh, userID, day); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunAutoFreeze triggers the best-effort freeze pass for the caller.
func (h *Handler) RunAutoFreeze(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	today, err := h.resolveToday(r.URL.Query().Get("today"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Service.RunAutoFreeze(r.Context(), userID, today); err != nil {
		writeError(w, http.StatusInternalServerError, "Freeze run failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile heals the aggregate cache for the caller.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := h.Service.Reconcile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileResponse{SlotsRecomputed: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required", nil)
		return "", false
	}
	return userID, true
}

// resolveToday parses an explicit reference day, or derives one from the
// wall clock in the server's default zone. Calculators themselves never
// read the clock; this is the single place "now" enters the system.
func (h *Handler) resolveToday(s string) (habit.DayKey, error) {
	if s != "" {
		return habit.ParseDayKey(s)
	}
	return habit.DeriveDayKey(time.Now(), h.DefaultTimeZone)
}

func remarshal(raw map[string]any, dst any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case habit.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case habit.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
