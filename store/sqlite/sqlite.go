/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements habit.EntryStore, habit.AggregateStore and habit.HabitDirectory
  on SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  entries:        Append-mostly ledger of completion events (soft delete
                  via deleted_at; rows are never removed)
  day_aggregates: Derived per-habit-per-day cache, upserted by the
                  recompute engine, keyed (habit_id, day_key)
  habits:         Goal definitions (owned by the external CRUD layer;
                  this store only reads them and decrements freezes_left)
  categories:     Grouping labels for rollups

SOFT-DELETE ENFORCEMENT:
  There is no DELETE statement on the entries table. "Deleting" an entry
  sets deleted_at; every active read filters deleted_at IS NULL.

DERIVED-CACHE CONTRACT:
  day_aggregates carries no timestamps - recomputing an unchanged entry set
  writes an identical row (idempotence). The ON CONFLICT upsert replaces
  the slot wholesale; Delete tombstones it.

INDEXES:
  idx_entries_habit_day:    active-slot reads (hot path, every recompute)
  idx_entries_user:         user-wide history/dashboard fetches
  day_aggregates PK:        (habit_id, day_key)

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/habits.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  svc := habit.NewService(store, store, store)

SEE ALSO:
  - habit/store.go: interface definitions
  - habit/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ember/habit-engine/habit"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-mostly; soft delete only)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		habit_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		day_key TEXT NOT NULL,
		value TEXT,
		timestamp_utc TEXT NOT NULL,
		source TEXT NOT NULL,
		note TEXT,
		bundle_option_id TEXT,
		choice_child_habit_id TEXT,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_habit_day
		ON entries(habit_id, day_key) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_user
		ON entries(user_id, day_key);

	-- Derived per-day cache. No timestamps: an unchanged entry set must
	-- recompute to an identical row.
	CREATE TABLE IF NOT EXISTS day_aggregates (
		habit_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		day_key TEXT NOT NULL,
		value TEXT NOT NULL,
		completed INTEGER NOT NULL,
		source TEXT NOT NULL,
		is_frozen INTEGER NOT NULL,
		PRIMARY KEY (habit_id, day_key)
	);

	CREATE INDEX IF NOT EXISTS idx_day_aggregates_user
		ON day_aggregates(user_id, day_key);

	-- Goal definitions (read-mostly here; owned by the CRUD collaborator)
	CREATE TABLE IF NOT EXISTS habits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category_id TEXT,
		name TEXT NOT NULL,
		cadence TEXT NOT NULL,
		goal_type TEXT NOT NULL,
		target TEXT NOT NULL,
		unit TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		freezes_left INTEGER NOT NULL DEFAULT 3,
		bundle_type TEXT NOT NULL DEFAULT '',
		options_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_categories_user ON categories(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (habit.EntryStore interface)
// =============================================================================

const entryColumns = `id, habit_id, user_id, day_key, value, timestamp_utc,
	source, note, bundle_option_id, choice_child_habit_id, deleted_at`

func (s *Store) Insert(ctx context.Context, e habit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO entries
		(id, habit_id, user_id, day_key, value, timestamp_utc, source, note,
		 bundle_option_id, choice_child_habit_id, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.HabitID,
		e.UserID,
		string(e.DayKey),
		nullDecimal(e.Value),
		e.TimestampUTC.UTC().Format(time.RFC3339),
		e.Source,
		nullString(e.Note),
		nullString(e.BundleOptionID),
		nullString(e.ChoiceChildHabitID),
		nullTime(e.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, e habit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE entries
		SET day_key = ?, value = ?, note = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(e.DayKey), nullDecimal(e.Value), nullString(e.Note), e.ID)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &habit.NotFoundError{Kind: "entry", ID: e.ID}
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE entries SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &habit.NotFoundError{Kind: "entry", ID: id}
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*habit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, &habit.NotFoundError{Kind: "entry", ID: id}
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, rows.Err()
}

func (s *Store) FindActiveForDay(ctx context.Context, habitID string, day habit.DayKey) ([]habit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE habit_id = ? AND day_key = ? AND deleted_at IS NULL
		ORDER BY timestamp_utc ASC
	`
	return s.queryEntries(ctx, query, habitID, string(day))
}

func (s *Store) FindActiveInRange(ctx context.Context, habitID string, start, end habit.DayKey) ([]habit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE habit_id = ? AND day_key >= ? AND day_key <= ? AND deleted_at IS NULL
		ORDER BY day_key ASC, timestamp_utc ASC
	`
	return s.queryEntries(ctx, query, habitID, string(start), string(end))
}

func (s *Store) FindAllForUser(ctx context.Context, userID string, includeDeleted bool) ([]habit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = ?
	`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY day_key ASC, timestamp_utc ASC"
	return s.queryEntries(ctx, query, userID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]habit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []habit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (habit.Entry, error) {
	var (
		e            habit.Entry
		dayKey       string
		value        sql.NullString
		timestampUTC string
		note         sql.NullString
		bundleOption sql.NullString
		choiceChild  sql.NullString
		deletedAt    sql.NullString
	)

	err := rows.Scan(
		&e.ID, &e.HabitID, &e.UserID, &dayKey, &value, &timestampUTC,
		&e.Source, &note, &bundleOption, &choiceChild, &deletedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.DayKey = habit.DayKey(dayKey)
	if value.Valid {
		d, err := decimal.NewFromString(value.String)
		if err != nil {
			return e, fmt.Errorf("failed to parse entry value: %w", err)
		}
		e.Value = &d
	}
	e.TimestampUTC, _ = time.Parse(time.RFC3339, timestampUTC)
	e.Note = note.String
	e.BundleOptionID = bundleOption.String
	e.ChoiceChildHabitID = choiceChild.String
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		e.DeletedAt = &t
	}
	return e, nil
}

// =============================================================================
// AGGREGATE STORE (habit.AggregateStore interface)
// =============================================================================

func (s *Store) Upsert(ctx context.Context, a habit.DayAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO day_aggregates (habit_id, user_id, day_key, value, completed, source, is_frozen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(habit_id, day_key) DO UPDATE SET
			user_id = excluded.user_id,
			value = excluded.value,
			completed = excluded.completed,
			source = excluded.source,
			is_frozen = excluded.is_frozen
	`
	_, err := s.db.ExecContext(ctx, query,
		a.HabitID, a.UserID, string(a.DayKey), a.Value.String(),
		boolInt(a.Completed), a.Source, boolInt(a.IsFrozen))
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, habitID string, day habit.DayKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM day_aggregates WHERE habit_id = ? AND day_key = ?",
		habitID, string(day))
	if err != nil {
		return fmt.Errorf("failed to delete aggregate: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, habitID string, day habit.DayKey) (*habit.DayAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT habit_id, user_id, day_key, value, completed, source, is_frozen
		FROM day_aggregates WHERE habit_id = ? AND day_key = ?`,
		habitID, string(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAggregate(rows)
	if err != nil {
		return nil, err
	}
	return &a, rows.Err()
}

func (s *Store) ListForHabit(ctx context.Context, habitID string, start, end habit.DayKey) ([]habit.DayAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT habit_id, user_id, day_key, value, completed, source, is_frozen
		FROM day_aggregates
		WHERE habit_id = ? AND day_key >= ? AND day_key <= ?
		ORDER BY day_key ASC`,
		habitID, string(start), string(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []habit.DayAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func scanAggregate(rows *sql.Rows) (habit.DayAggregate, error) {
	var (
		a         habit.DayAggregate
		dayKey    string
		value     string
		completed int
		isFrozen  int
	)
	err := rows.Scan(&a.HabitID, &a.UserID, &dayKey, &value, &completed, &a.Source, &isFrozen)
	if err != nil {
		return a, fmt.Errorf("failed to scan aggregate: %w", err)
	}
	a.DayKey = habit.DayKey(dayKey)
	v, err := decimal.NewFromString(value)
	if err != nil {
		return a, fmt.Errorf("failed to parse aggregate value: %w", err)
	}
	a.Value = v
	a.Completed = completed != 0
	a.IsFrozen = isFrozen != 0
	return a, nil
}

// =============================================================================
// HABIT DIRECTORY (habit.HabitDirectory interface)
// =============================================================================

const habitColumns = `id, user_id, category_id, name, cadence, goal_type,
	target, unit, archived, freezes_left, bundle_type, options_json`

// SaveHabit persists a goal definition. The definition is owned by the
// external CRUD layer; this method exists so that layer (and seeds/tests)
// can populate the directory.
func (s *Store) SaveHabit(ctx context.Context, h habit.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	optionsJSON, err := json.Marshal(h.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle options: %w", err)
	}

	query := `
		INSERT INTO habits
		(id, user_id, category_id, name, cadence, goal_type, target, unit,
		 archived, freezes_left, bundle_type, options_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			category_id = excluded.category_id,
			name = excluded.name,
			cadence = excluded.cadence,
			goal_type = excluded.goal_type,
			target = excluded.target,
			unit = excluded.unit,
			archived = excluded.archived,
			freezes_left = excluded.freezes_left,
			bundle_type = excluded.bundle_type,
			options_json = excluded.options_json
	`
	_, err = s.db.ExecContext(ctx, query,
		h.ID, h.UserID, nullString(h.CategoryID), h.Name, h.Cadence, h.GoalType,
		h.Target.String(), nullString(h.Unit), boolInt(h.Archived),
		h.FreezesLeft, string(h.BundleType), string(optionsJSON))
	if err != nil {
		return fmt.Errorf("failed to save habit: %w", err)
	}
	return nil
}

// SaveCategory persists a category label (same ownership caveat as SaveHabit).
func (s *Store) SaveCategory(ctx context.Context, c habit.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO categories (id, user_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.UserID, c.Name)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (*habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+habitColumns+" FROM habits WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query habit: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, &habit.NotFoundError{Kind: "habit", ID: id}
	}
	h, err := scanHabit(rows)
	if err != nil {
		return nil, err
	}
	return &h, rows.Err()
}

func (s *Store) ListHabitsByUser(ctx context.Context, userID string) ([]habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+habitColumns+" FROM habits WHERE user_id = ? ORDER BY name ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	var habits []habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (s *Store) ListCategoriesByUser(ctx context.Context, userID string) ([]habit.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []habit.Category
	for rows.Next() {
		var c habit.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ConsumeFreeze decrements the freeze inventory. The WHERE clause keeps the
// counter from going negative under concurrent submits.
func (s *Store) ConsumeFreeze(ctx context.Context, habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE habits SET freezes_left = freezes_left - 1 WHERE id = ? AND freezes_left > 0",
		habitID)
	if err != nil {
		return fmt.Errorf("failed to consume freeze: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either the habit is missing or the inventory is exhausted.
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM habits WHERE id = ?", habitID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return &habit.NotFoundError{Kind: "habit", ID: habitID}
		}
		return &habit.ValidationError{Field: "freezesLeft", Message: "no freezes left"}
	}
	return nil
}

// RestoreFreeze hands one freeze back after a marker insert failed downstream
// of ConsumeFreeze.
func (s *Store) RestoreFreeze(ctx context.Context, habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE habits SET freezes_left = freezes_left + 1 WHERE id = ?", habitID)
	if err != nil {
		return fmt.Errorf("failed to restore freeze: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &habit.NotFoundError{Kind: "habit", ID: habitID}
	}
	return nil
}

// ListUserIDs returns every user with at least one habit. Used by the
// auto-freeze scheduler to iterate users at day boundaries.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM habits ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanHabit(rows *sql.Rows) (habit.Habit, error) {
	var (
		h           habit.Habit
		categoryID  sql.NullString
		target      string
		unit        sql.NullString
		archived    int
		bundleType  string
		optionsJSON sql.NullString
	)
	err := rows.Scan(
		&h.ID, &h.UserID, &categoryID, &h.Name, &h.Cadence, &h.GoalType,
		&target, &unit, &archived, &h.FreezesLeft, &bundleType, &optionsJSON,
	)
	if err != nil {
		return h, fmt.Errorf("failed to scan habit: %w", err)
	}

	h.CategoryID = categoryID.String
	t, err := decimal.NewFromString(target)
	if err != nil {
		return h, fmt.Errorf("failed to parse habit target: %w", err)
	}
	h.Target = t
	h.Unit = unit.String
	h.Archived = archived != 0
	h.BundleType = habit.BundleType(bundleType)
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &h.Options); err != nil {
			return h, fmt.Errorf("failed to parse bundle options: %w", err)
		}
	}
	return h, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
