// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore is a SQL-based implementation of Store, so quota accounting
// survives process restarts. It supports Postgres, MySQL, and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a new SQL-based store.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
		// Valid dialects
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var idColumn string
	switch s.dialect {
	case "postgres":
		idColumn = "id BIGSERIAL PRIMARY KEY"
	case "mysql":
		idColumn = "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS request_events (
    %s,
    scope VARCHAR(16) NOT NULL,
    identifier VARCHAR(255) NOT NULL,
    ts TIMESTAMP NOT NULL
)`, idColumn),
		`CREATE INDEX IF NOT EXISTS idx_request_events_scope_identifier_ts ON request_events(scope, identifier, ts)`,
		`
CREATE TABLE IF NOT EXISTS daily_counters (
    scope VARCHAR(16) NOT NULL,
    identifier VARCHAR(255) NOT NULL,
    count BIGINT NOT NULL DEFAULT 0,
    period_start TIMESTAMP NOT NULL,
    PRIMARY KEY (scope, identifier)
)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create rate limit tables: %w", err)
		}
	}
	return nil
}

// ensureCounter creates the daily counter row on first access.
func (s *SQLStore) ensureCounter(ctx context.Context, scope Scope, identifier string, now time.Time) (int64, time.Time, error) {
	query := `SELECT count, period_start FROM daily_counters WHERE scope = ? AND identifier = ?`
	if s.dialect == "postgres" {
		query = `SELECT count, period_start FROM daily_counters WHERE scope = $1 AND identifier = $2`
	}

	var count int64
	var periodStart time.Time
	err := s.db.QueryRowContext(ctx, query, string(scope), identifier).Scan(&count, &periodStart)
	if err == nil {
		return count, periodStart, nil
	}
	if err != sql.ErrNoRows {
		return 0, time.Time{}, fmt.Errorf("failed to query daily counter: %w", err)
	}

	var insert string
	switch s.dialect {
	case "postgres":
		insert = `INSERT INTO daily_counters (scope, identifier, count, period_start) VALUES ($1, $2, 0, $3) ON CONFLICT (scope, identifier) DO NOTHING`
	case "mysql":
		insert = `INSERT IGNORE INTO daily_counters (scope, identifier, count, period_start) VALUES (?, ?, 0, ?)`
	default:
		insert = `INSERT OR IGNORE INTO daily_counters (scope, identifier, count, period_start) VALUES (?, ?, 0, ?)`
	}
	if _, err := s.db.ExecContext(ctx, insert, string(scope), identifier, now); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to create daily counter: %w", err)
	}
	return 0, now, nil
}

// Snapshot returns the post-maintenance view of one scope's state.
func (s *SQLStore) Snapshot(ctx context.Context, scope Scope, identifier string, now time.Time, windows []TimeWindow) (*Snapshot, error) {
	count, periodStart, err := s.ensureCounter(ctx, scope, identifier, now)
	if err != nil {
		return nil, err
	}

	// Lazy daily reset.
	if now.Sub(periodStart) >= WindowDay.Duration() {
		reset := `UPDATE daily_counters SET count = 0, period_start = ? WHERE scope = ? AND identifier = ?`
		if s.dialect == "postgres" {
			reset = `UPDATE daily_counters SET count = 0, period_start = $1 WHERE scope = $2 AND identifier = $3`
		}
		if _, err := s.db.ExecContext(ctx, reset, now, string(scope), identifier); err != nil {
			return nil, fmt.Errorf("failed to reset daily counter: %w", err)
		}
		count = 0
		periodStart = now
	}

	// Purge entries older than the longest window examined.
	var longest TimeWindow
	for _, w := range windows {
		if longest == "" || w.Duration() > longest.Duration() {
			longest = w
		}
	}
	if longest != "" {
		purge := `DELETE FROM request_events WHERE scope = ? AND identifier = ? AND ts <= ?`
		if s.dialect == "postgres" {
			purge = `DELETE FROM request_events WHERE scope = $1 AND identifier = $2 AND ts <= $3`
		}
		if _, err := s.db.ExecContext(ctx, purge, string(scope), identifier, now.Add(-longest.Duration())); err != nil {
			return nil, fmt.Errorf("failed to purge stale events: %w", err)
		}
	}

	snap := &Snapshot{
		DailyCount:  count,
		PeriodStart: periodStart,
		Windows:     make(map[TimeWindow]WindowOccupancy, len(windows)),
	}

	occQuery := `SELECT COUNT(*), MIN(ts) FROM request_events WHERE scope = ? AND identifier = ? AND ts > ?`
	if s.dialect == "postgres" {
		occQuery = `SELECT COUNT(*), MIN(ts) FROM request_events WHERE scope = $1 AND identifier = $2 AND ts > $3`
	}
	for _, w := range windows {
		var occ WindowOccupancy
		var oldest sql.NullTime
		cutoff := now.Add(-w.Duration())
		if err := s.db.QueryRowContext(ctx, occQuery, string(scope), identifier, cutoff).Scan(&occ.Count, &oldest); err != nil {
			return nil, fmt.Errorf("failed to count events in %s window: %w", w, err)
		}
		if oldest.Valid {
			occ.Oldest = oldest.Time
		}
		snap.Windows[w] = occ
	}

	return snap, nil
}

// Append records one request timestamp and increments the daily count.
func (s *SQLStore) Append(ctx context.Context, scope Scope, identifier string, ts time.Time) error {
	if _, _, err := s.ensureCounter(ctx, scope, identifier, ts); err != nil {
		return err
	}

	insert := `INSERT INTO request_events (scope, identifier, ts) VALUES (?, ?, ?)`
	increment := `UPDATE daily_counters SET count = count + 1 WHERE scope = ? AND identifier = ?`
	if s.dialect == "postgres" {
		insert = `INSERT INTO request_events (scope, identifier, ts) VALUES ($1, $2, $3)`
		increment = `UPDATE daily_counters SET count = count + 1 WHERE scope = $1 AND identifier = $2`
	}

	if _, err := s.db.ExecContext(ctx, insert, string(scope), identifier, ts); err != nil {
		return fmt.Errorf("failed to insert request event: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, increment, string(scope), identifier); err != nil {
		return fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return nil
}

// RemoveLatest drops the most recently appended timestamp and decrements
// the daily count, clamped at zero.
func (s *SQLStore) RemoveLatest(ctx context.Context, scope Scope, identifier string) (bool, error) {
	// The derived table keeps MySQL happy about deleting from a table
	// referenced in the subquery.
	remove := `
DELETE FROM request_events WHERE id = (
    SELECT latest FROM (
        SELECT MAX(id) AS latest FROM request_events WHERE scope = ? AND identifier = ?
    ) AS x
)`
	decrement := `UPDATE daily_counters SET count = count - 1 WHERE scope = ? AND identifier = ? AND count > 0`
	if s.dialect == "postgres" {
		remove = `
DELETE FROM request_events WHERE id = (
    SELECT latest FROM (
        SELECT MAX(id) AS latest FROM request_events WHERE scope = $1 AND identifier = $2
    ) AS x
)`
		decrement = `UPDATE daily_counters SET count = count - 1 WHERE scope = $1 AND identifier = $2 AND count > 0`
	}

	removedEvent, err := s.db.ExecContext(ctx, remove, string(scope), identifier)
	if err != nil {
		return false, fmt.Errorf("failed to remove latest event: %w", err)
	}
	eventRows, err := removedEvent.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	decremented, err := s.db.ExecContext(ctx, decrement, string(scope), identifier)
	if err != nil {
		return false, fmt.Errorf("failed to decrement daily counter: %w", err)
	}
	counterRows, err := decremented.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return eventRows > 0 || counterRows > 0, nil
}

// Reset clears all state for an identifier.
func (s *SQLStore) Reset(ctx context.Context, scope Scope, identifier string) error {
	deleteEvents := `DELETE FROM request_events WHERE scope = ? AND identifier = ?`
	deleteCounter := `DELETE FROM daily_counters WHERE scope = ? AND identifier = ?`
	if s.dialect == "postgres" {
		deleteEvents = `DELETE FROM request_events WHERE scope = $1 AND identifier = $2`
		deleteCounter = `DELETE FROM daily_counters WHERE scope = $1 AND identifier = $2`
	}

	if _, err := s.db.ExecContext(ctx, deleteEvents, string(scope), identifier); err != nil {
		return fmt.Errorf("failed to delete request events: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteCounter, string(scope), identifier); err != nil {
		return fmt.Errorf("failed to delete daily counter: %w", err)
	}
	return nil
}

// Close closes the store.
// Note: This does NOT close the underlying database connection,
// as that connection may be shared with other components.
func (s *SQLStore) Close() error {
	return nil
}

// Dialect returns the SQL dialect (for testing).
func (s *SQLStore) Dialect() string {
	return s.dialect
}
