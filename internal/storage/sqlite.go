package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/makt28/downwatch/internal/model"
)

// SQLiteStore persists monitors in a local SQLite database. Timestamps are
// stored as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	// single writer; avoids SQLITE_BUSY between the scheduler and HTTP handlers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS monitors (
		id           TEXT PRIMARY KEY,
		url          TEXT NOT NULL,
		name         TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL,
		phone        TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		interval     TEXT NOT NULL,
		state        TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at   INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS downtime_intervals (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		monitor_id       TEXT NOT NULL,
		start_at         INTEGER NOT NULL,
		end_at           INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_downtime_monitor ON downtime_intervals(monitor_id, seq);`)
	return err
}

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m model.Monitor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (id, url, name, email, phone, country_code, interval, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.URL, m.Name, m.Email, m.Phone, m.CountryCode, string(m.Interval), string(m.State), m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

const sqliteMonitorColumns = `id, url, name, email, phone, country_code, interval, state, created_at`

func scanSQLiteMonitor(row interface{ Scan(...interface{}) error }) (model.Monitor, error) {
	var m model.Monitor
	var interval, state string
	var created int64
	if err := row.Scan(&m.ID, &m.URL, &m.Name, &m.Email, &m.Phone, &m.CountryCode, &interval, &state, &created); err != nil {
		return m, err
	}
	m.Interval = model.Interval(interval)
	m.State = model.State(state)
	m.CreatedAt = time.Unix(0, created).UTC()
	return m, nil
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (model.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMonitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanSQLiteMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Monitor{}, ErrNotFound
	}
	if err != nil {
		return model.Monitor{}, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMonitors(ctx context.Context) ([]model.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteMonitorColumns+` FROM monitors ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	out := []model.Monitor{}
	for rows.Next() {
		m, err := scanSQLiteMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetState(ctx context.Context, id string, state model.State) error {
	res, err := s.db.ExecContext(ctx, `UPDATE monitors SET state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) AppendInterval(ctx context.Context, id string, iv model.DowntimeInterval) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO downtime_intervals (monitor_id, start_at, end_at, duration_minutes)
		 SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM monitors WHERE id = ?)`,
		id, iv.Start.UnixNano(), iv.End.UnixNano(), iv.DurationMinutes, id)
	if err != nil {
		return fmt.Errorf("insert interval: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) ListIntervals(ctx context.Context, id string) ([]model.DowntimeInterval, error) {
	if _, err := s.GetMonitor(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_at, end_at, duration_minutes FROM downtime_intervals WHERE monitor_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	out := []model.DowntimeInterval{}
	for rows.Next() {
		var start, end int64
		var iv model.DowntimeInterval
		if err := rows.Scan(&start, &end, &iv.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.Start = time.Unix(0, start).UTC()
		iv.End = time.Unix(0, end).UTC()
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMonitor(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM downtime_intervals WHERE monitor_id = ?`, id); err != nil {
		return fmt.Errorf("delete intervals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
