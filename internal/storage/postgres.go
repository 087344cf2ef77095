package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makt28/downwatch/internal/model"
)

// PostgresStore persists monitors in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return s, nil
}

// Migrate creates the schema. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS monitors (
			id           TEXT PRIMARY KEY,
			url          TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL,
			phone        TEXT NOT NULL DEFAULT '',
			country_code TEXT NOT NULL DEFAULT '',
			interval     TEXT NOT NULL,
			state        TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS downtime_intervals (
			seq              BIGSERIAL PRIMARY KEY,
			monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
			start_at         TIMESTAMPTZ NOT NULL,
			end_at           TIMESTAMPTZ NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_downtime_monitor ON downtime_intervals(monitor_id, seq);
	`)
	return err
}

func (s *PostgresStore) CreateMonitor(ctx context.Context, m model.Monitor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (id, url, name, email, phone, country_code, interval, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.URL, m.Name, m.Email, m.Phone, m.CountryCode, string(m.Interval), string(m.State), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

const pgMonitorColumns = `id, url, name, email, phone, country_code, interval, state, created_at`

func scanPGMonitor(row pgx.Row) (model.Monitor, error) {
	var m model.Monitor
	var interval, state string
	if err := row.Scan(&m.ID, &m.URL, &m.Name, &m.Email, &m.Phone, &m.CountryCode, &interval, &state, &m.CreatedAt); err != nil {
		return m, err
	}
	m.Interval = model.Interval(interval)
	m.State = model.State(state)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *PostgresStore) GetMonitor(ctx context.Context, id string) (model.Monitor, error) {
	m, err := scanPGMonitor(s.pool.QueryRow(ctx, `SELECT `+pgMonitorColumns+` FROM monitors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Monitor{}, ErrNotFound
	}
	if err != nil {
		return model.Monitor{}, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMonitors(ctx context.Context) ([]model.Monitor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgMonitorColumns+` FROM monitors ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	out := []model.Monitor{}
	for rows.Next() {
		m, err := scanPGMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetState(ctx context.Context, id string, state model.State) error {
	tag, err := s.pool.Exec(ctx, `UPDATE monitors SET state = $1 WHERE id = $2`, string(state), id)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendInterval(ctx context.Context, id string, iv model.DowntimeInterval) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO downtime_intervals (monitor_id, start_at, end_at, duration_minutes)
		 SELECT $1::text, $2::timestamptz, $3::timestamptz, $4::integer
		 WHERE EXISTS (SELECT 1 FROM monitors WHERE id = $1)`,
		id, iv.Start, iv.End, iv.DurationMinutes)
	if err != nil {
		return fmt.Errorf("insert interval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListIntervals(ctx context.Context, id string) ([]model.DowntimeInterval, error) {
	if _, err := s.GetMonitor(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT start_at, end_at, duration_minutes FROM downtime_intervals WHERE monitor_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	out := []model.DowntimeInterval{}
	for rows.Next() {
		var iv model.DowntimeInterval
		if err := rows.Scan(&iv.Start, &iv.End, &iv.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.Start = iv.Start.UTC()
		iv.End = iv.End.UTC()
		out = append(out, iv)
	}
	return out, rows.Err()
}

// DeleteMonitor relies on ON DELETE CASCADE for the intervals.
func (s *PostgresStore) DeleteMonitor(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
