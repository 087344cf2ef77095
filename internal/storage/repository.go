package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/makt28/downwatch/internal/config"
	"github.com/makt28/downwatch/internal/model"
)

// ErrNotFound is returned when a monitor does not exist.
var ErrNotFound = errors.New("monitor not found")

// Repository is the durable store for monitors and their downtime logs.
// Intervals for one monitor are returned in insertion order.
type Repository interface {
	CreateMonitor(ctx context.Context, m model.Monitor) error
	GetMonitor(ctx context.Context, id string) (model.Monitor, error)
	ListMonitors(ctx context.Context) ([]model.Monitor, error)
	SetState(ctx context.Context, id string, state model.State) error

	// AppendInterval returns ErrNotFound if the monitor was deleted.
	AppendInterval(ctx context.Context, id string, iv model.DowntimeInterval) error
	ListIntervals(ctx context.Context, id string) ([]model.DowntimeInterval, error)

	// DeleteMonitor removes the monitor and all its intervals. Deleting an
	// unknown id is not an error.
	DeleteMonitor(ctx context.Context, id string) error

	Close() error
}

// Open builds the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Repository, error) {
	switch cfg.Driver {
	case "file":
		if err := MigrateMonitorsFile(cfg.Path); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", cfg.Path, err)
		}
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
