package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makt28/downwatch/internal/model"
	"github.com/makt28/downwatch/internal/storage"
)

// Registry is the authoritative set of monitor configurations. It keeps the
// repository and the scheduler in step for every lifecycle operation.
// Operations on the same id are serialized.
type Registry struct {
	repo  storage.Repository
	sched *Scheduler
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(repo storage.Repository, sched *Scheduler) *Registry {
	return &Registry{
		repo:  repo,
		sched: sched,
		now:   time.Now,
		locks: make(map[string]*idLock),
	}
}

// lock takes the lifecycle lock for id and returns its release func.
func (r *Registry) lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

// Create validates reg and persists a new ACTIVE monitor without starting it.
func (r *Registry) Create(ctx context.Context, reg model.Registration) (model.Monitor, error) {
	reg = trimRegistration(reg)
	if err := reg.Validate(); err != nil {
		return model.Monitor{}, err
	}
	interval, _ := model.ParseInterval(reg.Interval)

	m := model.Monitor{
		ID:          uuid.New().String(),
		URL:         reg.URL,
		Name:        reg.Name,
		Email:       reg.Email,
		Phone:       reg.Phone,
		CountryCode: reg.CountryCode,
		Interval:    interval,
		State:       model.StateActive,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.repo.CreateMonitor(ctx, m); err != nil {
		return model.Monitor{}, fmt.Errorf("create monitor: %w", err)
	}
	slog.Info("monitor registered", "id", m.ID, "url", m.URL, "interval", m.Interval)
	return m, nil
}

func trimRegistration(reg model.Registration) model.Registration {
	reg.URL = strings.TrimSpace(reg.URL)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	reg.CountryCode = strings.TrimSpace(reg.CountryCode)
	reg.Interval = strings.TrimSpace(reg.Interval)
	return reg
}

// Register creates a monitor and starts probing it immediately.
func (r *Registry) Register(ctx context.Context, reg model.Registration) (model.Monitor, error) {
	m, err := r.Create(ctx, reg)
	if err != nil {
		return model.Monitor{}, err
	}
	defer r.lock(m.ID)()
	if _, err := r.repo.GetMonitor(ctx, m.ID); err != nil {
		// deleted before it could be scheduled
		return m, err
	}
	if err := r.sched.Start(m); err != nil {
		return m, fmt.Errorf("start monitor: %w", err)
	}
	return m, nil
}

// Start marks a stored monitor ACTIVE and schedules it. Starting a running
// monitor restarts its task.
func (r *Registry) Start(ctx context.Context, id string) (model.Monitor, error) {
	defer r.lock(id)()
	m, err := r.repo.GetMonitor(ctx, id)
	if err != nil {
		return model.Monitor{}, err
	}
	if m.State != model.StateActive {
		if err := r.repo.SetState(ctx, id, model.StateActive); err != nil {
			return model.Monitor{}, fmt.Errorf("set state: %w", err)
		}
		m.State = model.StateActive
	}
	if err := r.sched.Start(m); err != nil {
		return m, fmt.Errorf("start monitor: %w", err)
	}
	return m, nil
}

// Stop halts probing for id and records it as STOPPED. Unknown ids are a
// no-op.
func (r *Registry) Stop(ctx context.Context, id string) error {
	defer r.lock(id)()
	r.sched.Stop(id)
	err := r.repo.SetState(ctx, id, model.StateStopped)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// StopAll stops every monitor, running or not.
func (r *Registry) StopAll(ctx context.Context) error {
	r.sched.StopAll()

	monitors, err := r.repo.ListMonitors(ctx)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	var errs []error
	for _, m := range monitors {
		if m.State == model.StateStopped {
			continue
		}
		if err := r.Stop(ctx, m.ID); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("all monitors stopped", "count", len(monitors))
	return errors.Join(errs...)
}

// Delete stops the monitor and removes it with its downtime log. The
// scheduler has persisted any closing interval by the time the record goes.
func (r *Registry) Delete(ctx context.Context, id string) error {
	defer r.lock(id)()
	r.sched.Stop(id)
	if err := r.repo.DeleteMonitor(ctx, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	slog.Info("monitor deleted", "id", id)
	return nil
}

func (r *Registry) List(ctx context.Context) ([]model.Monitor, error) {
	return r.repo.ListMonitors(ctx)
}

// Get returns the monitor with its downtime log, or storage.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (model.MonitorDetail, error) {
	m, err := r.repo.GetMonitor(ctx, id)
	if err != nil {
		return model.MonitorDetail{}, err
	}
	logs, err := r.repo.ListIntervals(ctx, id)
	if err != nil {
		return model.MonitorDetail{}, err
	}
	return model.MonitorDetail{Monitor: m, Logs: logs}, nil
}

// Status reports the live tracker state for id.
func (r *Registry) Status(id string) (MonitorStatus, bool) {
	return r.sched.Status(id)
}

// Resume schedules every persisted ACTIVE monitor. Monitors that fail to
// start are logged and skipped.
func (r *Registry) Resume(ctx context.Context) (int, error) {
	monitors, err := r.repo.ListMonitors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list monitors: %w", err)
	}
	started := 0
	for _, m := range monitors {
		if m.State != model.StateActive {
			continue
		}
		ok, err := r.resume(ctx, m)
		if err != nil {
			slog.Error("failed to resume monitor", "id", m.ID, "url", m.URL, "error", err)
			continue
		}
		if ok {
			started++
		}
	}
	slog.Info("monitors resumed", "started", started, "total", len(monitors))
	return started, nil
}

// resume starts m unless it was deleted or stopped since it was listed.
func (r *Registry) resume(ctx context.Context, m model.Monitor) (bool, error) {
	defer r.lock(m.ID)()
	cur, err := r.repo.GetMonitor(ctx, m.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.State != model.StateActive {
		return false, nil
	}
	if err := r.sched.Start(cur); err != nil {
		return false, err
	}
	return true, nil
}
