package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/makt28/downwatch/internal/hub"
	"github.com/makt28/downwatch/internal/model"
	"github.com/makt28/downwatch/internal/notify"
	"github.com/makt28/downwatch/internal/storage"
)

// ErrSchedulerClosed is returned by Start after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

const (
	persistTimeout = 10 * time.Second
	alertTimeout   = 30 * time.Second
)

// IntervalWriter persists closed downtime intervals.
type IntervalWriter interface {
	AppendInterval(ctx context.Context, id string, iv model.DowntimeInterval) error
}

// Alerter delivers the DOWN notification for a monitor.
type Alerter interface {
	Notify(ctx context.Context, event notify.AlertEvent)
}

// EventSink receives transition events for live subscribers.
type EventSink interface {
	Broadcast(evt hub.Event)
}

// MonitorStatus is the live state of a scheduled monitor.
type MonitorStatus struct {
	Running   bool      `json:"running"`
	Down      bool      `json:"down"`
	DownSince time.Time `json:"downSince,omitempty"`
}

// entry is the per-monitor slot. Its mutex serializes every tracker update,
// interval write and task swap for that monitor.
type entry struct {
	mu      sync.Mutex
	tracker *Tracker
	task    *task
	removed bool
}

// task is one scheduled run of a monitor configuration.
type task struct {
	monitor model.Monitor
	timeout time.Duration
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	job     cron.Job
}

// Scheduler runs one recurring probe task per monitor.
type Scheduler struct {
	prober  Prober
	store   IntervalWriter
	alerts  Alerter
	events  EventSink
	cron    *cron.Cron
	timeout time.Duration
	now     func() time.Time

	// probeOnStart runs the first probe as soon as a task is created instead
	// of waiting a full cadence.
	probeOnStart bool

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithProbeTimeout sets the per-probe timeout. It is capped at half the
// monitor's cadence so a probe always finishes before the next tick is due.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithEvents publishes down/up transitions to sink.
func WithEvents(sink EventSink) Option {
	return func(s *Scheduler) { s.events = sink }
}

// NewScheduler creates a Scheduler. Call Run to start firing ticks.
func NewScheduler(prober Prober, store IntervalWriter, alerts Alerter, opts ...Option) *Scheduler {
	s := &Scheduler{
		prober:       prober,
		store:        store,
		alerts:       alerts,
		cron:         cron.New(cron.WithLogger(cronLogger{})),
		timeout:      DefaultProbeTimeout,
		now:          time.Now,
		probeOnStart: true,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the cron engine in its own goroutine.
func (s *Scheduler) Run() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Start schedules m at its cadence. If m is already scheduled the previous
// task is cancelled first and the tracker carries over, so an open outage
// survives a restart and two tasks never run for the same id.
func (s *Scheduler) Start(m model.Monitor) error {
	cadence, err := m.Interval.Duration()
	if err != nil {
		return err
	}
	timeout := min(s.timeout, cadence/2)

	for {
		e, err := s.slot(m.ID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.removed {
			// lost a race with Stop; take a fresh slot
			e.mu.Unlock()
			continue
		}
		restarted := e.task != nil
		if restarted {
			s.cancelTask(e.task)
		}

		t := &task{monitor: m, timeout: timeout}
		t.ctx, t.cancel = context.WithCancel(context.Background())
		t.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
			s.tick(e, t)
		}))
		t.entryID = s.cron.Schedule(cron.Every(cadence), t.job)
		e.task = t

		if s.probeOnStart {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				t.job.Run()
			}()
		}
		e.mu.Unlock()

		if restarted {
			slog.Info("monitor restarted", "id", m.ID, "url", m.URL, "interval", m.Interval)
		} else {
			slog.Info("monitor started", "id", m.ID, "url", m.URL, "interval", m.Interval)
		}
		return nil
	}
}

// Stop cancels the monitor's task and closes any open outage at the current
// time, persisting the closing interval. Unknown ids are a no-op.
func (s *Scheduler) Stop(id string) *model.DowntimeInterval {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.removed = true
	if e.task != nil {
		s.cancelTask(e.task)
		e.task = nil
	}
	iv := e.tracker.ForceClose(s.now())
	if iv != nil {
		slog.Info("closing open outage on stop", "id", id, "start", iv.Start, "minutes", iv.DurationMinutes)
		s.persist(id, *iv)
	}
	slog.Info("monitor stopped", "id", id)
	return iv
}

// StopAll stops every scheduled monitor.
func (s *Scheduler) StopAll() {
	for _, id := range s.Active() {
		s.Stop(id)
	}
}

// Shutdown stops all monitors and waits for running ticks and in-flight
// alerts, or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.StopAll()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the ids of all scheduled monitors.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Status reports the live state of a monitor.
func (s *Scheduler) Status(id string) (MonitorStatus, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return MonitorStatus{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	since, down := e.tracker.OpenSince()
	return MonitorStatus{Running: e.task != nil, Down: down, DownSince: since}, true
}

// slot returns the entry for id, creating it if needed.
func (s *Scheduler) slot(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}
	e, ok := s.entries[id]
	if !ok {
		e = &entry{tracker: NewTracker()}
		s.entries[id] = e
	}
	return e, nil
}

// cancelTask removes the cron entry and aborts an in-flight probe. Caller
// holds the entry lock.
func (s *Scheduler) cancelTask(t *task) {
	s.cron.Remove(t.entryID)
	t.cancel()
}

// tick runs one probe for t and applies the outcome if t is still the
// monitor's current task.
func (s *Scheduler) tick(e *entry, t *task) {
	if t.ctx.Err() != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	result := s.prober.Probe(probeCtx, t.monitor.URL)
	cancel()

	e.mu.Lock()
	if e.task != t {
		e.mu.Unlock()
		slog.Debug("discarding probe result for cancelled task", "id", t.monitor.ID)
		return
	}

	now := s.now()
	tr := e.tracker.Observe(result.Outcome, now)
	if tr.Interval != nil {
		s.persist(t.monitor.ID, *tr.Interval)
	}
	if tr.EnteredDown {
		// counted under the entry lock so Shutdown cannot miss it
		s.wg.Add(1)
	}
	e.mu.Unlock()

	slog.Debug("probe finished",
		"id", t.monitor.ID,
		"url", t.monitor.URL,
		"outcome", result.Outcome.String(),
		"status", result.StatusCode,
		"latency_ms", result.Latency.Milliseconds(),
		"error", result.Error,
	)

	if tr.EnteredDown {
		slog.Warn("monitor is DOWN", "id", t.monitor.ID, "url", t.monitor.URL, "reason", result.Error)
		s.publish("monitor.down", t.monitor, map[string]interface{}{
			"url":    t.monitor.URL,
			"since":  now,
			"reason": result.Error,
		})
		go func() {
			defer s.wg.Done()
			s.alert(t.monitor, now, result.Error)
		}()
	}
	if iv := tr.Interval; iv != nil {
		slog.Info("monitor recovered",
			"id", t.monitor.ID,
			"url", t.monitor.URL,
			"down_minutes", iv.DurationMinutes,
		)
		s.publish("monitor.up", t.monitor, map[string]interface{}{
			"url":      t.monitor.URL,
			"interval": iv,
		})
	}
}

// persist writes iv. A failure is logged and the tracker state is kept.
func (s *Scheduler) persist(id string, iv model.DowntimeInterval) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.store.AppendInterval(ctx, id, iv)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Warn("monitor no longer stored, dropping interval", "id", id, "start", iv.Start, "end", iv.End)
	case err != nil:
		slog.Error("failed to persist downtime interval",
			"id", id,
			"start", iv.Start,
			"end", iv.End,
			"error", err,
		)
	}
}

func (s *Scheduler) alert(m model.Monitor, at time.Time, reason string) {
	if s.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()

	s.alerts.Notify(ctx, notify.AlertEvent{
		MonitorID:   m.ID,
		MonitorName: m.Name,
		Target:      m.URL,
		Email:       m.Email,
		Phone:       m.Phone,
		CountryCode: m.CountryCode,
		Reason:      reason,
		Timestamp:   at,
	})
}

func (s *Scheduler) publish(kind string, m model.Monitor, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(hub.Event{Type: kind, MonitorID: m.ID, Payload: payload})
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
