package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/makt28/downwatch/internal/hub"
	"github.com/makt28/downwatch/internal/model"
	"github.com/makt28/downwatch/internal/notify"
	"github.com/makt28/downwatch/internal/storage"
)

// scriptedProber returns queued outcomes, then Reachable.
type scriptedProber struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    int

	// entered/release, when set, hold each probe until released or cancelled.
	entered chan struct{}
	release chan struct{}
}

func (p *scriptedProber) queue(o ...Outcome) {
	p.mu.Lock()
	p.outcomes = append(p.outcomes, o...)
	p.mu.Unlock()
}

func (p *scriptedProber) Probe(ctx context.Context, _ string) ProbeResult {
	if p.entered != nil {
		p.entered <- struct{}{}
		select {
		case <-p.release:
		case <-ctx.Done():
			return ProbeResult{Outcome: Unreachable, Error: ctx.Err().Error()}
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.outcomes) == 0 {
		return ProbeResult{Outcome: Reachable, StatusCode: 200}
	}
	o := p.outcomes[0]
	p.outcomes = p.outcomes[1:]
	if o == Unreachable {
		return ProbeResult{Outcome: o, StatusCode: 503, Error: "HTTP 503"}
	}
	return ProbeResult{Outcome: o, StatusCode: 200}
}

func (p *scriptedProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// memIntervals records persisted intervals per monitor.
type memIntervals struct {
	mu      sync.Mutex
	byID    map[string][]model.DowntimeInterval
	missing map[string]bool
	err     error
}

func newMemIntervals() *memIntervals {
	return &memIntervals{byID: map[string][]model.DowntimeInterval{}, missing: map[string]bool{}}
}

func (m *memIntervals) AppendInterval(_ context.Context, id string, iv model.DowntimeInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.missing[id] {
		return storage.ErrNotFound
	}
	m.byID[id] = append(m.byID[id], iv)
	return nil
}

func (m *memIntervals) get(id string) []model.DowntimeInterval {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DowntimeInterval(nil), m.byID[id]...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []notify.AlertEvent
}

func (a *recordingAlerter) Notify(_ context.Context, ev notify.AlertEvent) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

type recordingSink struct {
	mu     sync.Mutex
	events []hub.Event
}

func (s *recordingSink) Broadcast(evt hub.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	sched  *Scheduler
	prober *scriptedProber
	store  *memIntervals
	alerts *recordingAlerter
	sink   *recordingSink
	clock  *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		prober: &scriptedProber{},
		store:  newMemIntervals(),
		alerts: &recordingAlerter{},
		sink:   &recordingSink{},
		clock:  &testClock{now: t0},
	}
	h.sched = NewScheduler(h.prober, h.store, h.alerts, WithEvents(h.sink))
	h.sched.probeOnStart = false
	h.sched.now = h.clock.Now
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.sched.Shutdown(ctx)
	})
	return h
}

// current returns the entry and task for id as a cron firing would see them.
func (h *harness) current(t *testing.T, id string) (*entry, *task) {
	t.Helper()
	h.sched.mu.Lock()
	e := h.sched.entries[id]
	h.sched.mu.Unlock()
	if e == nil {
		t.Fatalf("no entry for %s", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task == nil {
		t.Fatalf("no task for %s", id)
	}
	return e, e.task
}

// tickAt runs one tick for id with the clock at ts and waits for alerts.
func (h *harness) tickAt(t *testing.T, id string, ts time.Time) {
	t.Helper()
	e, tk := h.current(t, id)
	h.clock.Set(ts)
	h.sched.tick(e, tk)
	h.sched.wg.Wait()
}

func testMonitor(id string, iv model.Interval) model.Monitor {
	return model.Monitor{
		ID:       id,
		URL:      "https://" + id + ".example.com",
		Email:    "ops@example.com",
		Interval: iv,
		State:    model.StateActive,
	}
}

func TestSchedulerTenSecondExample(t *testing.T) {
	h := newHarness(t)
	if err := h.sched.Start(testMonitor("m", model.Interval10s)); err != nil {
		t.Fatal(err)
	}

	h.prober.queue(Reachable, Unreachable, Reachable)
	h.tickAt(t, "m", t0)
	h.tickAt(t, "m", t0.Add(10*time.Second))
	if h.alerts.count() != 1 {
		t.Fatalf("alerts after failure = %d, want 1", h.alerts.count())
	}
	h.tickAt(t, "m", t0.Add(25*time.Second))

	got := h.store.get("m")
	if len(got) != 1 {
		t.Fatalf("got %d intervals, want 1", len(got))
	}
	want := model.DowntimeInterval{Start: t0.Add(10 * time.Second), End: t0.Add(25 * time.Second), DurationMinutes: 0}
	if got[0] != want {
		t.Errorf("interval = %+v, want %+v", got[0], want)
	}
	if h.alerts.count() != 1 {
		t.Errorf("alerts = %d, want 1", h.alerts.count())
	}
	ev := h.alerts.events[0]
	if ev.MonitorID != "m" || ev.Target != "https://m.example.com" || ev.Email != "ops@example.com" || !ev.Timestamp.Equal(t0.Add(10*time.Second)) {
		t.Errorf("alert = %+v", ev)
	}
}

func TestSchedulerContinuousOutageAlertsOnce(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(testMonitor("m", model.Interval30s))

	h.prober.queue(Unreachable, Unreachable, Unreachable, Reachable)
	for i := 0; i < 4; i++ {
		h.tickAt(t, "m", t0.Add(time.Duration(i)*30*time.Second))
	}

	if h.alerts.count() != 1 {
		t.Errorf("alerts = %d, want 1", h.alerts.count())
	}
	got := h.store.get("m")
	if len(got) != 1 || !got[0].Start.Equal(t0) || got[0].DurationMinutes != 2 {
		t.Errorf("intervals = %+v, want one from t0 lasting 2 minutes", got)
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if len(h.sink.events) != 2 || h.sink.events[0].Type != "monitor.down" || h.sink.events[1].Type != "monitor.up" {
		t.Errorf("events = %+v", h.sink.events)
	}
}

func TestSchedulerStopWhileDown(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(testMonitor("m", model.Interval1m))

	h.prober.queue(Unreachable)
	h.tickAt(t, "m", t0)

	h.clock.Set(t0.Add(90 * time.Second))
	iv := h.sched.Stop("m")
	if iv == nil {
		t.Fatal("Stop while DOWN returned no interval")
	}
	if !iv.End.Equal(t0.Add(90*time.Second)) || iv.DurationMinutes != 2 {
		t.Errorf("interval = %+v", iv)
	}
	if got := h.store.get("m"); len(got) != 1 || got[0] != *iv {
		t.Errorf("persisted = %+v", got)
	}
	if _, ok := h.sched.Status("m"); ok {
		t.Error("status still present after stop")
	}

	// idempotent
	if iv := h.sched.Stop("m"); iv != nil {
		t.Errorf("second Stop = %+v", iv)
	}
	if h.sched.Stop("unknown") != nil {
		t.Error("Stop on unknown id returned an interval")
	}
}

func TestSchedulerStopWhileUpWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(testMonitor("m", model.Interval10s))
	h.tickAt(t, "m", t0)

	if iv := h.sched.Stop("m"); iv != nil {
		t.Errorf("Stop while UP = %+v", iv)
	}
	if got := h.store.get("m"); len(got) != 0 {
		t.Errorf("persisted = %+v", got)
	}
}

func TestSchedulerRestartKeepsOpenOutage(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(testMonitor("m", model.Interval10s))

	h.prober.queue(Unreachable)
	h.tickAt(t, "m", t0)
	_, oldTask := h.current(t, "m")

	if err := h.sched.Start(testMonitor("m", model.Interval30s)); err != nil {
		t.Fatal(err)
	}
	if n := len(h.sched.cron.Entries()); n != 1 {
		t.Fatalf("cron entries after restart = %d, want 1", n)
	}
	if oldTask.ctx.Err() == nil {
		t.Error("old task not cancelled")
	}
	if st, _ := h.sched.Status("m"); !st.Down || !st.DownSince.Equal(t0) {
		t.Errorf("status after restart = %+v", st)
	}

	h.prober.queue(Reachable)
	h.tickAt(t, "m", t0.Add(45*time.Second))
	got := h.store.get("m")
	if len(got) != 1 || !got[0].Start.Equal(t0) {
		t.Errorf("intervals = %+v", got)
	}
	if h.alerts.count() != 1 {
		t.Errorf("alerts = %d, want 1", h.alerts.count())
	}
}

func TestSchedulerStaleTickIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(testMonitor("m", model.Interval10s))
	e, tk := h.current(t, "m")

	h.prober.entered = make(chan struct{})
	h.prober.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		h.sched.tick(e, tk)
		close(done)
	}()
	<-h.prober.entered

	// delete races the in-flight probe
	h.store.mu.Lock()
	h.store.missing["m"] = true
	h.store.mu.Unlock()
	h.sched.Stop("m")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not return after its task was cancelled")
	}
	h.sched.wg.Wait()

	if h.alerts.count() != 0 {
		t.Errorf("alerts = %d, want 0", h.alerts.count())
	}
	if e.tracker.Down() {
		t.Error("stale result reached the tracker")
	}

	// a firing that slipped past removal is a no-op
	h.sched.tick(e, tk)
	if h.prober.Calls() != 0 {
		t.Errorf("probe calls = %d, want 0", h.prober.Calls())
	}
}

func TestSchedulerRejectsUnsupportedInterval(t *testing.T) {
	h := newHarness(t)
	err := h.sched.Start(testMonitor("m", model.Interval("weekly")))
	if !errors.Is(err, model.ErrUnsupportedInterval) {
		t.Fatalf("err = %v, want ErrUnsupportedInterval", err)
	}
	if len(h.sched.Active()) != 0 || len(h.sched.cron.Entries()) != 0 {
		t.Error("task created for unsupported interval")
	}
}

func TestSchedulerStopAll(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b", "c"} {
		h.sched.Start(testMonitor(id, model.Interval5m))
	}
	h.prober.queue(Unreachable)
	h.tickAt(t, "b", t0)

	h.clock.Set(t0.Add(time.Minute))
	h.sched.StopAll()

	if len(h.sched.Active()) != 0 || len(h.sched.cron.Entries()) != 0 {
		t.Errorf("active = %v", h.sched.Active())
	}
	if got := h.store.get("b"); len(got) != 1 || got[0].DurationMinutes != 1 {
		t.Errorf("b intervals = %+v", got)
	}
}

func TestSchedulerPersistFailureKeepsTicking(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("disk full")
	h.sched.Start(testMonitor("m", model.Interval10s))

	h.prober.queue(Unreachable, Reachable, Unreachable)
	h.tickAt(t, "m", t0)
	h.tickAt(t, "m", t0.Add(10*time.Second))
	h.tickAt(t, "m", t0.Add(20*time.Second))

	if h.alerts.count() != 2 {
		t.Errorf("alerts = %d, want 2", h.alerts.count())
	}
	if st, _ := h.sched.Status("m"); !st.Down {
		t.Error("tracker did not keep running after a write failure")
	}
}

func TestSchedulerProbeTimeoutCapped(t *testing.T) {
	h := newHarness(t)
	WithProbeTimeout(30 * time.Second)(h.sched)
	h.sched.Start(testMonitor("fast", model.Interval10s))
	h.sched.Start(testMonitor("slow", model.Interval5m))

	if _, tk := h.current(t, "fast"); tk.timeout != 5*time.Second {
		t.Errorf("10sec timeout = %v, want 5s", tk.timeout)
	}
	if _, tk := h.current(t, "slow"); tk.timeout != 30*time.Second {
		t.Errorf("5min timeout = %v, want 30s", tk.timeout)
	}
}

func TestSchedulerProbeTimeoutHalfCadence(t *testing.T) {
	tests := []struct {
		configured time.Duration
		interval   model.Interval
		want       time.Duration
	}{
		{9 * time.Second, model.Interval10s, 5 * time.Second},
		{6 * time.Second, model.Interval10s, 5 * time.Second},
		{4 * time.Second, model.Interval10s, 4 * time.Second},
		{20 * time.Second, model.Interval30s, 15 * time.Second},
		{10 * time.Second, model.Interval1m, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.interval, tt.configured), func(t *testing.T) {
			h := newHarness(t)
			WithProbeTimeout(tt.configured)(h.sched)
			if err := h.sched.Start(testMonitor("m", tt.interval)); err != nil {
				t.Fatal(err)
			}
			if _, tk := h.current(t, "m"); tk.timeout != tt.want {
				t.Errorf("timeout = %v, want %v", tk.timeout, tt.want)
			}
		})
	}
}

func TestSchedulerProbeOnStartAndShutdown(t *testing.T) {
	h := newHarness(t)
	h.sched.probeOnStart = true
	h.sched.Run()

	h.sched.Start(testMonitor("m", model.Interval10s))
	h.sched.wg.Wait()
	if h.prober.Calls() != 1 {
		t.Errorf("probe calls after start = %d, want 1", h.prober.Calls())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.sched.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.sched.Start(testMonitor("n", model.Interval10s)); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("Start after shutdown err = %v", err)
	}
}
