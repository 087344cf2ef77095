package monitor

import (
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker()

	if got := tr.Observe(Reachable, t0); got.EnteredDown || got.Interval != nil {
		t.Errorf("UP+Reachable = %+v, want nothing", got)
	}

	got := tr.Observe(Unreachable, t0.Add(10*time.Second))
	if !got.EnteredDown || got.Interval != nil {
		t.Fatalf("UP+Unreachable = %+v, want EnteredDown", got)
	}
	if since, down := tr.OpenSince(); !down || !since.Equal(t0.Add(10*time.Second)) {
		t.Errorf("OpenSince = %v, %v", since, down)
	}

	if got := tr.Observe(Unreachable, t0.Add(20*time.Second)); got.EnteredDown || got.Interval != nil {
		t.Errorf("DOWN+Unreachable = %+v, want nothing", got)
	}

	got = tr.Observe(Reachable, t0.Add(25*time.Second))
	if got.Interval == nil {
		t.Fatal("DOWN+Reachable emitted no interval")
	}
	iv := got.Interval
	if !iv.Start.Equal(t0.Add(10*time.Second)) || !iv.End.Equal(t0.Add(25*time.Second)) || iv.DurationMinutes != 0 {
		t.Errorf("interval = %+v", iv)
	}
	if tr.Down() {
		t.Error("tracker still DOWN after recovery")
	}
}

func TestTrackerForceClose(t *testing.T) {
	tr := NewTracker()
	if iv := tr.ForceClose(t0); iv != nil {
		t.Errorf("ForceClose while UP = %+v, want nil", iv)
	}

	tr.Observe(Unreachable, t0)
	iv := tr.ForceClose(t0.Add(3 * time.Minute))
	if iv == nil || iv.DurationMinutes != 3 || !iv.End.Equal(t0.Add(3*time.Minute)) {
		t.Fatalf("ForceClose = %+v", iv)
	}
	if tr.Down() {
		t.Error("tracker DOWN after ForceClose")
	}
	if iv := tr.ForceClose(t0.Add(4 * time.Minute)); iv != nil {
		t.Error("second ForceClose emitted an interval")
	}
}

// A session is open exactly while the tracker is DOWN, and every interval
// corresponds to one UP->DOWN->UP cycle.
func TestTrackerRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		tr := NewTracker()
		now := t0
		lastDown := false
		downEntries, intervals := 0, 0

		for i := 0; i < 50; i++ {
			now = now.Add(10 * time.Second)
			o := Outcome(rng.Intn(2) == 0)
			got := tr.Observe(o, now)

			if got.EnteredDown {
				downEntries++
			}
			if got.Interval != nil {
				intervals++
				if got.Interval.End.Before(got.Interval.Start) {
					t.Fatalf("interval end before start: %+v", got.Interval)
				}
			}
			_, open := tr.OpenSince()
			if open != tr.Down() {
				t.Fatalf("open session %v but down %v", open, tr.Down())
			}
			if tr.Down() != (o == Unreachable) {
				t.Fatalf("state %v after outcome %v", tr.Down(), o)
			}
			lastDown = tr.Down()
		}

		want := downEntries
		if lastDown {
			want--
		}
		if intervals != want {
			t.Fatalf("run %d: %d intervals for %d outages (open at end: %v)", run, intervals, downEntries, lastDown)
		}
	}
}
