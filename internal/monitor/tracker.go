package monitor

import (
	"time"

	"github.com/makt28/downwatch/internal/model"
)

// Transition describes what a single observation changed.
type Transition struct {
	// EnteredDown is set on UP -> DOWN and triggers the alert.
	EnteredDown bool
	// Interval is set on DOWN -> UP with the closed outage.
	Interval *model.DowntimeInterval
}

// Tracker is the UP/DOWN state machine for one monitor. It starts UP.
// A session is open exactly while the tracker is DOWN. A failing monitor
// that keeps failing stays in one session and alerts once.
//
// Tracker is not safe for concurrent use; the scheduler guards it with the
// monitor's lock.
type Tracker struct {
	down      bool
	downSince time.Time
}

// NewTracker returns a tracker in the UP state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe feeds one probe outcome observed at now.
func (t *Tracker) Observe(o Outcome, now time.Time) Transition {
	switch {
	case !t.down && o == Unreachable:
		t.down = true
		t.downSince = now
		return Transition{EnteredDown: true}
	case t.down && o == Reachable:
		iv := model.NewDowntimeInterval(t.downSince, now)
		t.down = false
		t.downSince = time.Time{}
		return Transition{Interval: &iv}
	default:
		return Transition{}
	}
}

// ForceClose ends an open session at now, for stop and delete. It returns nil
// when the monitor is UP.
func (t *Tracker) ForceClose(now time.Time) *model.DowntimeInterval {
	if !t.down {
		return nil
	}
	iv := model.NewDowntimeInterval(t.downSince, now)
	t.down = false
	t.downSince = time.Time{}
	return &iv
}

// Down reports whether the last known state is DOWN.
func (t *Tracker) Down() bool {
	return t.down
}

// OpenSince returns the start of the open session, if any.
func (t *Tracker) OpenSince() (time.Time, bool) {
	return t.downSince, t.down
}
