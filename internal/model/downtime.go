package model

import (
	"math"
	"time"
)

// DowntimeInterval is a closed record of one outage.
type DowntimeInterval struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
}

// NewDowntimeInterval builds an interval, clamping end to start so that
// End >= Start always holds. Duration is rounded to the nearest whole minute.
func NewDowntimeInterval(start, end time.Time) DowntimeInterval {
	if end.Before(start) {
		end = start
	}
	mins := int(math.Round(end.Sub(start).Minutes()))
	if mins < 0 {
		mins = 0
	}
	return DowntimeInterval{Start: start, End: end, DurationMinutes: mins}
}

// Duration is the exact length of the outage.
func (d DowntimeInterval) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// MonitorDetail is a monitor together with its downtime log.
type MonitorDetail struct {
	Monitor
	Logs []DowntimeInterval `json:"logs"`
}
