package model

import (
	"errors"
	"fmt"
	"time"
)

// Interval is the cadence at which a monitor is probed.
type Interval string

const (
	Interval10s Interval = "10sec"
	Interval30s Interval = "30sec"
	Interval1m  Interval = "1min"
	Interval5m  Interval = "5min"
)

// ErrUnsupportedInterval is returned for any cadence outside the supported set.
var ErrUnsupportedInterval = errors.New("unsupported interval")

var intervalDurations = map[Interval]time.Duration{
	Interval10s: 10 * time.Second,
	Interval30s: 30 * time.Second,
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
}

// SupportedIntervals lists the accepted cadences, shortest first.
func SupportedIntervals() []Interval {
	return []Interval{Interval10s, Interval30s, Interval1m, Interval5m}
}

// ParseInterval validates s against the supported cadences.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("%w: %q (want one of 10sec, 30sec, 1min, 5min)", ErrUnsupportedInterval, s)
	}
	return iv, nil
}

// Duration returns the cadence as a time.Duration.
func (i Interval) Duration() (time.Duration, error) {
	d, ok := intervalDurations[i]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, string(i))
	}
	return d, nil
}

func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}
