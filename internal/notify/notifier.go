package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AlertEvent is a DOWN transition to be delivered through the notifiers.
type AlertEvent struct {
	MonitorID   string
	MonitorName string
	Type        string // "down"
	Target      string
	Email       string
	Phone       string
	CountryCode string
	Reason      string
	Timestamp   time.Time
	Timezone    string // IANA timezone name, e.g. "Asia/Shanghai"; empty = UTC
}

// HasSMS reports whether the event carries a full phone number.
func (e AlertEvent) HasSMS() bool {
	return e.Phone != "" && e.CountryCode != ""
}

// SMSNumber joins country code and phone in E.164 order.
func (e AlertEvent) SMSNumber() string {
	cc := e.CountryCode
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return cc + e.Phone
}

// DisplayName is the monitor name, or its URL when unnamed.
func (e AlertEvent) DisplayName() string {
	if e.MonitorName != "" {
		return e.MonitorName
	}
	return e.Target
}

// LocalTime renders the event time in the configured timezone.
func (e AlertEvent) LocalTime() string {
	t := e.Timestamp
	tzLabel := "UTC"
	if e.Timezone != "" {
		if loc, err := time.LoadLocation(e.Timezone); err == nil {
			t = t.In(loc)
			tzLabel = e.Timezone
		}
	} else {
		t = t.UTC()
	}
	return fmt.Sprintf("%s %s", t.Format("2006-01-02 15:04:05"), tzLabel)
}

// Notifier is the interface that all notification channel implementations must satisfy.
type Notifier interface {
	// Type returns the notifier type identifier (e.g., "email", "webhook").
	Type() string

	// Send delivers an alert event. It should return an error if delivery fails.
	Send(ctx context.Context, event AlertEvent) error

	// Validate checks whether the notifier configuration is valid.
	Validate() error
}
