package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"10sec", 10 * time.Second, true},
		{"30sec", 30 * time.Second, true},
		{"1min", time.Minute, true},
		{"5min", 5 * time.Minute, true},
		{"weekly", 0, false},
		{"", 0, false},
		{"10s", 0, false},
	}
	for _, tt := range tests {
		iv, err := ParseInterval(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseInterval(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.ok {
			if !errors.Is(err, ErrUnsupportedInterval) {
				t.Errorf("ParseInterval(%q) err = %v, want ErrUnsupportedInterval", tt.in, err)
			}
			continue
		}
		if d, _ := iv.Duration(); d != tt.want {
			t.Errorf("%q.Duration() = %v, want %v", tt.in, d, tt.want)
		}
	}

	if _, err := Interval("weekly").Duration(); !errors.Is(err, ErrUnsupportedInterval) {
		t.Errorf("Duration on unsupported interval err = %v", err)
	}
}

func TestNewDowntimeInterval(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		mins int
	}{
		{"sub-minute rounds to zero", start.Add(15 * time.Second), 0},
		{"half minute rounds up", start.Add(30 * time.Second), 1},
		{"ninety seconds", start.Add(90 * time.Second), 2},
		{"exact", start.Add(7 * time.Minute), 7},
		{"end before start is clamped", start.Add(-time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := NewDowntimeInterval(start, tt.end)
			if iv.DurationMinutes != tt.mins {
				t.Errorf("DurationMinutes = %d, want %d", iv.DurationMinutes, tt.mins)
			}
			if iv.End.Before(iv.Start) {
				t.Errorf("End %v before Start %v", iv.End, iv.Start)
			}
		})
	}
}

func TestRegistrationValidate(t *testing.T) {
	valid := Registration{URL: "https://example.com", Email: "a@example.com", Interval: "1min"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid registration: %v", err)
	}

	tests := []struct {
		name     string
		mutate   func(*Registration)
		interval bool
	}{
		{"weekly interval", func(r *Registration) { r.Interval = "weekly" }, true},
		{"missing url", func(r *Registration) { r.URL = "" }, false},
		{"non-http url", func(r *Registration) { r.URL = "ftp://example.com" }, false},
		{"missing email", func(r *Registration) { r.Email = " " }, false},
		{"bad email", func(r *Registration) { r.Email = "nobody" }, false},
		{"phone without country code", func(r *Registration) { r.Phone = "5551234" }, false},
		{"newline in name", func(r *Registration) { r.Name = "Shop\r\nBcc: x@example.com" }, false},
		{"control char in email", func(r *Registration) { r.Email = "a@example.com\nBcc: x@example.com" }, false},
		{"control char in phone", func(r *Registration) { r.Phone, r.CountryCode = "555\n1234", "+1" }, false},
		{"control char in country code", func(r *Registration) { r.Phone, r.CountryCode = "5551234", "+1\x00" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if !IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if got := errors.Is(err, ErrUnsupportedInterval); got != tt.interval {
				t.Errorf("errors.Is(ErrUnsupportedInterval) = %v, want %v", got, tt.interval)
			}
		})
	}
}

func TestMonitorSMSNumber(t *testing.T) {
	m := Monitor{Phone: "5551234", CountryCode: "1"}
	if !m.HasSMS() || m.SMSNumber() != "+15551234" {
		t.Errorf("HasSMS=%v SMSNumber=%q", m.HasSMS(), m.SMSNumber())
	}
	if (Monitor{Phone: "5551234"}).HasSMS() {
		t.Error("HasSMS without country code")
	}
}
