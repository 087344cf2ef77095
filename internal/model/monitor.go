package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// State is the lifecycle state of a monitor.
type State string

const (
	StateActive  State = "ACTIVE"
	StateStopped State = "STOPPED"
)

// Monitor is a registered target URL with its notification preferences and cadence.
type Monitor struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	Interval    Interval  `json:"interval"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasSMS reports whether both parts of the phone number are present.
func (m Monitor) HasSMS() bool {
	return m.Phone != "" && m.CountryCode != ""
}

// SMSNumber joins country code and phone the way the SMS provider expects them.
func (m Monitor) SMSNumber() string {
	cc := m.CountryCode
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return cc + m.Phone
}

// Registration is the user-supplied configuration for a new monitor.
type Registration struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Interval    string `json:"interval"`
}

// Validate checks the registration and returns a *ValidationError describing
// every problem found.
func (r Registration) Validate() error {
	var errs []string
	var cause error

	if _, err := ParseInterval(r.Interval); err != nil {
		errs = append(errs, "interval must be one of 10sec, 30sec, 1min, 5min")
		cause = err
	}
	if r.URL == "" {
		errs = append(errs, "url is required")
	} else if u, err := url.Parse(r.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "url must be a valid http(s) URL")
	}
	if strings.TrimSpace(r.Email) == "" {
		errs = append(errs, "email is required")
	} else if !strings.Contains(r.Email, "@") {
		errs = append(errs, "email must be a valid address")
	}
	if (r.Phone == "") != (r.CountryCode == "") {
		errs = append(errs, "phone and countryCode must be given together")
	}
	for _, f := range []struct{ name, value string }{
		{"name", r.Name},
		{"email", r.Email},
		{"phone", r.Phone},
		{"countryCode", r.CountryCode},
	} {
		if hasControl(f.value) {
			errs = append(errs, f.name+" must not contain control characters")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs, cause: cause}
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// ValidationError is returned when a registration is rejected.
type ValidationError struct {
	Problems []string
	cause    error
}

func (e *ValidationError) Error() string {
	return "invalid registration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return e.cause }

// IsValidation reports whether err is a registration validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
