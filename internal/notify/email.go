package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails the alert to the monitor's own address over SMTP.
type EmailNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	sendMail sendMailFunc
}

func (e *EmailNotifier) Type() string { return "email" }

func (e *EmailNotifier) Validate() error {
	if e.Host == "" {
		return errors.New("email: host is required")
	}
	if e.From == "" {
		return errors.New("email: from is required")
	}
	return nil
}

func (e *EmailNotifier) Send(ctx context.Context, event AlertEvent) error {
	if event.Email == "" {
		return errors.New("email: event has no recipient")
	}

	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.Password, e.Host)
	}
	addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	msg := buildEmail(e.From, event)

	send := e.sendMail
	if send == nil {
		send = smtp.SendMail
	}

	// smtp.SendMail takes no context; give up waiting when ctx expires.
	done := make(chan error, 1)
	go func() {
		done <- send(addr, auth, e.From, []string{event.Email}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email: %w", ctx.Err())
	}
}

// headerBreaks removes line breaks that would end a header early.
var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

func buildEmail(from string, event AlertEvent) []byte {
	subject := "Downwatch: " + event.DisplayName() + " is DOWN"

	var b strings.Builder
	b.WriteString("From: " + headerBreaks.Replace(from) + "\r\n")
	b.WriteString("To: " + headerBreaks.Replace(event.Email) + "\r\n")
	// Q-encoding escapes CR, LF and non-ASCII in the user-supplied name
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Your monitored site %s went down.\r\n\r\n", event.Target)
	fmt.Fprintf(&b, "Detected at: %s\r\n", event.LocalTime())
	if event.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\r\n", event.Reason)
	}
	return []byte(b.String())
}
