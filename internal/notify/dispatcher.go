package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/makt28/downwatch/internal/config"
)

// DefaultSendTimeout bounds a single channel's delivery attempt.
const DefaultSendTimeout = 10 * time.Second

type channel struct {
	id       string
	notifier Notifier
	// applies reports whether the channel can deliver this event.
	applies func(AlertEvent) bool
}

// Dispatcher fans a DOWN alert out to the monitor's email and phone and to
// every operator notifier. Delivery is best-effort: each channel runs on its
// own timeout and a failure is logged without affecting the others.
type Dispatcher struct {
	channels []channel
	timezone string
	timeout  time.Duration
	client   *http.Client
}

// NewDispatcher builds the channels enabled in cfg. Invalid operator
// notifiers are logged and skipped.
func NewDispatcher(cfg config.Config) *Dispatcher {
	d := &Dispatcher{
		timezone: cfg.System.Timezone,
		timeout:  DefaultSendTimeout,
		client:   &http.Client{Timeout: DefaultSendTimeout},
	}

	if cfg.Mail.Enabled() {
		d.add("email", &EmailNotifier{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, func(e AlertEvent) bool { return e.Email != "" })
	} else {
		slog.Warn("mail is not configured, email alerts are disabled")
	}

	if cfg.SMS.Enabled() {
		d.add("sms", NewSMSNotifier(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber), AlertEvent.HasSMS)
	} else {
		slog.Info("sms is not configured, text alerts are disabled")
	}

	for _, nc := range cfg.Notifiers {
		n := BuildNotifier(nc, d.client)
		if n == nil {
			slog.Error("unknown notifier type", "type", nc.Type, "notifier_id", nc.ID)
			continue
		}
		if err := n.Validate(); err != nil {
			slog.Error("invalid notifier, skipping", "notifier_id", nc.ID, "error", err)
			continue
		}
		d.add(nc.ID, n, nil)
	}
	return d
}

func (d *Dispatcher) add(id string, n Notifier, applies func(AlertEvent) bool) {
	d.channels = append(d.channels, channel{id: id, notifier: n, applies: applies})
}

// Channels returns the ids of the configured channels.
func (d *Dispatcher) Channels() []string {
	ids := make([]string, len(d.channels))
	for i, c := range d.channels {
		ids[i] = c.id
	}
	return ids
}

// Notify delivers event on every applicable channel and returns once all
// attempts have finished or timed out.
func (d *Dispatcher) Notify(ctx context.Context, event AlertEvent) {
	if event.Type == "" {
		event.Type = "down"
	}
	if event.Timezone == "" {
		event.Timezone = d.timezone
	}

	var wg sync.WaitGroup
	for _, c := range d.channels {
		if c.applies != nil && !c.applies(event) {
			continue
		}
		wg.Add(1)
		go func(c channel) {
			defer wg.Done()
			d.send(ctx, c, event)
		}(c)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, c channel, event AlertEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := c.notifier.Send(ctx, event); err != nil {
		slog.Error("notification send failed",
			"type", c.notifier.Type(),
			"notifier_id", c.id,
			"monitor_id", event.MonitorID,
			"error", err,
		)
		return
	}
	slog.Info("notification sent",
		"type", c.notifier.Type(),
		"notifier_id", c.id,
		"monitor_id", event.MonitorID,
		"event_type", event.Type,
	)
}

// BuildNotifier constructs an operator Notifier from a NotifierConfig. The
// notifier sends through client.
func BuildNotifier(nc config.NotifierConfig, client *http.Client) Notifier {
	switch nc.Type {
	case "telegram":
		return &TelegramNotifier{
			BotToken: nc.BotToken,
			ChatID:   nc.ChatID,
			Remark:   nc.Remark,
			Client:   client,
		}
	case "webhook":
		method := nc.Method
		if method == "" {
			method = "POST"
		}
		return &WebhookNotifier{
			URL:    nc.URL,
			Method: method,
			Remark: nc.Remark,
			Client: client,
		}
	default:
		return nil
	}
}
