package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	Remark   string

	// APIBase overrides https://api.telegram.org.
	APIBase string
	Client  *http.Client
}

const telegramAPIBase = "https://api.telegram.org"

func (t *TelegramNotifier) Type() string { return "telegram" }

func (t *TelegramNotifier) Validate() error {
	if t.BotToken == "" {
		return errors.New("telegram: bot_token is required")
	}
	if t.ChatID == "" {
		return errors.New("telegram: chat_id is required")
	}
	return nil
}

func (t *TelegramNotifier) Send(ctx context.Context, event AlertEvent) error {
	text := formatTelegramMessage(event, t.Remark)

	payload := map[string]interface{}{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	base := t.APIBase
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(t.Client).Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func formatTelegramMessage(event AlertEvent, remark string) string {
	var msg string
	if remark != "" {
		msg = fmt.Sprintf("📌 <b>[%s]</b>\n", remark)
	}

	msg += fmt.Sprintf("🔴 <b>[DOWN] %s</b>\nTarget: <code>%s</code>",
		html.EscapeString(event.DisplayName()), html.EscapeString(event.Target))

	if event.Reason != "" {
		msg += fmt.Sprintf("\nReason: %s", html.EscapeString(event.Reason))
	}
	msg += fmt.Sprintf("\nTime: %s", event.LocalTime())

	return msg
}
