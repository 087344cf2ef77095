package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the subset of the Twilio API client used for SMS.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// SMSNotifier texts the alert to the monitor's phone through Twilio.
type SMSNotifier struct {
	AccountSID string
	AuthToken  string
	From       string

	client messageCreator
}

func NewSMSNotifier(accountSID, authToken, from string) *SMSNotifier {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSNotifier{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		client:     rest.Api,
	}
}

func (s *SMSNotifier) Type() string { return "sms" }

func (s *SMSNotifier) Validate() error {
	if s.AccountSID == "" || s.AuthToken == "" {
		return errors.New("sms: account_sid and auth_token are required")
	}
	if s.From == "" {
		return errors.New("sms: from_number is required")
	}
	return nil
}

func (s *SMSNotifier) Send(ctx context.Context, event AlertEvent) error {
	if !event.HasSMS() {
		return errors.New("sms: event has no phone number")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(event.SMSNumber())
	params.SetFrom(s.From)
	params.SetBody(fmt.Sprintf("Downwatch: %s is DOWN (detected %s)", event.Target, event.LocalTime()))

	// the Twilio client takes no context; give up waiting when ctx expires.
	done := make(chan error, 1)
	go func() {
		_, err := s.client.CreateMessage(params)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sms: create message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sms: %w", ctx.Err())
	}
}
