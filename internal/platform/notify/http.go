package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPSender posts notification payloads to the hosted mail function.
type HTTPSender struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewHTTPSender builds a sender for the mail function at baseURL. token is
// sent as a bearer credential; the mail function rejects unauthenticated
// calls.
func NewHTTPSender(baseURL, token string, logger zerolog.Logger) *HTTPSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token)

	return &HTTPSender{
		client: client,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Send posts one message to the mail function. A non-2xx response is an
// error; the caller decides whether the failure aborts or continues the
// fan-out.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrMissingRecipient
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("")
	if err != nil {
		return fmt.Errorf("posting notification for %s: %w", msg.Recipient, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail function returned %d for %s: %s",
			resp.StatusCode(), msg.Recipient, resp.String())
	}

	s.logger.Info().
		Str("submission_id", msg.SubmissionID).
		Str("recipient", msg.Recipient).
		Msg("notification delivered")
	return nil
}
