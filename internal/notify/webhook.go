package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

// WebhookSink posts direct messages to an HTTP endpoint. The chat
// platform adapter behind the endpoint resolves the recipient id to an
// actual DM channel.
type WebhookSink struct {
	url    string
	token  string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSink creates a sink for the given endpoint. token may be
// empty when the endpoint is unauthenticated.
func NewWebhookSink(url, token string, timeout time.Duration, logger zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

type directMessage struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// SendDirect posts one message for one recipient.
func (s *WebhookSink) SendDirect(ctx context.Context, recipient meeting.Participant, subject, body string) error {
	payload, err := json.Marshal(directMessage{
		RecipientID: recipient.ID,
		Subject:     subject,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode direct message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification to %s: %w", recipient.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned status %d for %s", resp.StatusCode, recipient.ID)
	}

	s.logger.Debug().Str("recipient_id", recipient.ID).Msg("summary delivered")
	return nil
}
