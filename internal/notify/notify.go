// Package notify delivers meeting summaries to attendees.
package notify

import (
	"context"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

// Sink sends a direct message to one recipient. Delivery is best
// effort; the caller logs failures per recipient and keeps going.
type Sink interface {
	SendDirect(ctx context.Context, recipient meeting.Participant, subject, body string) error
}

// Discard is a Sink that drops every message. Used when no delivery
// channel is configured.
type Discard struct{}

// SendDirect does nothing.
func (Discard) SendDirect(context.Context, meeting.Participant, string, string) error {
	return nil
}
