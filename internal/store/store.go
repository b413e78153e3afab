// Package store persists meeting records. The interface treats the
// backend as a generic key-document store; implementations must keep
// transcript appends atomic so concurrent speakers never lose entries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

var (
	// ErrNotFound is returned when no meeting matches the query.
	ErrNotFound = errors.New("meeting not found")

	// ErrAlreadyExists is returned when creating a meeting whose id
	// is already taken.
	ErrAlreadyExists = errors.New("meeting already exists")
)

// MeetingStore is the persistence contract the session layer depends
// on. All methods are safe for concurrent use.
type MeetingStore interface {
	// CreateMeeting inserts a new meeting record. Fails with
	// ErrAlreadyExists if the id is taken.
	CreateMeeting(ctx context.Context, m *meeting.Meeting) error

	// GetMeeting fetches one meeting by id, transcript included.
	GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error)

	// FindActiveMeeting returns the meeting whose end time is unset.
	// If the store somehow holds more than one, the most recently
	// started wins (deterministic tie-break, logged upstream).
	FindActiveMeeting(ctx context.Context) (*meeting.Meeting, error)

	// AddAttendee adds a participant to the meeting roster. Adding an
	// attendee who is already present is a no-op, not an error.
	AddAttendee(ctx context.Context, meetingID string, p meeting.Participant) error

	// AppendTranscript atomically appends one entry to the meeting's
	// transcript. Concurrent appends from different speakers must all
	// survive.
	AppendTranscript(ctx context.Context, meetingID string, entry meeting.TranscriptEntry) error

	// SetEndTime closes the meeting.
	SetEndTime(ctx context.Context, meetingID string, end time.Time) error

	// SetSummary attaches the post-call title and summary.
	SetSummary(ctx context.Context, meetingID, title, summary string) error

	// ListMeetings returns every stored meeting. Used as the fallback
	// path when no active meeting matches.
	ListMeetings(ctx context.Context) ([]*meeting.Meeting, error)
}
