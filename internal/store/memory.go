package store

import (
	"context"
	"sync"
	"time"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

// MemoryStore is an in-process MeetingStore. It is the default backend
// for single-node deployments and the double used throughout tests.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]*meeting.Meeting
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings: make(map[string]*meeting.Meeting),
	}
}

// CreateMeeting inserts a new meeting record.
func (s *MemoryStore) CreateMeeting(_ context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meetings[m.ID]; exists {
		return ErrAlreadyExists
	}
	s.meetings[m.ID] = copyMeeting(m)
	return nil
}

// GetMeeting fetches one meeting by id.
func (s *MemoryStore) GetMeeting(_ context.Context, id string) (*meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.meetings[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyMeeting(m), nil
}

// FindActiveMeeting returns the meeting with no end time, preferring
// the most recently started if the invariant has been violated.
func (s *MemoryStore) FindActiveMeeting(_ context.Context) (*meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active *meeting.Meeting
	for _, m := range s.meetings {
		if !m.Active() {
			continue
		}
		if active == nil || m.StartTime.After(active.StartTime) {
			active = m
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return copyMeeting(active), nil
}

// AddAttendee grows the roster; duplicates are ignored.
func (s *MemoryStore) AddAttendee(_ context.Context, meetingID string, p meeting.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.meetings[meetingID]
	if !exists {
		return ErrNotFound
	}
	m.AddAttendee(p)
	return nil
}

// AppendTranscript appends one entry under the store lock, so
// concurrent speakers cannot lose each other's entries.
func (s *MemoryStore) AppendTranscript(_ context.Context, meetingID string, entry meeting.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.meetings[meetingID]
	if !exists {
		return ErrNotFound
	}
	m.Transcript = append(m.Transcript, entry)
	return nil
}

// SetEndTime closes the meeting.
func (s *MemoryStore) SetEndTime(_ context.Context, meetingID string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.meetings[meetingID]
	if !exists {
		return ErrNotFound
	}
	t := end
	m.EndTime = &t
	return nil
}

// SetSummary attaches the post-call title and summary.
func (s *MemoryStore) SetSummary(_ context.Context, meetingID, title, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.meetings[meetingID]
	if !exists {
		return ErrNotFound
	}
	m.Title = title
	m.Summary = summary
	return nil
}

// ListMeetings returns a snapshot of every stored meeting.
func (s *MemoryStore) ListMeetings(_ context.Context) ([]*meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*meeting.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, copyMeeting(m))
	}
	return out, nil
}

// copyMeeting deep-copies a meeting so callers can't mutate stored
// state behind the lock.
func copyMeeting(m *meeting.Meeting) *meeting.Meeting {
	out := *m
	out.Attendees = append([]meeting.Participant(nil), m.Attendees...)
	out.Transcript = append([]meeting.TranscriptEntry(nil), m.Transcript...)
	if m.EndTime != nil {
		t := *m.EndTime
		out.EndTime = &t
	}
	return &out
}
