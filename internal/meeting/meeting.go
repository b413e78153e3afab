package meeting

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Participant identifies someone present on a call. Bot participants
// never count toward meeting head-counts and never receive summaries.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Bot         bool   `json:"bot,omitempty"`
}

// TranscriptEntry is one transcribed utterance. Immutable once created;
// only an utterance recorder produces them.
type TranscriptEntry struct {
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	AudioPath   string    `json:"audio_path,omitempty"`
}

// Meeting is the persisted record of one call. EndTime nil means the
// meeting is active; at most one meeting per call is ever active.
// Title and Summary are attached once by summarization after the call.
type Meeting struct {
	ID         string            `json:"meeting_id"`
	Attendees  []Participant     `json:"attendees"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	Transcript []TranscriptEntry `json:"transcript,omitempty"`
	Title      string            `json:"title,omitempty"`
	Summary    string            `json:"summary,omitempty"`
}

// Active reports whether the meeting is still running.
func (m *Meeting) Active() bool {
	return m.EndTime == nil
}

// HasAttendee looks an attendee up by participant id. Display names
// can change mid-call, ids cannot.
func (m *Meeting) HasAttendee(id string) bool {
	for _, a := range m.Attendees {
		if a.ID == id {
			return true
		}
	}
	return false
}

// AddAttendee appends a participant if not already on the roster.
// Returns true if the roster grew.
func (m *Meeting) AddAttendee(p Participant) bool {
	if m.HasAttendee(p.ID) {
		return false
	}
	m.Attendees = append(m.Attendees, p)
	return true
}

// SortedTranscript returns a copy of the transcript ordered by
// timestamp, the order summarization and display consume it in.
func (m *Meeting) SortedTranscript() []TranscriptEntry {
	entries := make([]TranscriptEntry, len(m.Transcript))
	copy(entries, m.Transcript)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

// NewID generates a meeting id that is unique and sorts by start time.
func NewID(start time.Time) string {
	return fmt.Sprintf("%s-%s", start.UTC().Format("20060102-150405"), uuid.New().String()[:8])
}
