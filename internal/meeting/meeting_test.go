package meeting

import (
	"strings"
	"testing"
	"time"
)

func TestMeeting_Active(t *testing.T) {
	m := &Meeting{ID: "m1", StartTime: time.Now()}
	if !m.Active() {
		t.Error("meeting with no end time should be active")
	}

	end := time.Now()
	m.EndTime = &end
	if m.Active() {
		t.Error("meeting with an end time should not be active")
	}
}

func TestMeeting_AddAttendee(t *testing.T) {
	m := &Meeting{}

	if !m.AddAttendee(Participant{ID: "u1", DisplayName: "Alice"}) {
		t.Error("expected roster to grow on first add")
	}
	// Same id with a changed display name is still the same person.
	if m.AddAttendee(Participant{ID: "u1", DisplayName: "Alice B."}) {
		t.Error("expected duplicate id to be rejected")
	}
	if len(m.Attendees) != 1 {
		t.Errorf("expected 1 attendee, got %d", len(m.Attendees))
	}

	if !m.HasAttendee("u1") {
		t.Error("expected attendee lookup by id to succeed")
	}
	if m.HasAttendee("u2") {
		t.Error("unexpected attendee")
	}
}

func TestMeeting_SortedTranscript(t *testing.T) {
	base := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	m := &Meeting{Transcript: []TranscriptEntry{
		{SpeakerID: "u2", Text: "third", Timestamp: base.Add(2 * time.Minute)},
		{SpeakerID: "u1", Text: "first", Timestamp: base},
		{SpeakerID: "u3", Text: "second", Timestamp: base.Add(time.Minute)},
	}}

	sorted := m.SortedTranscript()
	want := []string{"first", "second", "third"}
	for i, text := range want {
		if sorted[i].Text != text {
			t.Errorf("position %d: expected %q, got %q", i, text, sorted[i].Text)
		}
	}

	// The original slice order is untouched.
	if m.Transcript[0].Text != "third" {
		t.Error("SortedTranscript must not mutate the meeting")
	}
}

func TestNewID(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	id := NewID(start)

	if !strings.HasPrefix(id, "20260310-150405-") {
		t.Errorf("id %q does not start with the start timestamp", id)
	}
	if id == NewID(start) {
		t.Error("ids for the same start time must still be unique")
	}
}
