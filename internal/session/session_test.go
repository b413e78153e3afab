package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/meeting"
	"github.com/notewell/meeting-recorder/internal/recorder"
	"github.com/notewell/meeting-recorder/internal/store"
)

type stubEngine struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (e *stubEngine) Transcribe(_ context.Context, _ []float32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.text, nil
}

type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSummarizer) Summarize(_ context.Context, _ *meeting.Meeting) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "Team Sync", "We talked.", s.err
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubNotifier struct {
	mu         sync.Mutex
	recipients []string
	err        error
}

func (n *stubNotifier) SendDirect(_ context.Context, recipient meeting.Participant, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, recipient.ID)
	return n.err
}

func (n *stubNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.recipients...)
}

func testSessionOptions() Options {
	return Options{
		MinParticipants: 2,
		Recorder: recorder.Options{
			SilenceTimeout: 40 * time.Millisecond,
			MinSilence:     50 * time.Millisecond,
			ThresholdDB:    -40,
			SourceRate:     48000,
			SourceChannels: 2,
		},
	}
}

func newTestSession(st store.MeetingStore) (*Session, *stubEngine, *stubSummarizer, *stubNotifier) {
	engine := &stubEngine{text: "hello world"}
	summarizer := &stubSummarizer{}
	notifier := &stubNotifier{}
	s := New(testSessionOptions(), st, engine, summarizer, notifier, nil, zerolog.Nop())
	return s, engine, summarizer, notifier
}

func tonePCM(durationMs, rate, channels int, amplitude float64) []byte {
	frames := rate * durationMs / 1000
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			idx := (i*channels + c) * 2
			out[idx] = byte(v)
			out[idx+1] = byte(v >> 8)
		}
	}
	return out
}

func TestSession_MeetingCreatedAtThreshold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	// A bot and one human are not enough.
	s.OnJoin(ctx, meeting.Participant{ID: "bot", DisplayName: "Recorder", Bot: true})
	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	if s.MeetingID() != "" {
		t.Fatal("meeting created before participant threshold")
	}

	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})
	id := s.MeetingID()
	if id == "" {
		t.Fatal("meeting not created at threshold")
	}

	m, err := st.GetMeeting(ctx, id)
	if err != nil {
		t.Fatalf("GetMeeting failed: %v", err)
	}
	if len(m.Attendees) != 2 {
		t.Errorf("expected 2 attendees, got %d", len(m.Attendees))
	}
	if m.HasAttendee("bot") {
		t.Error("bot must not appear on the roster")
	}
	if !m.Active() {
		t.Error("new meeting should be active")
	}
}

func TestSession_LateJoinerAddedToRoster(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})
	s.OnJoin(ctx, meeting.Participant{ID: "u3", DisplayName: "Carol"})

	m, err := st.GetMeeting(ctx, s.MeetingID())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Attendees) != 3 || !m.HasAttendee("u3") {
		t.Errorf("late joiner missing from roster: %+v", m.Attendees)
	}
}

func TestSession_PacketsFlowIntoTranscript(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	// Packets before the meeting exists are dropped silently.
	s.OnPacket("u1", tonePCM(100, 48000, 2, 10000))

	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})

	s.OnPacket("u1", tonePCM(200, 48000, 2, 10000))

	deadline := time.Now().Add(2 * time.Second)
	for {
		m, err := st.GetMeeting(ctx, s.MeetingID())
		if err != nil {
			t.Fatal(err)
		}
		if len(m.Transcript) == 1 {
			e := m.Transcript[0]
			if e.SpeakerID != "u1" || e.SpeakerName != "Alice" || e.Text != "hello world" {
				t.Errorf("unexpected transcript entry: %+v", e)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript entry never arrived, got %d entries", len(m.Transcript))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSession_EndSummarizesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, summarizer, notifier := newTestSession(st)

	s.OnJoin(ctx, meeting.Participant{ID: "bot", Bot: true})
	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})
	id := s.MeetingID()

	if err := st.AppendTranscript(ctx, id, meeting.TranscriptEntry{
		SpeakerID: "u1", SpeakerName: "Alice", Text: "hi", Timestamp: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	s.End(ctx)
	s.End(ctx) // second call must be a no-op

	if n := summarizer.callCount(); n != 1 {
		t.Fatalf("expected exactly one summarization, got %d", n)
	}

	m, err := st.GetMeeting(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Active() {
		t.Error("meeting should be closed")
	}
	if m.Title != "Team Sync" || m.Summary != "We talked." {
		t.Errorf("summary not persisted: %q / %q", m.Title, m.Summary)
	}

	sent := notifier.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sent))
	}
	for _, id := range sent {
		if id == "bot" {
			t.Error("bot must never receive a summary")
		}
	}
}

func TestSession_EmptyTranscriptSkipsSummary(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, summarizer, notifier := newTestSession(st)

	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})

	s.End(ctx)

	if summarizer.callCount() != 0 {
		t.Error("summarizer must not run on an empty transcript")
	}
	if len(notifier.sent()) != 0 {
		t.Error("no notifications expected for an empty transcript")
	}
}

func TestSession_LastHumanLeavingEndsMeeting(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	s.OnJoin(ctx, meeting.Participant{ID: "bot", Bot: true})
	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})
	id := s.MeetingID()

	s.OnLeave(ctx, "u1")
	if s.Ended() {
		t.Fatal("meeting ended while a human was still present")
	}

	s.OnLeave(ctx, "u2")
	if !s.Ended() {
		t.Fatal("meeting should end when the last human leaves")
	}

	m, err := st.GetMeeting(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Active() {
		t.Error("meeting record should be closed")
	}
}

func TestSession_NotifierFailureDoesNotAbortFanout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, notifier := newTestSession(st)
	notifier.err = errors.New("dm channel closed")

	s.OnJoin(ctx, meeting.Participant{ID: "u1", DisplayName: "Alice"})
	s.OnJoin(ctx, meeting.Participant{ID: "u2", DisplayName: "Bob"})
	id := s.MeetingID()

	if err := st.AppendTranscript(ctx, id, meeting.TranscriptEntry{
		SpeakerID: "u1", Text: "hi", Timestamp: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	s.End(ctx)

	// Every recipient is still attempted.
	if len(notifier.sent()) != 2 {
		t.Errorf("expected 2 delivery attempts, got %d", len(notifier.sent()))
	}
}

func TestSession_HandleUtteranceFallsBackToActiveMeeting(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	// A meeting exists in the store but the session never bound one.
	m := &meeting.Meeting{ID: "orphan", StartTime: time.Now()}
	if err := st.CreateMeeting(ctx, m); err != nil {
		t.Fatal(err)
	}

	entry := meeting.TranscriptEntry{SpeakerID: "u1", Text: "stray", Timestamp: time.Now()}
	if err := s.HandleUtterance(ctx, entry); err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}

	got, err := st.GetMeeting(ctx, "orphan")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Text != "stray" {
		t.Errorf("entry not routed to fallback meeting: %+v", got.Transcript)
	}
}

func TestSession_HandleUtteranceNoMeetingAnywhere(t *testing.T) {
	st := store.NewMemoryStore()
	s, _, _, _ := newTestSession(st)

	err := s.HandleUtterance(context.Background(), meeting.TranscriptEntry{Text: "lost"})
	if err == nil {
		t.Error("expected error when no meeting exists at all")
	}
}
