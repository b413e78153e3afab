// Package session orchestrates one call: roster tracking, meeting
// lifecycle, per-speaker recorders and end-of-call summarization.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/artifact"
	"github.com/notewell/meeting-recorder/internal/meeting"
	"github.com/notewell/meeting-recorder/internal/notify"
	"github.com/notewell/meeting-recorder/internal/observability"
	"github.com/notewell/meeting-recorder/internal/recorder"
	"github.com/notewell/meeting-recorder/internal/resilience"
	"github.com/notewell/meeting-recorder/internal/store"
	"github.com/notewell/meeting-recorder/internal/summary"
	"github.com/notewell/meeting-recorder/internal/transcription"
)

// Options configures a call session.
type Options struct {
	// MinParticipants is how many non-bot participants must be present
	// before a meeting record is created.
	MinParticipants int

	// Recorder configures each per-speaker utterance recorder.
	Recorder recorder.Options

	// Retry governs store writes. nil uses the default policy.
	Retry *resilience.RetryConfig
}

// Session tracks one call from first join to summary dispatch. A
// meeting record is created lazily once enough people are present, and
// ended exactly once, however many teardown paths race for it.
type Session struct {
	opts       Options
	store      store.MeetingStore
	engine     transcription.Engine
	summarizer summary.Summarizer
	notifier   notify.Sink
	saver      artifact.Saver
	logger     zerolog.Logger

	mu        sync.Mutex
	roster    map[string]meeting.Participant
	recorders map[string]*recorder.Recorder
	meetingID string
	ended     bool
}

// New creates a session. saver may be nil when audio retention is off.
func New(opts Options, st store.MeetingStore, engine transcription.Engine, summarizer summary.Summarizer, notifier notify.Sink, saver artifact.Saver, logger zerolog.Logger) *Session {
	return &Session{
		opts:       opts,
		store:      st,
		engine:     engine,
		summarizer: summarizer,
		notifier:   notifier,
		saver:      saver,
		logger:     logger.With().Str("component", "session").Logger(),
		roster:     make(map[string]meeting.Participant),
		recorders:  make(map[string]*recorder.Recorder),
	}
}

// OnJoin registers a participant. Once enough non-bot participants are
// present a meeting record is created; anyone joining later is added
// to the roster of the existing meeting.
func (s *Session) OnJoin(ctx context.Context, p meeting.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		s.logger.Debug().Str("participant_id", p.ID).Msg("join after meeting end, ignoring")
		return
	}

	s.roster[p.ID] = p
	s.logger.Info().
		Str("participant_id", p.ID).
		Str("display_name", p.DisplayName).
		Bool("bot", p.Bot).
		Int("roster_size", len(s.roster)).
		Msg("participant joined")

	if p.Bot {
		return
	}

	if s.meetingID != "" {
		if err := s.retryStore(func() error {
			return s.store.AddAttendee(ctx, s.meetingID, p)
		}); err != nil {
			s.logger.Error().Err(err).Str("participant_id", p.ID).Msg("failed to add attendee")
		}
		return
	}

	if s.nonBotCountLocked() >= s.opts.MinParticipants {
		s.createMeetingLocked(ctx)
	}
}

// nonBotCountLocked counts human participants. Caller holds s.mu.
func (s *Session) nonBotCountLocked() int {
	n := 0
	for _, p := range s.roster {
		if !p.Bot {
			n++
		}
	}
	return n
}

// createMeetingLocked creates the meeting record with the current
// human roster. Caller holds s.mu.
func (s *Session) createMeetingLocked(ctx context.Context) {
	start := time.Now()
	m := &meeting.Meeting{
		ID:        meeting.NewID(start),
		StartTime: start,
	}
	for _, p := range s.roster {
		if !p.Bot {
			m.AddAttendee(p)
		}
	}

	if err := s.retryStore(func() error {
		return s.store.CreateMeeting(ctx, m)
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to create meeting record")
		return
	}

	s.meetingID = m.ID
	observability.IncrementMeetings("created")
	s.logger.Info().
		Str("meeting_id", m.ID).
		Int("attendees", len(m.Attendees)).
		Msg("meeting started")
}

// OnPacket routes one raw PCM packet to the speaker's recorder,
// creating the recorder on first use. Packets arriving before the
// meeting exists, or from bots, are dropped.
func (s *Session) OnPacket(speakerID string, pkt []byte) {
	s.mu.Lock()
	if s.ended || s.meetingID == "" {
		s.mu.Unlock()
		return
	}

	p, ok := s.roster[speakerID]
	if !ok || p.Bot {
		s.mu.Unlock()
		return
	}

	rec, ok := s.recorders[speakerID]
	if !ok {
		rec = recorder.New(p, s.opts.Recorder, s.engine, s, s.saver, s.logger)
		s.recorders[speakerID] = rec
		observability.UpdateActiveRecorders(len(s.recorders))
		s.logger.Debug().Str("speaker_id", speakerID).Msg("recorder created")
	}
	s.mu.Unlock()

	rec.AddPacket(pkt)
}

// OnLeave removes a participant, flushes their in-flight audio, and
// ends the meeting when the last human hangs up.
func (s *Session) OnLeave(ctx context.Context, participantID string) {
	s.mu.Lock()
	p, present := s.roster[participantID]
	delete(s.roster, participantID)
	rec := s.recorders[participantID]
	delete(s.recorders, participantID)
	observability.UpdateActiveRecorders(len(s.recorders))
	humansLeft := s.nonBotCountLocked()
	hasMeeting := s.meetingID != "" && !s.ended
	s.mu.Unlock()

	if !present {
		return
	}
	s.logger.Info().
		Str("participant_id", participantID).
		Int("humans_left", humansLeft).
		Msg("participant left")

	if rec != nil {
		rec.Flush()
		rec.Close()
	}

	if !p.Bot && humansLeft == 0 && hasMeeting {
		s.End(ctx)
	}
}

// End closes the meeting: flushes every recorder, stamps the end time,
// and dispatches the summary. Safe to call from multiple teardown
// paths; only the first call does the work.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	id := s.meetingID
	recs := make([]*recorder.Recorder, 0, len(s.recorders))
	for _, r := range s.recorders {
		recs = append(recs, r)
	}
	s.recorders = make(map[string]*recorder.Recorder)
	s.mu.Unlock()

	observability.UpdateActiveRecorders(0)

	// Flush before closing so audio still in the debounce window makes
	// it into the transcript.
	for _, r := range recs {
		r.Flush()
		r.Close()
	}

	if id == "" {
		s.logger.Info().Msg("call ended before a meeting formed")
		return
	}

	if err := s.retryStore(func() error {
		return s.store.SetEndTime(ctx, id, time.Now())
	}); err != nil {
		s.logger.Error().Err(err).Str("meeting_id", id).Msg("failed to set meeting end time")
	}
	observability.IncrementMeetings("ended")
	s.logger.Info().Str("meeting_id", id).Msg("meeting ended")

	s.dispatchSummary(ctx, id)
}

// dispatchSummary summarizes the finished meeting and fans the result
// out to every human attendee. Each delivery is best effort.
func (s *Session) dispatchSummary(ctx context.Context, id string) {
	m, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("meeting_id", id).Msg("failed to load meeting for summarization")
		return
	}
	if len(m.Transcript) == 0 {
		s.logger.Info().Str("meeting_id", id).Msg("no transcript recorded, skipping summary")
		return
	}

	title, body, err := s.summarizer.Summarize(ctx, m)
	if err != nil {
		s.logger.Error().Err(err).Str("meeting_id", id).Msg("failed to summarize meeting")
		observability.IncrementSummaries("error")
		return
	}
	observability.IncrementSummaries("ok")

	if err := s.retryStore(func() error {
		return s.store.SetSummary(ctx, id, title, body)
	}); err != nil {
		s.logger.Error().Err(err).Str("meeting_id", id).Msg("failed to persist summary")
	}

	for _, attendee := range m.Attendees {
		if attendee.Bot {
			continue
		}
		if err := s.notifier.SendDirect(ctx, attendee, title, body); err != nil {
			s.logger.Warn().Err(err).Str("recipient_id", attendee.ID).Msg("failed to deliver summary")
			observability.IncrementNotifications("error")
			continue
		}
		observability.IncrementNotifications("ok")
	}

	s.logger.Info().
		Str("meeting_id", id).
		Str("title", title).
		Int("recipients", len(m.Attendees)).
		Msg("summary dispatched")
}

// HandleUtterance receives completed transcript entries from the
// recorders. The entry lands in the bound meeting when possible, and
// falls back to the active or most recent meeting so a late flush is
// never silently dropped.
func (s *Session) HandleUtterance(ctx context.Context, entry meeting.TranscriptEntry) error {
	s.mu.Lock()
	id := s.meetingID
	s.mu.Unlock()

	if id != "" {
		err := s.retryStore(func() error {
			return s.store.AppendTranscript(ctx, id, entry)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to append transcript to meeting %s: %w", id, err)
		}
		s.logger.Warn().Str("meeting_id", id).Msg("bound meeting missing, falling back")
	}

	target, err := s.resolveFallbackMeeting(ctx)
	if err != nil {
		return fmt.Errorf("no meeting available for transcript entry: %w", err)
	}

	s.logger.Warn().
		Str("meeting_id", target).
		Str("speaker_id", entry.SpeakerID).
		Msg("appending transcript entry via fallback meeting")

	return s.retryStore(func() error {
		return s.store.AppendTranscript(ctx, target, entry)
	})
}

// resolveFallbackMeeting picks the active meeting, or failing that the
// most recently started one on record.
func (s *Session) resolveFallbackMeeting(ctx context.Context) (string, error) {
	m, err := s.store.FindActiveMeeting(ctx)
	if err == nil {
		return m.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	all, err := s.store.ListMeetings(ctx)
	if err != nil {
		return "", err
	}
	var latest *meeting.Meeting
	for _, m := range all {
		if latest == nil || m.StartTime.After(latest.StartTime) {
			latest = m
		}
	}
	if latest == nil {
		return "", store.ErrNotFound
	}
	return latest.ID, nil
}

// MeetingID returns the bound meeting id, empty until one is created.
func (s *Session) MeetingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingID
}

// Ended reports whether the session has been torn down.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// retryStore wraps a store write in the session retry policy.
func (s *Session) retryStore(op func() error) error {
	return resilience.Retry(op, s.opts.Retry, resilience.IsRetryableNetworkError)
}

var _ recorder.Sink = (*Session)(nil)
