// Package recorder buffers one speaker's audio stream and turns it
// into transcript entries, one per utterance.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/artifact"
	"github.com/notewell/meeting-recorder/internal/audio"
	"github.com/notewell/meeting-recorder/internal/meeting"
	"github.com/notewell/meeting-recorder/internal/observability"
	"github.com/notewell/meeting-recorder/internal/transcription"
)

// Sink receives completed transcript entries. The recorder logs sink
// errors and moves on; a failed append must never stall the audio path.
type Sink interface {
	HandleUtterance(ctx context.Context, entry meeting.TranscriptEntry) error
}

// Options configures per-speaker utterance capture.
type Options struct {
	// SilenceTimeout is how long a speaker must stay quiet before the
	// buffered audio is treated as a finished utterance.
	SilenceTimeout time.Duration

	// MinSilence and ThresholdDB parameterize silence detection inside
	// the buffered audio.
	MinSilence  time.Duration
	ThresholdDB float64

	// SourceRate and SourceChannels describe the inbound PCM format.
	SourceRate     int
	SourceChannels int

	// SaveAudio retains each transcribed utterance as a WAV artifact.
	SaveAudio bool
}

// Recorder accumulates one speaker's packets and flushes them after a
// silence timeout. All processing happens off the packet path: AddPacket
// only appends to the buffer and re-arms the timer.
type Recorder struct {
	speaker meeting.Participant
	opts    Options
	engine  transcription.Engine
	sink    Sink
	saver   artifact.Saver
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	buf         []byte
	firstPacket time.Time
	timer       *time.Timer
	gen         uint64
	closed      bool
}

// New creates a recorder for one speaker. saver may be nil when audio
// retention is disabled.
func New(speaker meeting.Participant, opts Options, engine transcription.Engine, sink Sink, saver artifact.Saver, logger zerolog.Logger) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		speaker: speaker,
		opts:    opts,
		engine:  engine,
		sink:    sink,
		saver:   saver,
		logger: logger.With().
			Str("component", "recorder").
			Str("speaker_id", speaker.ID).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddPacket appends raw PCM to the utterance buffer and re-arms the
// silence timer. Each packet pushes the flush deadline out by the full
// timeout, so the buffer only flushes after a continuous quiet gap.
func (r *Recorder) AddPacket(pkt []byte) {
	if len(pkt) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if len(r.buf) == 0 {
		r.firstPacket = time.Now()
	}
	r.buf = append(r.buf, pkt...)

	// The generation counter makes a stale timer fire a no-op even if
	// it was already running when Stop raced with it.
	r.gen++
	gen := r.gen
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.SilenceTimeout, func() {
		r.timerFired(gen)
	})
}

// timerFired runs on the timer goroutine. It claims the buffer under
// the lock and processes it outside, so new packets are never blocked
// behind transcription.
func (r *Recorder) timerFired(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.gen || len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	buf := r.buf
	start := r.firstPacket
	r.buf = nil
	r.timer = nil
	r.mu.Unlock()

	r.process(buf, start)
}

// Flush synchronously processes whatever is buffered right now,
// without waiting for the silence timeout. Used at meeting teardown to
// capture an utterance that was still in flight.
func (r *Recorder) Flush() {
	r.mu.Lock()
	if r.closed || len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	buf := r.buf
	start := r.firstPacket
	r.buf = nil
	r.gen++ // invalidate any armed timer
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.process(buf, start)
}

// Close abandons any buffered audio and stops the timer. After Close
// the recorder ignores new packets. Call Flush first if the tail of
// the stream should still be transcribed.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.buf = nil
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.cancel()
}

// process turns one claimed buffer into at most one transcript entry.
// Failures are logged, never propagated: by the time we get here the
// buffer is already cleared, so the pipeline stays healthy whatever
// happens downstream.
func (r *Recorder) process(raw []byte, start time.Time) {
	samples := audio.DecodeSamples(raw)
	ranges := audio.DetectNonSilent(samples, r.opts.SourceRate, r.opts.SourceChannels, r.opts.MinSilence, r.opts.ThresholdDB)
	if len(ranges) == 0 {
		r.logger.Debug().Int("bytes", len(raw)).Msg("buffer contained no speech, discarding")
		observability.IncrementUtterances("silent")
		return
	}

	waveform, err := audio.Transcode(raw, r.opts.SourceRate, r.opts.SourceChannels)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to transcode utterance")
		observability.IncrementUtterances("error")
		return
	}

	text, err := r.engine.Transcribe(r.ctx, waveform)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to transcribe utterance")
		observability.IncrementUtterances("error")
		return
	}
	if strings.TrimSpace(text) == "" {
		r.logger.Debug().Msg("transcription returned no text, discarding")
		observability.IncrementUtterances("empty")
		return
	}

	entry := meeting.TranscriptEntry{
		SpeakerID:   r.speaker.ID,
		SpeakerName: r.speaker.DisplayName,
		Text:        text,
		Timestamp:   start,
	}

	if r.opts.SaveAudio && r.saver != nil {
		if path, err := r.saveArtifact(waveform, start); err != nil {
			r.logger.Warn().Err(err).Msg("failed to save audio artifact")
		} else {
			entry.AudioPath = path
		}
	}

	if err := r.sink.HandleUtterance(r.ctx, entry); err != nil {
		r.logger.Error().Err(err).Msg("failed to deliver transcript entry")
		observability.IncrementUtterances("error")
		return
	}

	observability.IncrementUtterances("transcribed")
	r.logger.Info().
		Int("chars", len(text)).
		Time("utterance_start", start).
		Msg("utterance transcribed")
}

// saveArtifact writes the mono 16kHz capture as a WAV file named after
// the speaker and utterance start time.
func (r *Recorder) saveArtifact(waveform []float32, start time.Time) (string, error) {
	data, err := audio.EncodeWAV(audio.Quantize(waveform), audio.TargetSampleRate)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.wav", artifactSpeakerName(r.speaker), start.UTC().Format("20060102_150405"))
	return r.saver.Save(r.ctx, name, data)
}

// artifactSpeakerName produces a filesystem-safe speaker label.
func artifactSpeakerName(p meeting.Participant) string {
	name := p.DisplayName
	if name == "" {
		name = p.ID
	}
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, name)
}
