package transcription

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/audio"
	"github.com/notewell/meeting-recorder/internal/observability"
	"github.com/notewell/meeting-recorder/internal/resilience"
)

// DeepgramEngine transcribes utterances over Deepgram's streaming API.
// Each utterance gets its own bounded WebSocket session: connect, send
// the whole waveform, finish, collect final results. Utterances are
// already segmented by silence detection, so there is nothing to gain
// from holding a long-lived stream per speaker.
type DeepgramEngine struct {
	apiKey   string
	model    string
	language string
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// DeepgramOptions configures a DeepgramEngine.
type DeepgramOptions struct {
	APIKey              string
	Model               string
	Language            string
	RequestTimeout      time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// NewDeepgramEngine creates a Deepgram-backed engine.
func NewDeepgramEngine(opts DeepgramOptions, logger zerolog.Logger) *DeepgramEngine {
	return &DeepgramEngine{
		apiKey:   opts.APIKey,
		model:    opts.Model,
		language: opts.Language,
		timeout:  opts.RequestTimeout,
		breaker:  resilience.NewCircuitBreaker("deepgram", opts.BreakerMaxFailures, opts.BreakerResetTimeout),
		logger:   logger.With().Str("component", "deepgram").Logger(),
	}
}

// utteranceCollector implements the live-message callback for one
// utterance session. It embeds the default handler and overrides only
// the messages we care about.
type utteranceCollector struct {
	*websocketv1api.DefaultCallbackHandler

	mu     sync.Mutex
	finals []string

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func newUtteranceCollector() *utteranceCollector {
	return &utteranceCollector{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		done:                   make(chan struct{}),
	}
}

// Message collects final transcripts. Interim results are disabled for
// utterance sessions, but guard on IsFinal anyway.
func (c *utteranceCollector) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	c.finals = append(c.finals, text)
	c.mu.Unlock()
	return nil
}

// Close fires when Deepgram closes the stream after Finish, meaning
// every final result has been delivered.
func (c *utteranceCollector) Close(cr *msginterfaces.CloseResponse) error {
	c.finish(nil)
	return c.DefaultCallbackHandler.Close(cr)
}

// Error aborts the session.
func (c *utteranceCollector) Error(er *msginterfaces.ErrorResponse) error {
	c.finish(fmt.Errorf("deepgram stream error: %s", er.ErrMsg))
	return nil
}

func (c *utteranceCollector) finish(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *utteranceCollector) transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.finals, " ")
}

// Transcribe runs one utterance through Deepgram and returns the joined
// final transcript. An empty string with nil error means the service
// heard no speech.
func (e *DeepgramEngine) Transcribe(ctx context.Context, waveform []float32) (string, error) {
	if len(waveform) == 0 {
		return "", nil
	}

	var text string
	err := e.breaker.Call(func() error {
		var callErr error
		text, callErr = e.transcribeOnce(ctx, waveform)
		return callErr
	})

	observability.UpdateCircuitBreakerState("deepgram", int(e.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return "", err
	}
	return text, nil
}

func (e *DeepgramEngine) transcribeOnce(ctx context.Context, waveform []float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          e.model,
		Language:       e.language,
		Punctuate:      true,
		InterimResults: false,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.TargetSampleRate,
	}

	collector := newUtteranceCollector()

	client, err := listenClient.NewWSUsingCallback(ctx, e.apiKey, nil, tOptions, collector)
	if err != nil {
		return "", fmt.Errorf("failed to create deepgram session: %w", err)
	}

	payload := encodeLinear16(waveform)
	start := time.Now()

	if _, err := client.Write(payload); err != nil {
		client.Finish()
		return "", fmt.Errorf("failed to send audio to deepgram: %w", err)
	}

	// Finish flushes the stream; Deepgram replies with the remaining
	// finals and then a close message.
	client.Finish()

	select {
	case <-collector.done:
		if collector.err != nil {
			return "", collector.err
		}
	case <-ctx.Done():
		return "", fmt.Errorf("deepgram session timed out: %w", ctx.Err())
	}

	elapsed := time.Since(start)
	text := collector.transcript()
	e.logger.Debug().
		Dur("elapsed", elapsed).
		Int("samples", len(waveform)).
		Int("chars", len(text)).
		Msg("utterance transcribed")
	observability.ObserveTranscriptionDuration(elapsed.Seconds())

	return text, nil
}

// encodeLinear16 converts the normalized waveform back to little-endian
// 16-bit PCM, the encoding declared in the session options.
func encodeLinear16(waveform []float32) []byte {
	out := make([]byte, len(waveform)*2)
	for i, f := range waveform {
		s := f * 32768.0
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
