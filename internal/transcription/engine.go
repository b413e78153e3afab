// Package transcription turns captured utterance waveforms into text.
package transcription

import "context"

// Engine transcribes a single utterance. The waveform is mono 16kHz
// float32 in [-1, 1], the format the transcoder emits. Implementations
// must be safe for concurrent use; one recorder per speaker may call
// Transcribe at the same time.
type Engine interface {
	Transcribe(ctx context.Context, waveform []float32) (string, error)
}
