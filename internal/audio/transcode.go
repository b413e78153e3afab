package audio

import (
	"fmt"
)

// TargetSampleRate is the rate every transcription engine input is
// converted to. 16kHz mono float32 is the de-facto ASR input format.
const TargetSampleRate = 16000

// Transcode converts raw interleaved 16-bit little-endian PCM into the
// mono float32 waveform a transcription engine expects: downmixed to
// one channel, resampled to TargetSampleRate and normalized to
// [-1.0, 1.0] by dividing by 32768.
//
// Multi-channel input is downmixed by averaging the channels rather
// than picking one, so speech that happens to sit on a single channel
// is never lost.
func Transcode(raw []byte, sourceRate, channels int) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if sourceRate <= 0 {
		return nil, fmt.Errorf("source sample rate must be positive, got %d", sourceRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	frameBytes := 2 * channels
	if len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("PCM data length %d is not a multiple of the %d-byte frame size", len(raw), frameBytes)
	}

	samples := DecodeSamples(raw)
	mono := downmix(samples, channels)
	mono = resample(mono, sourceRate, TargetSampleRate)

	waveform := make([]float32, len(mono))
	for i, s := range mono {
		waveform[i] = float32(s) / 32768.0
	}
	return waveform, nil
}

// DecodeSamples converts little-endian 16-bit PCM bytes into samples.
// The byte slice length must be even.
func DecodeSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return samples
}

// Quantize converts a normalized waveform back to 16-bit samples,
// clamping anything outside [-1.0, 1.0]. Used when retaining the
// transcribed audio as a WAV artifact.
func Quantize(waveform []float32) []int16 {
	samples := make([]int16, len(waveform))
	for i, f := range waveform {
		s := f * 32768.0
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		samples[i] = int16(s)
	}
	return samples
}

// downmix averages interleaved channels into a single mono channel.
func downmix(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// resample performs linear interpolation resampling. Linear quality is
// sufficient for speech headed to an ASR model; a sinc-based library
// would only matter for playback fidelity.
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
