package audio

import (
	"math"
	"time"
)

// frameMillis is the analysis window used for silence classification.
// 10ms frames give enough resolution for a 1000ms minimum-silence gap
// while keeping the scan cheap.
const frameMillis = 10

// Range marks a span of non-silent audio within a PCM buffer.
// Start and End are offsets into the interleaved sample slice,
// aligned to analysis-frame boundaries (End is exclusive).
type Range struct {
	Start int
	End   int
}

// DetectNonSilent scans interleaved 16-bit PCM samples and returns the
// ordered non-silent ranges. A stretch of audio counts as a separator
// only if it stays below thresholdDB for at least minSilence; shorter
// dips are absorbed into the surrounding speech. An empty result means
// the buffer contains nothing worth transcribing.
//
// The function is pure: same input, same output, no state.
func DetectNonSilent(samples []int16, sampleRate, channels int, minSilence time.Duration, thresholdDB float64) []Range {
	if len(samples) == 0 || sampleRate <= 0 || channels <= 0 {
		return nil
	}

	samplesPerFrame := sampleRate * channels * frameMillis / 1000
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}

	numFrames := (len(samples) + samplesPerFrame - 1) / samplesPerFrame

	// Classify each frame. The trailing partial frame is classified
	// too, so speech ongoing at the capture cut is not dropped.
	silent := make([]bool, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * samplesPerFrame
		end := start + samplesPerFrame
		if end > len(samples) {
			end = len(samples)
		}
		silent[i] = DBFS(samples[start:end]) < thresholdDB
	}

	minSilenceFrames := int(minSilence / (frameMillis * time.Millisecond))
	if minSilenceFrames < 1 {
		minSilenceFrames = 1
	}

	var ranges []Range
	speechStart := -1
	silenceRun := 0

	for i := 0; i < numFrames; i++ {
		if silent[i] {
			silenceRun++
			// Close the current speech range only once the quiet
			// stretch is long enough to count as real silence.
			if speechStart >= 0 && silenceRun >= minSilenceFrames {
				ranges = append(ranges, frameRange(speechStart, i-silenceRun+1, samplesPerFrame, len(samples)))
				speechStart = -1
			}
			continue
		}
		if speechStart < 0 {
			speechStart = i
		}
		silenceRun = 0
	}

	if speechStart >= 0 {
		end := numFrames - silenceRun
		if end <= speechStart {
			end = speechStart + 1
		}
		ranges = append(ranges, frameRange(speechStart, end, samplesPerFrame, len(samples)))
	}

	return ranges
}

func frameRange(startFrame, endFrame, samplesPerFrame, limit int) Range {
	start := startFrame * samplesPerFrame
	end := endFrame * samplesPerFrame
	if end > limit {
		end = limit
	}
	return Range{Start: start, End: end}
}

// RMS calculates the root mean square amplitude of PCM samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS returns the level of the samples in decibels relative to the
// full scale of 16-bit PCM. Digital silence maps to -Inf.
func DBFS(samples []int16) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768.0)
}
