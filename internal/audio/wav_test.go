package audio

import (
	"testing"
)

func TestEncodeWAV_RoundTrip(t *testing.T) {
	samples := tone(100, TargetSampleRate, 1, 8000)

	data, err := EncodeWAV(samples, TargetSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != TargetSampleRate {
		t.Errorf("expected sample rate %d, got %d", TargetSampleRate, rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d mismatch: %d != %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAV_RejectsEmpty(t *testing.T) {
	if _, err := EncodeWAV(nil, TargetSampleRate); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
		t.Error("expected error for short input")
	}

	data, err := EncodeWAV([]int16{1, 2, 3}, TargetSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	data[0] = 'X' // corrupt the RIFF magic
	if _, _, err := DecodeWAV(data); err == nil {
		t.Error("expected error for corrupted header")
	}
}
