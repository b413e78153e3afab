package transcription

import (
	"encoding/binary"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

func TestEncodeLinear16(t *testing.T) {
	waveform := []float32{0, 0.5, -0.5, 1.5, -1.5}
	out := encodeLinear16(waveform)

	if len(out) != len(waveform)*2 {
		t.Fatalf("expected %d bytes, got %d", len(waveform)*2, len(out))
	}

	want := []int16{0, 16384, -16384, 32767, -32768}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestUtteranceCollector_JoinsFinals(t *testing.T) {
	c := newUtteranceCollector()

	final := &msginterfaces.MessageResponse{IsFinal: true}
	final.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "hello"}}
	if err := c.Message(final); err != nil {
		t.Fatal(err)
	}

	interim := &msginterfaces.MessageResponse{IsFinal: false}
	interim.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "ignored"}}
	if err := c.Message(interim); err != nil {
		t.Fatal(err)
	}

	empty := &msginterfaces.MessageResponse{IsFinal: true}
	empty.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "   "}}
	if err := c.Message(empty); err != nil {
		t.Fatal(err)
	}

	second := &msginterfaces.MessageResponse{IsFinal: true}
	second.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "world"}}
	if err := c.Message(second); err != nil {
		t.Fatal(err)
	}

	if got := c.transcript(); got != "hello world" {
		t.Errorf("expected joined finals, got %q", got)
	}
}

func TestUtteranceCollector_FinishOnce(t *testing.T) {
	c := newUtteranceCollector()

	c.finish(nil)
	c.finish(nil) // second call must not panic on the closed channel

	select {
	case <-c.done:
	default:
		t.Error("done channel should be closed after finish")
	}
}
