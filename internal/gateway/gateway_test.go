package gateway

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/meeting"
)

type recordedCall struct {
	kind      string
	id        string
	payload   []byte
	name      string
	bot       bool
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []recordedCall
	ended chan struct{}
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{ended: make(chan struct{})}
}

func (h *fakeHandler) OnJoin(_ context.Context, p meeting.Participant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, recordedCall{kind: "join", id: p.ID, name: p.DisplayName, bot: p.Bot})
}

func (h *fakeHandler) OnPacket(speakerID string, pkt []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, recordedCall{kind: "packet", id: speakerID, payload: append([]byte(nil), pkt...)})
}

func (h *fakeHandler) OnLeave(_ context.Context, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, recordedCall{kind: "leave", id: participantID})
}

func (h *fakeHandler) End(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.ended:
	default:
		close(h.ended)
	}
	h.calls = append(h.calls, recordedCall{kind: "end"})
}

func (h *fakeHandler) snapshot() []recordedCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedCall(nil), h.calls...)
}

func dialGateway(t *testing.T, handler *fakeHandler) (*websocket.Conn, func()) {
	t.Helper()

	g := New(func() CallHandler { return handler }, zerolog.Nop())
	srv := httptest.NewServer(g.Handler())

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("failed to dial gateway: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForEnd(t *testing.T, h *fakeHandler) {
	t.Helper()
	select {
	case <-h.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ended")
	}
}

func TestGateway_EventRouting(t *testing.T) {
	handler := newFakeHandler()
	conn, cleanup := dialGateway(t, handler)
	defer cleanup()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	msgs := []Message{
		{Event: "join", CallID: "c1", Participant: &ParticipantInfo{ID: "u1", DisplayName: "Alice"}},
		{Event: "join", CallID: "c1", Participant: &ParticipantInfo{ID: "bot", DisplayName: "Recorder", Bot: true}},
		{Event: "media", CallID: "c1", Media: &Media{SpeakerID: "u1", Payload: base64.StdEncoding.EncodeToString(pcm)}},
		{Event: "leave", CallID: "c1", Participant: &ParticipantInfo{ID: "u1"}},
		{Event: "stop", CallID: "c1"},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("failed to send message: %v", err)
		}
	}

	waitForEnd(t, handler)

	calls := handler.snapshot()
	if len(calls) != 5 {
		t.Fatalf("expected 5 handler calls, got %d: %+v", len(calls), calls)
	}
	if calls[0].kind != "join" || calls[0].id != "u1" || calls[0].name != "Alice" {
		t.Errorf("unexpected first call: %+v", calls[0])
	}
	if calls[1].kind != "join" || !calls[1].bot {
		t.Errorf("bot flag lost: %+v", calls[1])
	}
	if calls[2].kind != "packet" || calls[2].id != "u1" || string(calls[2].payload) != string(pcm) {
		t.Errorf("unexpected packet call: %+v", calls[2])
	}
	if calls[3].kind != "leave" || calls[3].id != "u1" {
		t.Errorf("unexpected leave call: %+v", calls[3])
	}
	if calls[4].kind != "end" {
		t.Errorf("expected end last, got %+v", calls[4])
	}
}

func TestGateway_EndsSessionOnDisconnect(t *testing.T) {
	handler := newFakeHandler()
	conn, cleanup := dialGateway(t, handler)
	defer cleanup()

	if err := conn.WriteJSON(Message{Event: "join", Participant: &ParticipantInfo{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	waitForEnd(t, handler)
}

func TestGateway_SkipsMalformedMessages(t *testing.T) {
	handler := newFakeHandler()
	conn, cleanup := dialGateway(t, handler)
	defer cleanup()

	// Garbage JSON, bad base64 and a media event without a speaker are
	// all skipped without killing the connection.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Event: "media", Media: &Media{SpeakerID: "u1", Payload: "!!!"}}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Event: "media", Media: &Media{Payload: "AAAA"}}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Event: "join", Participant: &ParticipantInfo{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Event: "stop"}); err != nil {
		t.Fatal(err)
	}

	waitForEnd(t, handler)

	calls := handler.snapshot()
	if len(calls) != 2 || calls[0].kind != "join" || calls[1].kind != "end" {
		t.Errorf("expected only join and end, got %+v", calls)
	}
}
