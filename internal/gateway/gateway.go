// Package gateway accepts WebSocket connections from the voice
// platform adapter and feeds call events into a session.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/notewell/meeting-recorder/internal/meeting"
	"github.com/notewell/meeting-recorder/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The adapter connects from inside the deployment; origin
		// checks happen at the ingress.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Message is one event from the platform adapter. Exactly one of the
// optional payloads is set, depending on Event.
type Message struct {
	Event       string           `json:"event"`
	CallID      string           `json:"call_id,omitempty"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
	Media       *Media           `json:"media,omitempty"`
}

// ParticipantInfo identifies a participant in join and leave events.
type ParticipantInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// Media carries one base64-encoded PCM chunk for one speaker.
type Media struct {
	SpeakerID string `json:"speaker_id"`
	Payload   string `json:"payload"`
}

// CallHandler is the session-side contract. One handler is created per
// WebSocket connection and torn down when the call ends.
type CallHandler interface {
	OnJoin(ctx context.Context, p meeting.Participant)
	OnPacket(speakerID string, pkt []byte)
	OnLeave(ctx context.Context, participantID string)
	End(ctx context.Context)
}

// Gateway upgrades adapter connections and drives one CallHandler per
// call.
type Gateway struct {
	newHandler func() CallHandler
	logger     zerolog.Logger
}

// New creates a gateway. newHandler is invoked once per connection.
func New(newHandler func() CallHandler, logger zerolog.Logger) *Gateway {
	return &Gateway{
		newHandler: newHandler,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler returns the HTTP handler for the adapter WebSocket endpoint.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Error().Err(err).Msg("failed to upgrade connection")
			return
		}
		defer conn.Close()

		observability.IncrementActiveCalls()
		defer observability.DecrementActiveCalls()

		g.logger.Info().Str("remote", r.RemoteAddr).Msg("adapter connected")
		g.serve(r.Context(), conn)
	}
}

// serve runs the read loop for one call. The handler's End always runs
// before returning, whether the call stopped cleanly or the socket
// dropped.
func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn) {
	handler := g.newHandler()
	defer handler.End(ctx)

	var callID string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn().Err(err).Str("call_id", callID).Msg("connection dropped")
			} else {
				g.logger.Info().Str("call_id", callID).Msg("connection closed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.logger.Error().Err(err).Msg("failed to parse adapter message")
			continue
		}
		if msg.CallID != "" {
			callID = msg.CallID
		}

		switch msg.Event {
		case "join":
			if msg.Participant == nil {
				g.logger.Warn().Msg("join event missing participant")
				continue
			}
			handler.OnJoin(ctx, meeting.Participant{
				ID:          msg.Participant.ID,
				DisplayName: msg.Participant.DisplayName,
				Bot:         msg.Participant.Bot,
			})

		case "leave":
			if msg.Participant == nil {
				g.logger.Warn().Msg("leave event missing participant")
				continue
			}
			handler.OnLeave(ctx, msg.Participant.ID)

		case "media":
			g.handleMedia(handler, msg.Media)

		case "stop":
			g.logger.Info().Str("call_id", callID).Msg("call stopped")
			return

		default:
			g.logger.Debug().Str("event", msg.Event).Msg("unknown adapter event")
		}
	}
}

// handleMedia decodes one audio chunk and hands it to the session.
func (g *Gateway) handleMedia(handler CallHandler, media *Media) {
	if media == nil || media.SpeakerID == "" {
		g.logger.Warn().Msg("media event missing speaker")
		return
	}

	pkt, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		g.logger.Error().Err(err).Str("speaker_id", media.SpeakerID).Msg("failed to decode audio payload")
		return
	}
	if len(pkt) == 0 {
		return
	}

	observability.RecordAudioBytes(len(pkt))
	handler.OnPacket(media.SpeakerID, pkt)
}
