package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; the REST layer is
		// what carries credentials, the live stream carries only audio.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// outboundEvent is the wire shape of every server-to-client message:
// {"event": "transcript", "data": <vendor payload or {"error": "..."}>}
type outboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsEmitter adapts one client WebSocket connection to the relay.Emitter
// interface. Writes are serialized; gorilla/websocket allows at most one
// concurrent writer per connection.
type wsEmitter struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	mu     sync.Mutex
}

func (e *wsEmitter) Emit(event string, payload json.RawMessage) {
	msg, err := json.Marshal(outboundEvent{Event: event, Data: payload})
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to encode outbound event")
		return
	}

	e.mu.Lock()
	err = e.conn.WriteMessage(websocket.TextMessage, msg)
	e.mu.Unlock()

	if err != nil {
		// The read loop will observe the broken connection and tear the
		// session down; nothing to do here but note it.
		e.logger.Debug().Err(err).Msg("Client write failed")
	}
}

// Handler is the entry point for client live-transcription connections. Each
// connection becomes one session: binary frames are forwarded as audio
// chunks, and disconnect is the only cancellation signal.
func Handler(registry *relay.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		sessionID := uuid.NewString()
		logger := observability.WithSession(sessionID)

		emitter := &wsEmitter{conn: conn, logger: logger}
		registry.Connect(sessionID, emitter)
		defer registry.Disconnect(sessionID)

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Client read error")
				}
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				registry.AudioChunk(sessionID, data)
			case websocket.TextMessage:
				// Clients send no meaningful text frames; ignored.
			}
		}
	}
}
