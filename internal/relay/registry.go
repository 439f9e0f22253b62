package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/observability"
)

// Registry is the process-wide mapping from session identifier to relay. It
// owns the relays it stores: a relay is created on connect, looked up on each
// audio chunk, and removed and closed on disconnect. Safe under concurrent
// connect/disconnect from many simultaneous clients.
type Registry struct {
	cfg    ChannelConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	relays map[string]*Relay
}

// NewRegistry creates an empty registry whose relays will dial the vendor
// with the given channel configuration.
func NewRegistry(cfg ChannelConfig) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: observability.WithComponent("registry"),
		relays: make(map[string]*Relay),
	}
}

// Connect creates and registers a relay for the session. On a configuration
// error nothing is stored and exactly one error event is emitted to the
// client transport instead.
func (g *Registry) Connect(sessionID string, emitter Emitter) {
	r, err := NewRelay(sessionID, emitter, g.cfg)
	if err != nil {
		g.logger.Error().Err(err).Str("session_id", sessionID).Msg("Relay construction failed")
		emitter.Emit(EventTranscript, errorPayload(err))
		return
	}

	g.mu.Lock()
	prev := g.relays[sessionID]
	g.relays[sessionID] = r
	g.mu.Unlock()

	// A repeated connect for the same id replaces the old relay; the vendor
	// channel must never outlive its owning session. The replaced relay's
	// session is over, so its end is recorded like any disconnect.
	if prev != nil {
		prev.Close()
		observability.RecordSessionEnd(prev.Age().Seconds())
	}

	observability.RecordSessionStart()
	g.logger.Info().Str("session_id", sessionID).Msg("Client connected")
}

// AudioChunk forwards a client audio frame to the session's relay. An absent
// relay (event after disconnect, or after a failed construction) is silently
// ignored.
func (g *Registry) AudioChunk(sessionID string, frame []byte) {
	g.mu.RLock()
	r := g.relays[sessionID]
	g.mu.RUnlock()

	if r == nil || frame == nil {
		return
	}
	r.SendAudio(frame)
}

// Disconnect removes and closes the session's relay. Absence is not an error:
// disconnect may race a failed construction or arrive twice.
func (g *Registry) Disconnect(sessionID string) {
	g.mu.Lock()
	r := g.relays[sessionID]
	delete(g.relays, sessionID)
	g.mu.Unlock()

	if r == nil {
		return
	}
	r.Close()
	observability.RecordSessionEnd(r.Age().Seconds())
	g.logger.Info().Str("session_id", sessionID).Msg("Client disconnected")
}

// Len reports the number of registered sessions
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relays)
}

// Has reports whether a session is currently registered
func (g *Registry) Has(sessionID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.relays[sessionID]
	return ok
}
