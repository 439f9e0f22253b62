package relay

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/observability"
)

// EventTranscript is the client-facing event name carrying both vendor
// transcript payloads and error payloads of the form {"error": "..."}.
const EventTranscript = "transcript"

// Emitter delivers an event to one client transport. Payloads are forwarded
// verbatim; implementations must tolerate being called from the vendor
// receive goroutine.
type Emitter interface {
	Emit(event string, payload json.RawMessage)
}

// Relay binds one session identifier to one speech channel and mediates both
// directions: client audio frames to the vendor, vendor transcript and error
// events to the client.
type Relay struct {
	sessionID string
	emitter   Emitter
	channel   *SpeechChannel
	logger    zerolog.Logger
	closed    atomic.Bool
	startedAt time.Time
}

// NewRelay constructs a relay and immediately opens its vendor channel.
// Construction fails with ErrMissingAPIKey when no vendor key is configured;
// the caller is responsible for notifying the client instead of registering
// the session.
func NewRelay(sessionID string, emitter Emitter, cfg ChannelConfig) (*Relay, error) {
	r := &Relay{
		sessionID: sessionID,
		emitter:   emitter,
		logger:    observability.WithSession(sessionID),
		startedAt: time.Now(),
	}
	r.channel = NewSpeechChannel(cfg, r.handleTranscript, r.handleError)
	if err := r.channel.Open(); err != nil {
		return nil, err
	}
	return r, nil
}

// SendAudio forwards one audio frame to the vendor channel. No-op after the
// relay has been closed; empty frames are dropped without comment.
func (r *Relay) SendAudio(frame []byte) {
	if r.closed.Load() || len(frame) == 0 {
		return
	}
	observability.RecordAudioBytes(len(frame))
	r.channel.Send(frame)
}

// Close closes the owned channel. Idempotent and safe to call concurrently
// with an in-flight SendAudio.
func (r *Relay) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.channel.Close()
	r.logger.Debug().Dur("session_duration", time.Since(r.startedAt)).Msg("Relay closed")
}

// Age reports how long this relay has been alive
func (r *Relay) Age() time.Duration {
	return time.Since(r.startedAt)
}

// handleTranscript forwards a vendor transcript event to the client, verbatim
func (r *Relay) handleTranscript(msg json.RawMessage) {
	if r.closed.Load() {
		return
	}
	observability.RecordTranscriptEvent()
	r.emitter.Emit(EventTranscript, msg)
}

// handleError surfaces a channel-level failure to the client as a structured
// error event. The client transport stays up; the client decides whether to
// retry.
func (r *Relay) handleError(err error) {
	if r.closed.Load() {
		return
	}
	r.logger.Warn().Err(err).Msg("Speech channel error")
	r.emitter.Emit(EventTranscript, errorPayload(err))
}

func errorPayload(err error) json.RawMessage {
	payload, merr := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
	if merr != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return payload
}
