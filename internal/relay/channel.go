package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/scribeline/meeting-backend/internal/observability"
)

// ChannelState is the lifecycle state of a SpeechChannel
type ChannelState int32

const (
	StateUnopened ChannelState = iota
	StateOpening
	StateOpen
	StateClosed
)

// ChannelConfig holds the parameters for one outbound vendor connection
type ChannelConfig struct {
	APIKey     string
	URL        string // streaming endpoint, e.g. wss://api.deepgram.com/v1/listen
	Encoding   string // raw PCM encoding agreed at connect time
	SampleRate int
}

// TranscriptFunc receives each vendor message that parses as a JSON object,
// verbatim. ErrorFunc receives any transport-level failure; by the time it is
// invoked the channel has transitioned to closed.
type TranscriptFunc func(msg json.RawMessage)
type ErrorFunc func(err error)

// SpeechChannel wraps one outbound streaming connection to the speech vendor.
// It accepts binary audio frames and emits JSON transcript events
// asynchronously. States: Unopened -> Opening -> Open -> Closed; Closed is
// terminal.
type SpeechChannel struct {
	cfg          ChannelConfig
	onTranscript TranscriptFunc
	onError      ErrorFunc

	mu    sync.Mutex // guards conn and state
	conn  *websocket.Conn
	state ChannelState

	// Serializes frame writes so concurrent sends cannot interleave binary
	// frames on the outbound socket.
	sendMu sync.Mutex
}

// NewSpeechChannel creates an unopened channel. Callbacks are fixed at
// construction so the receive loop never races a handler swap.
func NewSpeechChannel(cfg ChannelConfig, onTranscript TranscriptFunc, onError ErrorFunc) *SpeechChannel {
	return &SpeechChannel{
		cfg:          cfg,
		onTranscript: onTranscript,
		onError:      onError,
		state:        StateUnopened,
	}
}

// Open starts the vendor connection. It fails fast with ErrMissingAPIKey when
// no key is configured and never attempts to connect without credentials.
// Connection establishment is fire-and-forget: the channel accepts Send calls
// immediately, and frames arriving before the dial completes are dropped.
func (c *SpeechChannel) Open() error {
	if c.cfg.APIKey == "" {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		observability.RecordVendorError("config")
		return ErrMissingAPIKey
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.state != StateUnopened {
		c.mu.Unlock()
		return fmt.Errorf("speech channel already opened")
	}
	c.state = StateOpening
	c.mu.Unlock()

	go c.dial()
	return nil
}

func (c *SpeechChannel) dial() {
	header := http.Header{}
	header.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.Dial(c.buildURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		observability.RecordVendorError("dial")
		c.fail(fmt.Errorf("vendor connect failed: %w", err))
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Closed while dialing; release the vendor socket immediately.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.readLoop(conn)
}

func (c *SpeechChannel) buildURL() string {
	params := url.Values{}
	params.Set("encoding", c.cfg.Encoding)
	params.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	params.Set("punctuate", "true")
	params.Set("interim_results", "true")
	params.Set("diarize", "true")
	return c.cfg.URL + "?" + params.Encode()
}

// readLoop runs until the channel closes or the vendor connection errors.
// Vendor emission order is preserved: one goroutine, one callback at a time.
func (c *SpeechChannel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.state == StateClosed
			c.mu.Unlock()
			if !alreadyClosed {
				observability.RecordVendorError("receive")
				c.fail(fmt.Errorf("vendor read failed: %w", err))
			}
			return
		}

		// Only messages that parse as JSON objects are forwarded; the vendor
		// occasionally sends framing artifacts, which are dropped silently.
		if !isJSONObject(message) {
			observability.RecordDroppedVendorFrame()
			continue
		}
		c.onTranscript(json.RawMessage(message))
	}
}

// Send forwards one binary audio frame to the vendor. It is a no-op when the
// channel is closed or not yet connected. Transport failures are reported
// through the error callback, never returned synchronously.
func (c *SpeechChannel) Send(frame []byte) {
	if len(frame) == 0 {
		return
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return
	}

	c.sendMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	c.sendMu.Unlock()

	if err != nil {
		observability.RecordVendorError("send")
		c.fail(fmt.Errorf("vendor send failed: %w", err))
	}
}

// fail transitions the channel to closed and reports the error. Only the
// first failure is reported; later ones find the channel already closed.
func (c *SpeechChannel) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if c.onError != nil {
		c.onError(err)
	}
}

// Close terminates the vendor connection if open and marks the channel
// closed so subsequent sends are no-ops. Idempotent and safe from any state,
// including concurrently with an in-flight Send.
func (c *SpeechChannel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake; the vendor ends the session either way.
		c.sendMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.sendMu.Unlock()
		conn.Close()
	}
}

// State returns the current lifecycle state
func (c *SpeechChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func isJSONObject(message []byte) bool {
	trimmed := bytes.TrimLeft(message, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
