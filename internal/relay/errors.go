package relay

import "errors"

// ErrMissingAPIKey is returned when a speech channel is constructed without a
// configured vendor API key. The registry surfaces it to the client as a
// single error event and never registers the session.
var ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY must be set")

// ErrChannelClosed is returned by Open when the channel has already been
// closed. Closed is terminal; a channel is never re-opened.
var ErrChannelClosed = errors.New("speech channel is closed")
