package stt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/resilience"
)

// FileTranscriber transcribes stored meeting audio through Deepgram's
// pre-recorded API. Calls are guarded by a circuit breaker so a flapping
// vendor cannot stall every processing request.
type FileTranscriber struct {
	cfg     *config.Config
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewFileTranscriber creates a pre-recorded transcription client
func NewFileTranscriber(cfg *config.Config) *FileTranscriber {
	return &FileTranscriber{
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.WithComponent("stt"),
	}
}

// Configured reports whether a Deepgram API key is available
func (t *FileTranscriber) Configured() bool {
	return t.cfg.DeepgramAPIKey != ""
}

// Transcribe sends audio to Deepgram and returns the best transcript plus
// the audio duration reported by the vendor.
func (t *FileTranscriber) Transcribe(ctx context.Context, audio io.Reader) (*FileResult, error) {
	if !t.Configured() {
		return nil, ErrNotConfigured
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		SmartFormat: true,
		Punctuate:   true,
		Diarize:     true,
	}

	var result *FileResult
	err := t.breaker.Call(func() error {
		client := listenClient.NewREST(t.cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
		dg := listenv1rest.New(client)

		res, err := dg.FromStream(ctx, audio, options)
		if err != nil {
			return fmt.Errorf("deepgram pre-recorded request failed: %w", err)
		}

		if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
			t.logger.Warn().Msg("Deepgram response has no alternatives")
			result = &FileResult{}
			return nil
		}

		transcript := strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
		result = &FileResult{
			Transcript: transcript,
			WordCount:  len(strings.Fields(transcript)),
		}
		if res.Metadata != nil && res.Metadata.Duration > 0 {
			duration := res.Metadata.Duration
			result.DurationSeconds = &duration
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(t.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		observability.RecordError("file_transcription_error", "stt")
		return nil, err
	}

	t.logger.Info().
		Int("transcript_chars", len(result.Transcript)).
		Int("word_count", result.WordCount).
		Msg("File transcription complete")
	return result, nil
}
