package stt

import "errors"

// ErrNotConfigured is returned when file transcription is attempted without
// a Deepgram API key.
var ErrNotConfigured = errors.New("DEEPGRAM_API_KEY must be set for file transcription")

// FileResult is the outcome of transcribing a stored audio file
type FileResult struct {
	Transcript      string
	DurationSeconds *float64
	WordCount       int
}
