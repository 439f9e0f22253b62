package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/store"
	"github.com/scribeline/meeting-backend/internal/stt"
	"github.com/scribeline/meeting-backend/internal/summarize"
)

// MeetingStore is the persistence surface the handlers need
type MeetingStore interface {
	CreateMeeting(ctx context.Context, m *store.Meeting) error
	GetMeeting(ctx context.Context, userID, id string) (*store.Meeting, error)
	ListMeetings(ctx context.Context, userID string) ([]*store.Meeting, error)
	UpdateMeeting(ctx context.Context, userID, id string, title, transcript *string) (*store.Meeting, error)
	DeleteMeeting(ctx context.Context, userID, id string) error
	SetAudio(ctx context.Context, userID, id string, audio []byte, contentType string) error
	GetAudio(ctx context.Context, userID, id string) ([]byte, string, error)
	SetTranscription(ctx context.Context, id, transcript string, durationSeconds *float64, wordCount int) error
	SetInsights(ctx context.Context, id, summary string, keyInsights, decisions []string, actionItems []store.ActionItem, researchInsights []store.ResearchInsight) error
}

// Transcriber turns a stored audio blob into a transcript
type Transcriber interface {
	Configured() bool
	Transcribe(ctx context.Context, audio io.Reader) (*stt.FileResult, error)
}

// Summarizer extracts summary, insights, decisions and action items
type Summarizer interface {
	Configured() bool
	Summarize(ctx context.Context, transcript string) (*summarize.Result, error)
}

// Researcher enriches key insights with web sources
type Researcher interface {
	EnrichInsights(ctx context.Context, summary string, keyInsights []string) []store.ResearchInsight
}

// Reporter renders a meeting as a PDF
type Reporter interface {
	Configured() bool
	Generate(ctx context.Context, m *store.Meeting) ([]byte, error)
}

// Handlers serves the meetings REST API
type Handlers struct {
	store       MeetingStore
	transcriber Transcriber
	summarizer  Summarizer
	researcher  Researcher
	reporter    Reporter
	logger      zerolog.Logger
}

// New creates the API handlers
func New(st MeetingStore, transcriber Transcriber, summarizer Summarizer, researcher Researcher, reporter Reporter) *Handlers {
	return &Handlers{
		store:       st,
		transcriber: transcriber,
		summarizer:  summarizer,
		researcher:  researcher,
		reporter:    reporter,
		logger:      observability.WithComponent("api"),
	}
}

// Routes returns the meetings router. Callers mount it behind the auth
// middleware; every handler assumes a user id is present in the context.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/meetings", h.listMeetings)
	r.Post("/meetings", h.createMeeting)
	r.Route("/meetings/{id}", func(r chi.Router) {
		r.Get("/", h.getMeeting)
		r.Post("/", h.updateMeeting)
		r.Delete("/", h.deleteMeeting)
		r.Post("/process", h.processMeeting)
		r.Post("/report", h.reportMeeting)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps persistence failures to HTTP status codes
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Meeting not found")
		return
	}
	h.logger.Error().Err(err).Msg("Store operation failed")
	observability.RecordError("store_error", "api")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
