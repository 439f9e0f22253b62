package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scribeline/meeting-backend/internal/auth"
	"github.com/scribeline/meeting-backend/internal/store"
)

// maxAudioUpload caps multipart audio uploads at 50 MiB
const maxAudioUpload = 50 << 20

// meetingSummary is the list view: everything except the transcript and
// the insight payloads
type meetingSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	DurationSeconds *float64  `json:"duration_seconds"`
	WordCount       int       `json:"word_count"`
	HasAudio        bool      `json:"has_audio"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (h *Handlers) listMeetings(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	meetings, err := h.store.ListMeetings(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	summaries := make([]meetingSummary, 0, len(meetings))
	for _, m := range meetings {
		summaries = append(summaries, meetingSummary{
			ID:              m.ID,
			Title:           m.Title,
			Summary:         m.Summary,
			DurationSeconds: m.DurationSeconds,
			WordCount:       m.WordCount,
			HasAudio:        m.HasAudio,
			CreatedAt:       m.CreatedAt,
			UpdatedAt:       m.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"meetings": summaries})
}

type createMeetingRequest struct {
	Title           string   `json:"title"`
	Transcript      string   `json:"transcript"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

func (h *Handlers) createMeeting(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.createMeetingWithAudio(w, r)
		return
	}

	userID := auth.UserID(r.Context())

	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	m := &store.Meeting{
		UserID:          userID,
		Title:           strings.TrimSpace(req.Title),
		Transcript:      req.Transcript,
		DurationSeconds: req.DurationSeconds,
		WordCount:       len(strings.Fields(req.Transcript)),
	}
	if m.Title == "" {
		m.Title = "Untitled meeting"
	}
	if err := h.store.CreateMeeting(r.Context(), m); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info().Str("meeting_id", m.ID).Msg("Meeting created")
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) createMeetingWithAudio(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing audio file part")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read audio")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "Empty audio file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	m := &store.Meeting{
		UserID: userID,
		Title:  strings.TrimSpace(r.FormValue("title")),
	}
	if m.Title == "" {
		m.Title = "Untitled meeting"
	}
	if err := h.store.CreateMeeting(r.Context(), m); err != nil {
		h.writeStoreError(w, err)
		return
	}
	if err := h.store.SetAudio(r.Context(), userID, m.ID, audio, contentType); err != nil {
		h.writeStoreError(w, err)
		return
	}
	m.HasAudio = true
	m.AudioContentType = contentType

	h.logger.Info().Str("meeting_id", m.ID).Int("audio_bytes", len(audio)).Msg("Meeting created with audio")
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) getMeeting(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	m, err := h.store.GetMeeting(r.Context(), userID, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateMeetingRequest struct {
	Title      *string `json:"title"`
	Transcript *string `json:"transcript"`
}

func (h *Handlers) updateMeeting(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var req updateMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Title == nil && req.Transcript == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	m, err := h.store.UpdateMeeting(r.Context(), userID, id, req.Title, req.Transcript)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) deleteMeeting(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteMeeting(r.Context(), userID, id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Info().Str("meeting_id", id).Msg("Meeting deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
