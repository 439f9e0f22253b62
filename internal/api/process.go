package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scribeline/meeting-backend/internal/auth"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/report"
	"github.com/scribeline/meeting-backend/internal/stt"
	"github.com/scribeline/meeting-backend/internal/summarize"
)

// processMeeting runs the post-meeting pipeline: transcribe stored audio
// when no transcript exists, then summarize, then attach research insights.
func (h *Handlers) processMeeting(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	start := time.Now()

	m, err := h.store.GetMeeting(r.Context(), userID, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	log := h.logger.With().Str("meeting_id", id).Logger()

	if strings.TrimSpace(m.Transcript) == "" {
		if !m.HasAudio {
			writeError(w, http.StatusBadRequest, "Meeting has no transcript and no audio to transcribe")
			return
		}
		if !h.transcriber.Configured() {
			observability.RecordMeetingProcessed("not_configured")
			writeError(w, http.StatusServiceUnavailable, stt.ErrNotConfigured.Error())
			return
		}

		audio, _, err := h.store.GetAudio(r.Context(), userID, id)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}

		result, err := h.transcriber.Transcribe(r.Context(), bytes.NewReader(audio))
		if err != nil {
			log.Error().Err(err).Msg("File transcription failed")
			observability.RecordMeetingProcessed("transcription_failed")
			writeError(w, http.StatusBadGateway, fmt.Sprintf("Transcription failed: %v", err))
			return
		}
		if err := h.store.SetTranscription(r.Context(), id, result.Transcript, result.DurationSeconds, result.WordCount); err != nil {
			h.writeStoreError(w, err)
			return
		}
		m.Transcript = result.Transcript
		m.DurationSeconds = result.DurationSeconds
		m.WordCount = result.WordCount
		log.Info().Int("word_count", result.WordCount).Msg("Audio transcribed")
	}

	if !h.summarizer.Configured() {
		observability.RecordMeetingProcessed("not_configured")
		writeError(w, http.StatusServiceUnavailable, summarize.ErrNotConfigured.Error())
		return
	}

	result, err := h.summarizer.Summarize(r.Context(), m.Transcript)
	if err != nil {
		log.Error().Err(err).Msg("Summarization failed")
		observability.RecordMeetingProcessed("summarization_failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Summarization failed: %v", err))
		return
	}
	if result == nil {
		// Transcript too short to summarize; nothing to persist.
		observability.RecordMeetingProcessed("skipped_short_transcript")
		writeJSON(w, http.StatusOK, map[string]any{"meeting": m, "processed": false})
		return
	}

	researchInsights := h.researcher.EnrichInsights(r.Context(), result.Summary, result.KeyInsights)

	err = h.store.SetInsights(r.Context(), id, result.Summary,
		result.KeyInsights, result.Decisions, result.ActionItems, researchInsights)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	m.Summary = result.Summary
	m.KeyInsights = result.KeyInsights
	m.Decisions = result.Decisions
	m.ActionItems = result.ActionItems
	m.ResearchInsights = researchInsights

	observability.RecordMeetingProcessed("success")
	observability.RecordProcessingLatency(time.Since(start))
	log.Info().Dur("elapsed", time.Since(start)).Msg("Meeting processed")
	writeJSON(w, http.StatusOK, map[string]any{"meeting": m, "processed": true})
}

// reportMeeting renders the meeting as a PDF document
func (h *Handlers) reportMeeting(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	m, err := h.store.GetMeeting(r.Context(), userID, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	pdf, err := h.reporter.Generate(r.Context(), m)
	if err != nil {
		if errors.Is(err, report.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("meeting_id", id).Msg("Report generation failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Report generation failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="meeting-report.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
