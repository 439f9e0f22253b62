package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scribeline/meeting-backend/internal/auth"
	"github.com/scribeline/meeting-backend/internal/store"
	"github.com/scribeline/meeting-backend/internal/stt"
	"github.com/scribeline/meeting-backend/internal/summarize"
)

// fakeStore is an in-memory MeetingStore
type fakeStore struct {
	meetings map[string]*store.Meeting
	audio    map[string][]byte
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings: make(map[string]*store.Meeting),
		audio:    make(map[string][]byte),
	}
}

func (f *fakeStore) CreateMeeting(_ context.Context, m *store.Meeting) error {
	if m.ID == "" {
		f.nextID++
		m.ID = fmt.Sprintf("meeting-%d", f.nextID)
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	copied := *m
	f.meetings[m.ID] = &copied
	return nil
}

func (f *fakeStore) lookup(userID, id string) (*store.Meeting, error) {
	m, ok := f.meetings[id]
	if !ok || m.UserID != userID {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) GetMeeting(_ context.Context, userID, id string) (*store.Meeting, error) {
	m, err := f.lookup(userID, id)
	if err != nil {
		return nil, err
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) ListMeetings(_ context.Context, userID string) ([]*store.Meeting, error) {
	var out []*store.Meeting
	for _, m := range f.meetings {
		if m.UserID == userID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMeeting(_ context.Context, userID, id string, title, transcript *string) (*store.Meeting, error) {
	m, err := f.lookup(userID, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		m.Title = *title
	}
	if transcript != nil {
		m.Transcript = *transcript
	}
	m.UpdatedAt = time.Now()
	copied := *m
	return &copied, nil
}

func (f *fakeStore) DeleteMeeting(_ context.Context, userID, id string) error {
	if _, err := f.lookup(userID, id); err != nil {
		return err
	}
	delete(f.meetings, id)
	delete(f.audio, id)
	return nil
}

func (f *fakeStore) SetAudio(_ context.Context, userID, id string, audio []byte, contentType string) error {
	m, err := f.lookup(userID, id)
	if err != nil {
		return err
	}
	f.audio[id] = audio
	m.HasAudio = true
	m.AudioContentType = contentType
	return nil
}

func (f *fakeStore) GetAudio(_ context.Context, userID, id string) ([]byte, string, error) {
	m, err := f.lookup(userID, id)
	if err != nil {
		return nil, "", err
	}
	audio, ok := f.audio[id]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return audio, m.AudioContentType, nil
}

func (f *fakeStore) SetTranscription(_ context.Context, id, transcript string, durationSeconds *float64, wordCount int) error {
	m, ok := f.meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Transcript = transcript
	m.DurationSeconds = durationSeconds
	m.WordCount = wordCount
	return nil
}

func (f *fakeStore) SetInsights(_ context.Context, id, summary string, keyInsights, decisions []string, actionItems []store.ActionItem, researchInsights []store.ResearchInsight) error {
	m, ok := f.meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Summary = summary
	m.KeyInsights = keyInsights
	m.Decisions = decisions
	m.ActionItems = actionItems
	m.ResearchInsights = researchInsights
	return nil
}

type fakeTranscriber struct {
	configured bool
	result     *stt.FileResult
	err        error
	calls      int
}

func (f *fakeTranscriber) Configured() bool { return f.configured }
func (f *fakeTranscriber) Transcribe(_ context.Context, _ io.Reader) (*stt.FileResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSummarizer struct {
	configured bool
	result     *summarize.Result
	err        error
}

func (f *fakeSummarizer) Configured() bool { return f.configured }
func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (*summarize.Result, error) {
	return f.result, f.err
}

type fakeResearcher struct {
	items []store.ResearchInsight
}

func (f *fakeResearcher) EnrichInsights(_ context.Context, _ string, _ []string) []store.ResearchInsight {
	return f.items
}

type fakeReporter struct {
	pdf []byte
	err error
}

func (f *fakeReporter) Configured() bool { return f.err == nil }
func (f *fakeReporter) Generate(_ context.Context, _ *store.Meeting) ([]byte, error) {
	return f.pdf, f.err
}

type testEnv struct {
	store       *fakeStore
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	researcher  *fakeResearcher
	reporter    *fakeReporter
	handler     http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:       newFakeStore(),
		transcriber: &fakeTranscriber{configured: true, result: &stt.FileResult{Transcript: "transcribed words", WordCount: 2}},
		summarizer:  &fakeSummarizer{configured: true, result: &summarize.Result{Summary: "A summary.", KeyInsights: []string{"one insight"}}},
		researcher:  &fakeResearcher{},
		reporter:    &fakeReporter{pdf: []byte("%PDF fake")},
	}
	h := New(env.store, env.transcriber, env.summarizer, env.researcher, env.reporter)
	env.handler = h.Routes()
	return env
}

// do issues a request as the given user
func (env *testEnv) do(t *testing.T, userID, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req = req.WithContext(auth.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMeeting(t *testing.T, body *bytes.Buffer) store.Meeting {
	t.Helper()
	var m store.Meeting
	if err := json.Unmarshal(body.Bytes(), &m); err != nil {
		t.Fatalf("Response is not a meeting: %v\n%s", err, body.String())
	}
	return m
}

func TestCreateAndGetMeeting(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, "u1", http.MethodPost, "/meetings",
		strings.NewReader(`{"title": "Standup", "transcript": "we discussed things"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeMeeting(t, rec.Body)
	if created.ID == "" || created.Title != "Standup" {
		t.Errorf("Unexpected created meeting: %+v", created)
	}
	if created.WordCount != 3 {
		t.Errorf("Expected word count 3, got %d", created.WordCount)
	}

	rec = env.do(t, "u1", http.MethodGet, "/meetings/"+created.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeMeeting(t, rec.Body)
	if got.Transcript != "we discussed things" {
		t.Errorf("Unexpected transcript: %q", got.Transcript)
	}

	// Another user must not see it.
	rec = env.do(t, "u2", http.MethodGet, "/meetings/"+created.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another user's meeting, got %d", rec.Code)
	}
}

func TestCreateMeeting_DefaultsTitle(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(`{}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if m := decodeMeeting(t, rec.Body); m.Title != "Untitled meeting" {
		t.Errorf("Expected default title, got %q", m.Title)
	}
}

func TestCreateMeeting_InvalidJSON(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(`{broken`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCreateMeeting_WithAudioUpload(t *testing.T) {
	env := newTestEnv()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("title", "Recorded call")
	part, err := writer.CreateFormFile("audio", "call.wav")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte("RIFF....WAVE"))
	writer.Close()

	rec := env.do(t, "u1", http.MethodPost, "/meetings", &buf, writer.FormDataContentType())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeMeeting(t, rec.Body)
	if !m.HasAudio {
		t.Error("Expected has_audio true")
	}
	if got := env.store.audio[m.ID]; !bytes.Equal(got, []byte("RIFF....WAVE")) {
		t.Errorf("Stored audio does not match upload: %q", got)
	}
}

func TestListMeetings_OmitsTranscripts(t *testing.T) {
	env := newTestEnv()
	env.do(t, "u1", http.MethodPost, "/meetings",
		strings.NewReader(`{"title": "A", "transcript": "secret words"}`), "application/json")
	env.do(t, "u2", http.MethodPost, "/meetings",
		strings.NewReader(`{"title": "B"}`), "application/json")

	rec := env.do(t, "u1", http.MethodGet, "/meetings", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Meetings []map[string]any `json:"meetings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if len(resp.Meetings) != 1 {
		t.Fatalf("Expected only the caller's meeting, got %d", len(resp.Meetings))
	}
	if _, ok := resp.Meetings[0]["transcript"]; ok {
		t.Error("Expected the list view to omit transcripts")
	}
}

func TestUpdateMeeting_Partial(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, "u1", http.MethodPost, "/meetings",
		strings.NewReader(`{"title": "Old", "transcript": "keep me"}`), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id,
		strings.NewReader(`{"title": "New"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeMeeting(t, rec.Body)
	if m.Title != "New" || m.Transcript != "keep me" {
		t.Errorf("Expected partial update, got title=%q transcript=%q", m.Title, m.Transcript)
	}

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id, strings.NewReader(`{}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty update, got %d", rec.Code)
	}
}

func TestDeleteMeeting(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(`{"title": "X"}`), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodDelete, "/meetings/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	rec = env.do(t, "u1", http.MethodGet, "/meetings/"+id, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	rec = env.do(t, "u1", http.MethodDelete, "/meetings/missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 deleting a missing meeting, got %d", rec.Code)
	}
}

func transcriptLongEnough() string {
	return strings.Repeat("the team discussed the roadmap ", 5)
}

func TestProcessMeeting_WithTranscript(t *testing.T) {
	env := newTestEnv()
	env.researcher.items = []store.ResearchInsight{{Insight: "s", Title: "t", URL: "https://x.example"}}

	body := fmt.Sprintf(`{"title": "Q", "transcript": %q}`, transcriptLongEnough())
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(body), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Meeting   store.Meeting `json:"meeting"`
		Processed bool          `json:"processed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if !resp.Processed {
		t.Error("Expected processed true")
	}
	if resp.Meeting.Summary != "A summary." {
		t.Errorf("Expected summary persisted, got %q", resp.Meeting.Summary)
	}
	if len(resp.Meeting.ResearchInsights) != 1 {
		t.Errorf("Expected 1 research insight, got %d", len(resp.Meeting.ResearchInsights))
	}
	if env.transcriber.calls != 0 {
		t.Errorf("Expected no transcription when a transcript exists, got %d calls", env.transcriber.calls)
	}

	stored := env.store.meetings[id]
	if stored.Summary != "A summary." {
		t.Errorf("Expected insights written to the store, got %q", stored.Summary)
	}
}

func TestProcessMeeting_TranscribesStoredAudio(t *testing.T) {
	env := newTestEnv()
	env.transcriber.result = &stt.FileResult{Transcript: transcriptLongEnough(), WordCount: 30}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("audio", "call.wav")
	part.Write([]byte("audio bytes"))
	writer.Close()

	rec := env.do(t, "u1", http.MethodPost, "/meetings", &buf, writer.FormDataContentType())
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.transcriber.calls != 1 {
		t.Errorf("Expected 1 transcription call, got %d", env.transcriber.calls)
	}
	if env.store.meetings[id].Transcript == "" {
		t.Error("Expected the transcript persisted before summarization")
	}
}

func TestProcessMeeting_NoTranscriptNoAudio(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(`{"title": "Empty"}`), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestProcessMeeting_SummarizerNotConfigured(t *testing.T) {
	env := newTestEnv()
	env.summarizer.configured = false

	body := fmt.Sprintf(`{"transcript": %q}`, transcriptLongEnough())
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(body), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestProcessMeeting_ShortTranscriptSkipped(t *testing.T) {
	env := newTestEnv()
	env.summarizer.result = nil // summarizer skips short transcripts

	rec := env.do(t, "u1", http.MethodPost, "/meetings",
		strings.NewReader(`{"transcript": "brief"}`), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Processed bool `json:"processed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if resp.Processed {
		t.Error("Expected processed false for a skipped transcript")
	}
}

func TestProcessMeeting_SummarizationFailure(t *testing.T) {
	env := newTestEnv()
	env.summarizer.err = errors.New("model unavailable")
	env.summarizer.result = nil

	body := fmt.Sprintf(`{"transcript": %q}`, transcriptLongEnough())
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(body), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/process", nil, "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
}

func TestReportMeeting(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, "u1", http.MethodPost, "/meetings", strings.NewReader(`{"title": "R"}`), "application/json")
	id := decodeMeeting(t, rec.Body).ID

	rec = env.do(t, "u1", http.MethodPost, "/meetings/"+id+"/report", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("%PDF fake")) {
		t.Errorf("Unexpected PDF body: %q", rec.Body.Bytes())
	}

	rec = env.do(t, "u1", http.MethodPost, "/meetings/missing/report", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
