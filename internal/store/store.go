package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a meeting does not exist or belongs to
// another user.
var ErrNotFound = errors.New("meeting not found")

// ActionItem is one follow-up task extracted from a meeting
type ActionItem struct {
	Text     string  `json:"text"`
	Assignee *string `json:"assignee"`
}

// ResearchInsight links a key insight to a supporting web source
type ResearchInsight struct {
	Insight string `json:"insight"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Meeting is one stored meeting record
type Meeting struct {
	ID               string            `json:"id"`
	UserID           string            `json:"-"`
	Title            string            `json:"title"`
	Transcript       string            `json:"transcript"`
	Summary          string            `json:"summary"`
	KeyInsights      []string          `json:"key_insights"`
	Decisions        []string          `json:"decisions"`
	ActionItems      []ActionItem      `json:"action_items"`
	ResearchInsights []ResearchInsight `json:"research_insights"`
	DurationSeconds  *float64          `json:"duration_seconds"`
	WordCount        int               `json:"word_count"`
	HasAudio         bool              `json:"has_audio"`
	AudioContentType string            `json:"audio_content_type,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Store persists meetings (and their audio blobs) in Postgres
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and bootstraps the schema
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to read embedded schema.sql: %w", err)
	}

	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity (used by the readiness probe)
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const meetingColumns = `id, user_id, title, transcript, summary,
	key_insights, decisions, action_items, research_insights,
	duration_seconds, word_count, audio IS NOT NULL, audio_content_type,
	created_at, updated_at`

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var (
		m                Meeting
		keyInsights      []byte
		decisions        []byte
		actionItems      []byte
		researchInsights []byte
	)
	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Transcript, &m.Summary,
		&keyInsights, &decisions, &actionItems, &researchInsights,
		&m.DurationSeconds, &m.WordCount, &m.HasAudio, &m.AudioContentType,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan meeting: %w", err)
	}

	if err := json.Unmarshal(keyInsights, &m.KeyInsights); err != nil {
		return nil, fmt.Errorf("decode key_insights: %w", err)
	}
	if err := json.Unmarshal(decisions, &m.Decisions); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if err := json.Unmarshal(actionItems, &m.ActionItems); err != nil {
		return nil, fmt.Errorf("decode action_items: %w", err)
	}
	if err := json.Unmarshal(researchInsights, &m.ResearchInsights); err != nil {
		return nil, fmt.Errorf("decode research_insights: %w", err)
	}
	return &m, nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateMeeting inserts a new meeting. A missing ID is generated.
func (s *Store) CreateMeeting(ctx context.Context, m *Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	keyInsights, err := encodeJSON(m.KeyInsights)
	if err != nil {
		return fmt.Errorf("encode key_insights: %w", err)
	}
	decisions, err := encodeJSON(m.Decisions)
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	actionItems, err := encodeJSON(m.ActionItems)
	if err != nil {
		return fmt.Errorf("encode action_items: %w", err)
	}
	researchInsights, err := encodeJSON(m.ResearchInsights)
	if err != nil {
		return fmt.Errorf("encode research_insights: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO meetings (id, user_id, title, transcript, summary,
			key_insights, decisions, action_items, research_insights,
			duration_seconds, word_count)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11)`,
		m.ID, m.UserID, m.Title, m.Transcript, m.Summary,
		keyInsights, decisions, actionItems, researchInsights,
		m.DurationSeconds, m.WordCount)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// GetMeeting loads one meeting owned by the given user
func (s *Store) GetMeeting(ctx context.Context, userID, id string) (*Meeting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanMeeting(row)
}

// ListMeetings returns the user's meetings, newest first
func (s *Store) ListMeetings(ctx context.Context, userID string) ([]*Meeting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	meetings := make([]*Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// UpdateMeeting applies a partial update of the editable fields. Nil fields
// are left untouched.
func (s *Store) UpdateMeeting(ctx context.Context, userID, id string, title, transcript *string) (*Meeting, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET title      = COALESCE($3, title),
		    transcript = COALESCE($4, transcript),
		    updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, title, transcript)
	if err != nil {
		return nil, fmt.Errorf("update meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetMeeting(ctx, userID, id)
}

// DeleteMeeting removes a meeting owned by the given user
func (s *Store) DeleteMeeting(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM meetings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAudio stores the meeting's audio blob
func (s *Store) SetAudio(ctx context.Context, userID, id string, audio []byte, contentType string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET audio = $3, audio_content_type = $4, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		id, userID, audio, contentType)
	if err != nil {
		return fmt.Errorf("set audio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAudio loads the meeting's audio blob and content type
func (s *Store) GetAudio(ctx context.Context, userID, id string) ([]byte, string, error) {
	var (
		audio       []byte
		contentType string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT audio, audio_content_type FROM meetings WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&audio, &contentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("get audio: %w", err)
	}
	return audio, contentType, nil
}

// SetTranscription stores a file-transcription result
func (s *Store) SetTranscription(ctx context.Context, id, transcript string, durationSeconds *float64, wordCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET transcript = $2, duration_seconds = COALESCE($3, duration_seconds),
		    word_count = $4, updated_at = now()
		WHERE id = $1`,
		id, transcript, durationSeconds, wordCount)
	if err != nil {
		return fmt.Errorf("set transcription: %w", err)
	}
	return nil
}

// SetInsights stores the processing pipeline's derived fields
func (s *Store) SetInsights(ctx context.Context, id, summary string, keyInsights, decisions []string, actionItems []ActionItem, researchInsights []ResearchInsight) error {
	ki, err := encodeJSON(keyInsights)
	if err != nil {
		return fmt.Errorf("encode key_insights: %w", err)
	}
	dec, err := encodeJSON(decisions)
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	ai, err := encodeJSON(actionItems)
	if err != nil {
		return fmt.Errorf("encode action_items: %w", err)
	}
	ri, err := encodeJSON(researchInsights)
	if err != nil {
		return fmt.Errorf("encode research_insights: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE meetings
		SET summary = $2, key_insights = $3::jsonb, decisions = $4::jsonb,
		    action_items = $5::jsonb, research_insights = $6::jsonb,
		    updated_at = now()
		WHERE id = $1`,
		id, summary, ki, dec, ai, ri)
	if err != nil {
		return fmt.Errorf("set insights: %w", err)
	}
	return nil
}
