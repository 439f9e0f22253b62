package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/resilience"
	"github.com/scribeline/meeting-backend/internal/store"
)

// ErrNotConfigured is returned when no DeepSeek API key is set
var ErrNotConfigured = errors.New("DEEPSEEK_API_KEY must be set for summarization")

const (
	// Transcripts shorter than this carry nothing worth summarizing
	minTranscriptChars = 50
	// Truncation point to stay within the model context
	maxTranscriptChars = 12000
)

const systemPrompt = "You respond only with valid JSON. No markdown, no code fences."

const userPrompt = `You are a meeting assistant. Summarize the following meeting transcript.

Return a JSON object with exactly these keys (use empty arrays if none):
- "summary": A short 2-4 sentence overview of what the meeting was about and main outcomes.
- "key_insights": Array of strings: 3-7 important insights or takeaways (one short sentence each).
- "decisions": Array of strings: decisions that were made (e.g. "Use API v2 by Friday").
- "action_items": Array of objects, each with "text" (string) and optional "assignee" (string): tasks to do after the meeting.

Transcript:
`

// Result holds the derived summary fields for one transcript
type Result struct {
	Summary     string
	KeyInsights []string
	Decisions   []string
	ActionItems []store.ActionItem
}

// Client summarizes transcripts through DeepSeek's OpenAI-compatible API
type Client struct {
	cfg    *config.Config
	api    *openai.Client
	retry  *resilience.RetryConfig
	logger zerolog.Logger
}

// NewClient creates a summarization client. The client is inert (Summarize
// returns ErrNotConfigured) when no API key is configured.
func NewClient(cfg *config.Config) *Client {
	c := &Client{
		cfg:    cfg,
		retry:  resilience.ConfigFromSettings(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		logger: observability.WithComponent("summarize"),
	}
	if cfg.DeepSeekAPIKey != "" {
		apiConfig := openai.DefaultConfig(cfg.DeepSeekAPIKey)
		apiConfig.BaseURL = strings.TrimSuffix(cfg.DeepSeekBaseURL, "/") + "/v1"
		c.api = openai.NewClientWithConfig(apiConfig)
	}
	return c
}

// Configured reports whether a DeepSeek API key is available
func (c *Client) Configured() bool {
	return c.api != nil
}

// Summarize derives {summary, key_insights, decisions, action_items} from a
// transcript. A transcript too short to summarize yields (nil, nil): skipped,
// not an error.
func (c *Client) Summarize(ctx context.Context, transcript string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	transcript = strings.TrimSpace(transcript)
	if len(transcript) < minTranscriptChars {
		c.logger.Debug().Msg("Transcript too short to summarize")
		return nil, nil
	}
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars] + "\n[... transcript truncated ...]"
		c.logger.Debug().Int("max_chars", maxTranscriptChars).Msg("Transcript truncated for summarization")
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.DeepSeekModel,
		Temperature: 0.3,
		MaxTokens:   1500,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt + transcript},
		},
	}

	var content string
	err := resilience.Retry(func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("deepseek chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("deepseek returned no choices")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}, c.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		observability.RecordError("summarization_error", "summarize")
		return nil, err
	}

	result, err := parseResult(content)
	if err != nil {
		observability.RecordError("summarization_parse_error", "summarize")
		return nil, err
	}

	c.logger.Info().
		Int("summary_chars", len(result.Summary)).
		Int("insights", len(result.KeyInsights)).
		Int("decisions", len(result.Decisions)).
		Int("actions", len(result.ActionItems)).
		Msg("Summarization complete")
	return result, nil
}

var codeFenceOpen = regexp.MustCompile("^```(?:json)?\\s*")
var codeFenceClose = regexp.MustCompile("\\s*```$")

// stripCodeFences removes a wrapping markdown code block, which some models
// emit despite the system prompt
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = codeFenceOpen.ReplaceAllString(s, "")
		s = codeFenceClose.ReplaceAllString(s, "")
	}
	return s
}

// rawResult mirrors the model's JSON; action items may arrive as objects or
// bare strings
type rawResult struct {
	Summary     string            `json:"summary"`
	KeyInsights []string          `json:"key_insights"`
	Decisions   []string          `json:"decisions"`
	ActionItems []json.RawMessage `json:"action_items"`
}

func parseResult(content string) (*Result, error) {
	content = stripCodeFences(content)
	if content == "" {
		return nil, fmt.Errorf("model returned empty content")
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}

	result := &Result{
		Summary:     strings.TrimSpace(raw.Summary),
		KeyInsights: cleanStrings(raw.KeyInsights),
		Decisions:   cleanStrings(raw.Decisions),
		ActionItems: normalizeActionItems(raw.ActionItems),
	}

	if result.Summary == "" && len(result.KeyInsights) == 0 &&
		len(result.Decisions) == 0 && len(result.ActionItems) == 0 {
		return nil, fmt.Errorf("model response had no usable summary fields")
	}
	if result.Summary == "" {
		result.Summary = "No summary generated."
	}
	return result, nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeActionItems accepts both {"text": ..., "assignee": ...} objects
// and bare strings
func normalizeActionItems(items []json.RawMessage) []store.ActionItem {
	out := make([]store.ActionItem, 0, len(items))
	for _, item := range items {
		var obj struct {
			Text     string `json:"text"`
			Assignee string `json:"assignee"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && strings.TrimSpace(obj.Text) != "" {
			action := store.ActionItem{Text: strings.TrimSpace(obj.Text)}
			if assignee := strings.TrimSpace(obj.Assignee); assignee != "" {
				action.Assignee = &assignee
			}
			out = append(out, action)
			continue
		}

		var text string
		if err := json.Unmarshal(item, &text); err == nil && strings.TrimSpace(text) != "" {
			out = append(out, store.ActionItem{Text: strings.TrimSpace(text)})
		}
	}
	return out
}
