package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/resilience"
	"github.com/scribeline/meeting-backend/internal/store"
)

// ErrNotConfigured is returned when Foxit credentials or the report
// template are missing.
var ErrNotConfigured = errors.New("FOXIT_CLIENT_ID, FOXIT_CLIENT_SECRET and FOXIT_TEMPLATE_B64 must be set for report generation")

// Client renders meeting report PDFs with the Foxit Document Generation API
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a report client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      resilience.ConfigFromSettings(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		logger:     observability.WithComponent("report"),
	}
}

// Configured reports whether credentials and a template are available
func (c *Client) Configured() bool {
	return c.cfg.FoxitClientID != "" && c.cfg.FoxitClientSecret != "" && c.cfg.FoxitTemplateB64 != ""
}

type docGenRequest struct {
	OutputFormat     string            `json:"outputFormat"`
	DocumentValues   map[string]string `json:"documentValues"`
	Base64FileString string            `json:"base64FileString"`
}

type docGenResponse struct {
	Base64FileString string `json:"base64FileString"`
	ErrorCode        string `json:"errorCode"`
	Message          string `json:"message"`
}

// Generate renders a PDF report for the meeting. Returns the PDF bytes.
func (c *Client) Generate(ctx context.Context, m *store.Meeting) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(docGenRequest{
		OutputFormat:     "pdf",
		DocumentValues:   buildDocumentValues(m),
		Base64FileString: c.cfg.FoxitTemplateB64,
	})
	if err != nil {
		return nil, fmt.Errorf("encode document generation request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.FoxitHost, "/") + "/document-generation/api/GenerateDocumentBase64"

	var decoded docGenResponse
	err = resilience.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("client_id", c.cfg.FoxitClientID)
		req.Header.Set("client_secret", c.cfg.FoxitClientSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("document generation request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("document generation returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	}, c.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		observability.RecordError("docgen_error", "report")
		return nil, err
	}

	if decoded.Base64FileString == "" {
		reason := decoded.ErrorCode
		if reason == "" {
			reason = decoded.Message
		}
		if reason == "" {
			reason = "empty response"
		}
		observability.RecordError("docgen_error", "report")
		return nil, fmt.Errorf("document generation failed: %s", reason)
	}

	pdf, err := base64.StdEncoding.DecodeString(decoded.Base64FileString)
	if err != nil {
		return nil, fmt.Errorf("decode generated document: %w", err)
	}

	c.logger.Info().Str("meeting_id", m.ID).Int("bytes", len(pdf)).Msg("Report generated")
	return pdf, nil
}

const noneExtracted = "None extracted."

// buildDocumentValues flattens a meeting into the template's merge fields.
// The "today" token is deliberately omitted: the template engine provides it.
func buildDocumentValues(m *store.Meeting) map[string]string {
	title := sanitize(strings.TrimSpace(m.Title), 200)
	if title == "" {
		title = "Meeting"
	}
	summary := sanitize(strings.TrimSpace(m.Summary), 10000)
	if summary == "" {
		summary = "No summary available."
	}
	transcript := sanitize(strings.TrimSpace(m.Transcript), 50000)
	if transcript == "" {
		transcript = "No transcript."
	}

	return map[string]string{
		"title":           title,
		"summary":         summary,
		"duration":        formatDuration(m.DurationSeconds),
		"wordCount":       fmt.Sprintf("%d", m.WordCount),
		"fullTranscript":  transcript,
		"keyInsightsText": sanitize(bulletList(m.KeyInsights), 5000),
		"decisionsText":   sanitize(bulletList(m.Decisions), 5000),
		"actionItemsText": sanitize(bulletList(actionItemLines(m.ActionItems)), 8000),
	}
}

func actionItemLines(items []store.ActionItem) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		task := sanitize(strings.TrimSpace(item.Text), 1000)
		if task == "" {
			continue
		}
		assignee := "-"
		if item.Assignee != nil && strings.TrimSpace(*item.Assignee) != "" {
			assignee = sanitize(strings.TrimSpace(*item.Assignee), 200)
		}
		lines = append(lines, fmt.Sprintf("%s (→ %s)", task, assignee))
	}
	return lines
}

func bulletList(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		item = sanitize(strings.TrimSpace(item), 2000)
		if item != "" {
			lines = append(lines, item)
		}
	}
	if len(lines) == 0 {
		return noneExtracted
	}
	return "• " + strings.Join(lines, "\n• ")
}

// formatDuration renders seconds as M:SS
func formatDuration(seconds *float64) string {
	if seconds == nil || *seconds < 0 {
		return "0:00"
	}
	total := int(*seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// sanitize drops control characters and truncates overly long values,
// which the generation API rejects
func sanitize(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
