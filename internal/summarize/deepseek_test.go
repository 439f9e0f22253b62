package summarize

import (
	"context"
	"errors"
	"testing"

	"github.com/scribeline/meeting-backend/internal/config"
)

func TestSummarize_NotConfigured(t *testing.T) {
	c := NewClient(&config.Config{})
	if c.Configured() {
		t.Error("Expected client to be unconfigured without an API key")
	}
	_, err := c.Summarize(context.Background(), "a perfectly reasonable transcript that is long enough")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSummarize_ShortTranscriptSkipped(t *testing.T) {
	c := NewClient(&config.Config{DeepSeekAPIKey: "k", DeepSeekBaseURL: "https://api.deepseek.com", DeepSeekModel: "deepseek-chat"})

	result, err := c.Summarize(context.Background(), "too short")
	if err != nil {
		t.Fatalf("Expected no error for a short transcript, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result for a short transcript, got %+v", result)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"summary":"x"}`, `{"summary":"x"}`},
		{"```json\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`},
		{"```\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`},
		{"  {\"padded\": true}  ", `{"padded": true}`},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseResult_FullObject(t *testing.T) {
	content := `{
		"summary": "Team agreed on the Q3 launch plan.",
		"key_insights": ["Launch slips one week", "  ", "Budget is fixed"],
		"decisions": ["Ship on the 14th"],
		"action_items": [
			{"text": "Write release notes", "assignee": "dana"},
			{"text": "Book launch review"},
			"Update the status page"
		]
	}`

	result, err := parseResult(content)
	if err != nil {
		t.Fatalf("parseResult failed: %v", err)
	}
	if result.Summary != "Team agreed on the Q3 launch plan." {
		t.Errorf("Unexpected summary: %q", result.Summary)
	}
	if len(result.KeyInsights) != 2 {
		t.Errorf("Expected 2 insights after cleaning, got %d: %v", len(result.KeyInsights), result.KeyInsights)
	}
	if len(result.Decisions) != 1 || result.Decisions[0] != "Ship on the 14th" {
		t.Errorf("Unexpected decisions: %v", result.Decisions)
	}
	if len(result.ActionItems) != 3 {
		t.Fatalf("Expected 3 action items, got %d", len(result.ActionItems))
	}
	if result.ActionItems[0].Assignee == nil || *result.ActionItems[0].Assignee != "dana" {
		t.Errorf("Expected first action assigned to dana, got %+v", result.ActionItems[0])
	}
	if result.ActionItems[1].Assignee != nil {
		t.Errorf("Expected second action unassigned, got %+v", result.ActionItems[1])
	}
	if result.ActionItems[2].Text != "Update the status page" {
		t.Errorf("Expected bare-string action normalized, got %+v", result.ActionItems[2])
	}
}

func TestParseResult_FencedOutput(t *testing.T) {
	content := "```json\n{\"summary\": \"Short sync.\", \"key_insights\": [], \"decisions\": [], \"action_items\": []}\n```"
	result, err := parseResult(content)
	if err != nil {
		t.Fatalf("parseResult failed: %v", err)
	}
	if result.Summary != "Short sync." {
		t.Errorf("Unexpected summary: %q", result.Summary)
	}
}

func TestParseResult_MissingSummaryGetsDefault(t *testing.T) {
	result, err := parseResult(`{"key_insights": ["One thing happened"]}`)
	if err != nil {
		t.Fatalf("parseResult failed: %v", err)
	}
	if result.Summary != "No summary generated." {
		t.Errorf("Expected default summary, got %q", result.Summary)
	}
}

func TestParseResult_Invalid(t *testing.T) {
	if _, err := parseResult("the model rambled instead of returning JSON"); err == nil {
		t.Error("Expected an error for non-JSON output")
	}
	if _, err := parseResult(`{"summary": "", "key_insights": [], "decisions": [], "action_items": []}`); err == nil {
		t.Error("Expected an error when no usable fields are present")
	}
	if _, err := parseResult(""); err == nil {
		t.Error("Expected an error for empty content")
	}
}
