package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/observability"
	"github.com/scribeline/meeting-backend/internal/resilience"
	"github.com/scribeline/meeting-backend/internal/store"
)

// SearchResult is one citation-backed web result from the You.com search API
type SearchResult struct {
	Title       string
	URL         string
	Description string
	Snippet     string
}

// Client enriches meeting insights with You.com search results
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewClient creates a research client. The client is inert when no API key
// is configured; enrichment then returns no items.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      resilience.ConfigFromSettings(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		logger:     observability.WithComponent("research"),
	}
}

// Configured reports whether a You.com API key is available
func (c *Client) Configured() bool {
	return c.cfg.YouComAPIKey != ""
}

// searchResponse mirrors the You.com search API response shape
type searchResponse struct {
	Results struct {
		Web  []searchHit `json:"web"`
		News []searchHit `json:"news"`
	} `json:"results"`
}

type searchHit struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Snippets    []string `json:"snippets"`
}

// Search queries the You.com search API and merges web and news hits
func (c *Client) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if !c.Configured() {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if count > 10 {
		count = 10
	}

	endpoint := strings.TrimSuffix(c.cfg.YouComSearchURL, "/") + "/v1/search?" + url.Values{
		"query":     {query},
		"count":     {strconv.Itoa(count)},
		"freshness": {"month"},
	}.Encode()

	var decoded searchResponse
	err := resilience.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.cfg.YouComAPIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("search request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("search API returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	}, c.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		observability.RecordError("search_error", "research")
		return nil, err
	}

	hits := append(decoded.Results.Web, decoded.Results.News...)
	results := make([]SearchResult, 0, count)
	for _, hit := range hits {
		if len(results) >= count {
			break
		}
		title := strings.TrimSpace(hit.Title)
		desc := strings.TrimSpace(hit.Description)
		snippet := desc
		if len(hit.Snippets) > 0 && strings.TrimSpace(hit.Snippets[0]) != "" {
			snippet = strings.TrimSpace(hit.Snippets[0])
		}
		if title == "" && snippet == "" {
			continue
		}
		if title == "" {
			title = "Source"
		}
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		results = append(results, SearchResult{
			Title:       title,
			URL:         strings.TrimSpace(hit.URL),
			Description: desc,
			Snippet:     snippet,
		})
	}
	return results, nil
}

const (
	maxQueries       = 2
	maxResearchItems = 3
)

// EnrichInsights builds search queries from the summary and key insights and
// returns URL-deduplicated research items. Never fails the caller: on error
// it returns whatever was collected so far.
func (c *Client) EnrichInsights(ctx context.Context, summary string, keyInsights []string) []store.ResearchInsight {
	if !c.Configured() {
		return nil
	}

	candidates := queryCandidates(summary, keyInsights)
	if len(candidates) == 0 {
		c.logger.Debug().Msg("No search candidates from insights/summary")
		return nil
	}
	if len(candidates) > maxQueries {
		candidates = candidates[:maxQueries]
	}

	items := make([]store.ResearchInsight, 0, maxResearchItems)
	seen := make(map[string]bool)
	for _, q := range candidates {
		results, err := c.Search(ctx, q, 2)
		if err != nil {
			c.logger.Warn().Err(err).Str("query", q).Msg("Research search failed")
			continue
		}
		for _, r := range results {
			if r.URL != "" && seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			if r.Snippet == "" {
				continue
			}
			items = append(items, store.ResearchInsight{
				Insight: r.Snippet,
				Title:   r.Title,
				URL:     r.URL,
			})
		}
		if len(items) >= maxResearchItems {
			break
		}
	}

	c.logger.Info().Int("items", len(items)).Msg("Research enrichment complete")
	return items
}

// queryCandidates picks short insight sentences first, then falls back to the
// summary's first sentence or leading chunk
func queryCandidates(summary string, keyInsights []string) []string {
	candidates := make([]string, 0, 4)
	for i, s := range keyInsights {
		if i >= 4 {
			break
		}
		s = strings.TrimSpace(s)
		if len(s) >= 10 && len(s) <= 150 {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 && summary != "" {
		first := strings.TrimSpace(strings.SplitN(summary, ". ", 2)[0])
		if len(first) >= 10 {
			candidates = append(candidates, first)
		}
	}
	if len(candidates) == 0 && summary != "" {
		chunk := summary
		if len(chunk) > 80 {
			chunk = chunk[:80]
		}
		chunk = strings.TrimSpace(chunk)
		if len(chunk) >= 15 {
			candidates = append(candidates, chunk)
		}
	}
	return candidates
}
