package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/modelclient"
)

// SearchClient calls the upstream web-search provider. An empty APIKey
// forces every search into the no-sources branch, matching the fallback
// the pipeline takes when search is unavailable.
type SearchClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewSearchClient creates a SearchClient with a bounded keep-alive pool,
// mirroring the Remote Model Client's connection-lifecycle idiom.
func NewSearchClient(baseURL, apiKey string) *SearchClient {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &SearchClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Transport: transport},
	}
}

// Configured reports whether an API key is present.
func (c *SearchClient) Configured() bool {
	return c.apiKey != ""
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponseItem struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Snippet     string  `json:"snippet"`
	RawContent  string  `json:"raw_content"`
	Score       float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResponseItem `json:"results"`
}

func (item searchResponseItem) bestSnippet() string {
	if item.Content != "" {
		return item.Content
	}
	if item.Snippet != "" {
		return item.Snippet
	}
	return item.RawContent
}

// Search runs a web search for up to maxResults results. Results with an
// empty URL are dropped, per the ResearchResult invariant.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int, timeout time.Duration) ([]domain.ResearchResult, error) {
	payload, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    maxResults,
		IncludeAnswer: false,
	})
	if err != nil {
		return nil, fmt.Errorf("research: encode search request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("research: build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, modelclient.ErrTimeout
		}
		return nil, &modelclient.NetworkError{Reason: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &modelclient.NetworkError{Reason: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &modelclient.RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("research: decode search response: %w", err)
	}

	results := make([]domain.ResearchResult, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.URL == "" {
			continue
		}
		score := item.Score
		results = append(results, domain.ResearchResult{
			Title:          item.Title,
			URL:            item.URL,
			Snippet:        item.bestSnippet(),
			SourceDomain:   domainOf(item.URL),
			RelevanceScore: &score,
		})
	}
	return results, nil
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
