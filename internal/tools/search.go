package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
)

// WebSearchTool searches the web via the Tavily API.
type WebSearchTool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewWebSearchTool creates the search tool. Fails when no API key is
// configured, so callers simply skip registration in that case.
func NewWebSearchTool(apiKey string) (*WebSearchTool, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search API key is not set")
	}
	return &WebSearchTool{apiKey: apiKey}, nil
}

// WithBaseURL overrides the Tavily endpoint, for tests.
func (t *WebSearchTool) WithBaseURL(baseURL string) *WebSearchTool {
	t.baseURL = baseURL
	return t
}

// WithHTTPClient overrides the HTTP client, for tests.
func (t *WebSearchTool) WithHTTPClient(client *http.Client) *WebSearchTool {
	t.httpClient = client
	return t
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web for current information" }
func (t *WebSearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"}
		},
		"required": ["query"]
	}`)
}

func (t *WebSearchTool) Execute(_ context.Context, params json.RawMessage) (string, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	resp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         p.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	return formatSearchResults(resp.Answer, resp.Results), nil
}

// formatSearchResults joins the answer and result snippets into a block the
// model can quote from.
func formatSearchResults(answer string, results []tavilyModels.SearchResult) string {
	if answer == "" && len(results) == 0 {
		return "No search results found."
	}

	var sb strings.Builder
	if answer != "" {
		fmt.Fprintf(&sb, "Answer: %s\n\n", answer)
	}
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s)\n  %s\n", r.Title, r.URL, r.Content)
	}
	if sb.Len() == 0 {
		return "I found results, but no useful snippets."
	}
	return strings.TrimRight(sb.String(), "\n")
}
