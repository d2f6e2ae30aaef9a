package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tavilyModels "github.com/diverged/tavily-go/models"
)

func searchServer(t *testing.T, answer string, results []tavilyModels.SearchResult) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req tavilyModels.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Query == "" {
			t.Error("empty query in request")
		}

		resp := tavilyModels.SearchResponse{
			Results: results,
			Answer:  answer,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestWebSearchTool(t *testing.T) {
	server := searchServer(t, "Paris", []tavilyModels.SearchResult{
		{Title: "Capital of France", URL: "https://example.com", Content: "Paris is the capital.", Score: 0.9},
	})
	defer server.Close()

	tool, err := NewWebSearchTool("test-key")
	if err != nil {
		t.Fatal(err)
	}
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	params, _ := json.Marshal(map[string]any{"query": "capital of France"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result, "Paris") {
		t.Errorf("missing answer in result: %q", result)
	}
	if !strings.Contains(result, "Capital of France") {
		t.Errorf("missing snippet title in result: %q", result)
	}
}

func TestWebSearchTool_NoResults(t *testing.T) {
	server := searchServer(t, "", nil)
	defer server.Close()

	tool, err := NewWebSearchTool("test-key")
	if err != nil {
		t.Fatal(err)
	}
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	params, _ := json.Marshal(map[string]any{"query": "obscure nonsense"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if result != "No search results found." {
		t.Errorf("result = %q", result)
	}
}

func TestWebSearchTool_EmptyQuery(t *testing.T) {
	tool, err := NewWebSearchTool("test-key")
	if err != nil {
		t.Fatal(err)
	}
	params, _ := json.Marshal(map[string]any{"query": "  "})
	if _, err := tool.Execute(context.Background(), params); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestNewWebSearchTool_NoKey(t *testing.T) {
	if _, err := NewWebSearchTool(""); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestFormatSearchResults(t *testing.T) {
	out := formatSearchResults("", []tavilyModels.SearchResult{
		{Title: "T1", URL: "https://a", Content: "snippet one"},
		{Title: "T2", URL: "https://b", Content: ""},
	})
	if !strings.Contains(out, "snippet one") {
		t.Errorf("missing snippet: %q", out)
	}
	if strings.Contains(out, "T2") {
		t.Errorf("empty-content result should be skipped: %q", out)
	}

	out = formatSearchResults("", []tavilyModels.SearchResult{{Title: "T", URL: "https://a", Content: "  "}})
	if !strings.Contains(out, "no useful snippets") {
		t.Errorf("result = %q", out)
	}
}
