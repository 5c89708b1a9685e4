package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi-assistant/internal/ssrf"
	"github.com/ashita-ai/akashi-assistant/internal/toolregistry"
)

// SearchProvider resolves a query to a formatted list of results. The
// built-in implementation calls out to an HTTP search API; a host without
// one configured can pass a stub that always returns an explanatory
// "search unavailable" string instead.
type SearchProvider func(ctx context.Context, query string) (string, error)

// WebSearchTools registers web_search against the given provider.
func WebSearchTools(provider SearchProvider) func(r *toolregistry.Registry) error {
	return func(r *toolregistry.Registry) error {
		r.Register("web_search", &toolregistry.Tool{
			Schema: mcplib.NewTool("web_search",
				mcplib.WithDescription("Search the web for current information. Returns a numbered list "+
					"of results with titles and snippets. Use this for anything time-sensitive or outside "+
					"your training knowledge."),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("query",
					mcplib.Description("The search query."),
					mcplib.Required(),
				),
			),
			Func:        searchFunc(provider),
			Compression: toolregistry.CompressWebSearch,
		})
		return nil
	}
}

func searchFunc(provider SearchProvider) toolregistry.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("query is required")
		}
		return provider(ctx, query)
	}
}

// StubSearchProvider always reports that web search isn't configured,
// for hosts that haven't wired a real search API key.
func StubSearchProvider(ctx context.Context, query string) (string, error) {
	return "web search is not configured on this deployment", nil
}

// braveResult mirrors the subset of the Brave Search API's response
// shape this provider reads.
type braveResult struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// BraveSearchProvider calls the Brave Search API, guarding the request
// URL through internal/ssrf the same way any other tool-driven outbound
// fetch in this codebase does.
func BraveSearchProvider(apiKey string) SearchProvider {
	return func(ctx context.Context, query string) (string, error) {
		reqURL := "https://api.search.brave.com/res/v1/web/search?q=" + url.QueryEscape(query)
		if err := ssrf.Guard(reqURL); err != nil {
			return "", fmt.Errorf("web_search: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", fmt.Errorf("web_search: build request: %w", err)
		}
		req.Header.Set("X-Subscription-Token", apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("web_search: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return "", fmt.Errorf("web_search: status %d: %s", resp.StatusCode, string(body))
		}

		var parsed braveResult
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("web_search: decode response: %w", err)
		}

		var out string
		for i, r := range parsed.Web.Results {
			out += fmt.Sprintf("%d. %s — %s\n%s\n\n", i+1, r.Title, r.URL, r.Description)
		}
		if out == "" {
			return "no results found", nil
		}
		return out, nil
	}
}
