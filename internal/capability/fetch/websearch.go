package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"clearcheck.app/engine/internal/model"
)

const webSearchSource = "web_search"

// WebSearchGatherer searches the open web for a claim through a serper.dev
// style search API and turns organic results into citations. It is the
// broadest evidence source: anything indexed can come back, so citations
// carry no rating and adjudication weighs them by content.
type WebSearchGatherer struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	maxResults int
}

type WebSearchOption func(*WebSearchGatherer)

func WithWebSearchHTTPClient(c *http.Client) WebSearchOption {
	return func(g *WebSearchGatherer) { g.client = c }
}

func WithWebSearchMaxResults(n int) WebSearchOption {
	return func(g *WebSearchGatherer) { g.maxResults = n }
}

func NewWebSearchGatherer(apiKey, baseURL string, opts ...WebSearchOption) *WebSearchGatherer {
	g := &WebSearchGatherer{
		apiKey:     apiKey,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		maxResults: 5,
	}
	if g.baseURL == "" {
		g.baseURL = "https://google.serper.dev/search"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *WebSearchGatherer) Name() string { return webSearchSource }

func (g *WebSearchGatherer) Gather(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
	num := g.maxResults
	if num > 10 {
		num = 10 // the API caps organic results per request
	}
	body, err := json.Marshal(webSearchRequest{Query: claim.Text, Num: num})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-API-KEY", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search: status %d", resp.StatusCode)
	}

	var payload webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding web search response: %w", err)
	}

	citations := g.parse(payload)
	if len(citations) > g.maxResults {
		citations = citations[:g.maxResults]
	}

	slog.DebugContext(ctx, "web results gathered",
		"claim_id", claim.ID, "citations", len(citations))
	return citations, nil
}

type webSearchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type webSearchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Domain  string `json:"domain"`
	} `json:"organic"`
}

func (g *WebSearchGatherer) parse(payload webSearchResponse) []model.Citation {
	var citations []model.Citation
	for _, r := range payload.Organic {
		if r.Link == "" || r.Title == "" {
			continue
		}

		publisher := r.Domain
		if publisher == "" {
			if u, err := url.Parse(r.Link); err == nil {
				publisher = u.Hostname()
			}
		}

		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Title
		}

		citations = append(citations, model.Citation{
			URL:       r.Link,
			Title:     r.Title,
			Publisher: publisher,
			Snippet:   snippet,
			Source:    webSearchSource,
		})
	}
	return citations
}
