package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"clearcheck.app/engine/internal/model"
)

const factCheckSource = "google_fact_checking_api"

// FactCheckGatherer queries the Google Fact Check Tools claim search API for
// published fact-checks about a claim. Every claimReview in the response
// becomes one citation.
type FactCheckGatherer struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	maxResults int
}

type FactCheckOption func(*FactCheckGatherer)

func WithFactCheckHTTPClient(c *http.Client) FactCheckOption {
	return func(g *FactCheckGatherer) { g.client = c }
}

func WithMaxResults(n int) FactCheckOption {
	return func(g *FactCheckGatherer) { g.maxResults = n }
}

func NewFactCheckGatherer(apiKey, baseURL string, opts ...FactCheckOption) *FactCheckGatherer {
	g := &FactCheckGatherer{
		apiKey:     apiKey,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxResults: 5,
	}
	if g.baseURL == "" {
		g.baseURL = "https://factchecktools.googleapis.com/v1alpha1/claims:search"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *FactCheckGatherer) Name() string { return factCheckSource }

func (g *FactCheckGatherer) Gather(ctx context.Context, claim model.Claim) ([]model.Citation, error) {
	q := url.Values{}
	q.Set("query", claim.Text)
	q.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fact check search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fact check search: status %d", resp.StatusCode)
	}

	var payload claimSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding fact check response: %w", err)
	}

	citations := g.parse(payload)
	if len(citations) > g.maxResults {
		citations = citations[:g.maxResults]
	}

	slog.DebugContext(ctx, "fact checks gathered",
		"claim_id", claim.ID, "citations", len(citations))
	return citations, nil
}

type claimSearchResponse struct {
	Claims []struct {
		Text        string `json:"text"`
		Claimant    string `json:"claimant"`
		ClaimReview []struct {
			Publisher struct {
				Name string `json:"name"`
				Site string `json:"site"`
			} `json:"publisher"`
			URL           string `json:"url"`
			Title         string `json:"title"`
			TextualRating string `json:"textualRating"`
			ReviewDate    string `json:"reviewDate"`
		} `json:"claimReview"`
	} `json:"claims"`
}

func (g *FactCheckGatherer) parse(payload claimSearchResponse) []model.Citation {
	var citations []model.Citation
	for _, c := range payload.Claims {
		for _, review := range c.ClaimReview {
			if review.URL == "" || review.Title == "" {
				continue
			}

			snippet := review.Title
			switch {
			case review.TextualRating != "" && c.Text != "":
				snippet = fmt.Sprintf("Fact-check verdict: %s. Original claim: %s",
					review.TextualRating, truncate(c.Text, 200))
			case c.Text != "":
				snippet = fmt.Sprintf("Fact-check: %s", truncate(c.Text, 250))
			}

			citations = append(citations, model.Citation{
				URL:       review.URL,
				Title:     review.Title,
				Publisher: review.Publisher.Name,
				Snippet:   snippet,
				Source:    factCheckSource,
				Rating:    review.TextualRating,
				Date:      review.ReviewDate,
			})
		}
	}
	return citations
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
