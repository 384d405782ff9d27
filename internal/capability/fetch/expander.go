package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"clearcheck.app/engine/internal/model"
)

// urlPattern matches http/https URLs embedded in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

const (
	defaultMaxLinks = 5
	maxBodyBytes    = 1 << 20 // 1 MiB per page
	maxUnitText     = 20000   // characters kept per expanded unit
)

// LinkExpander turns URLs found in an original_text unit into link_context
// units carrying the fetched page text. Fetch failures skip the link; the
// original unit is always verified regardless.
type LinkExpander struct {
	client   *http.Client
	maxLinks int
}

type ExpanderOption func(*LinkExpander)

func WithHTTPClient(c *http.Client) ExpanderOption {
	return func(e *LinkExpander) { e.client = c }
}

func WithMaxLinks(n int) ExpanderOption {
	return func(e *LinkExpander) { e.maxLinks = n }
}

func NewLinkExpander(opts ...ExpanderOption) *LinkExpander {
	e := &LinkExpander{
		client:   &http.Client{Timeout: 15 * time.Second},
		maxLinks: defaultMaxLinks,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LinkExpander) Expand(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error) {
	if !unit.IsExpandable() {
		return nil, nil
	}

	urls := ExtractLinks(unit.Text)
	if len(urls) > e.maxLinks {
		slog.WarnContext(ctx, "too many links in unit, truncating",
			"unit_id", unit.ID, "found", len(urls), "max", e.maxLinks)
		urls = urls[:e.maxLinks]
	}

	var expanded []model.ContentUnit
	for _, u := range urls {
		text, err := e.fetchText(ctx, u)
		if err != nil {
			slog.WarnContext(ctx, "link expansion skipped",
				"unit_id", unit.ID, "url", u, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		expanded = append(expanded, model.ContentUnit{
			ID:       model.NewUnitID(),
			Kind:     model.UnitLinkContext,
			Text:     text,
			URL:      u,
			ParentID: unit.ID,
		})
	}

	slog.InfoContext(ctx, "unit expanded",
		"unit_id", unit.ID, "links", len(urls), "expanded", len(expanded))
	return expanded, nil
}

func (e *LinkExpander) fetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "clearcheck-engine/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	text := htmlToText(string(body))
	if len(text) > maxUnitText {
		text = text[:maxUnitText]
	}
	return text, nil
}

// ExtractLinks returns the unique http/https URLs in text, preserving order.
func ExtractLinks(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
	}
	return urls
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	linePattern   = regexp.MustCompile(`\n{3,}`)
)

// htmlToText strips markup down to readable text. Good enough for feeding an
// article body to claim extraction; layout fidelity does not matter.
func htmlToText(s string) string {
	s = scriptPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, "\n")
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)
	s = spacePattern.ReplaceAllString(s, " ")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			lines = append(lines, t)
		}
	}
	return linePattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}
