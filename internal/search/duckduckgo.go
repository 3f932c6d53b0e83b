package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"prospect/internal/logger"
)

// DuckDuckGoProvider scrapes the DuckDuckGo HTML endpoint. No API key is
// required, which makes it the default fallback provider.
type DuckDuckGoProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	rpm       int
}

// NewDuckDuckGoProvider creates a DuckDuckGo search provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   "https://html.duckduckgo.com/html/",
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		// Default stays low because the HTML endpoint blocks aggressive callers.
		rpm: 20,
	}
}

func (d *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (d *DuckDuckGoProvider) Capabilities() Capabilities {
	// Domain restriction rides inside the query string as a site: operator.
	return Capabilities{DateFiltering: true, DomainFiltering: true}
}

func (d *DuckDuckGoProvider) RateLimit() int { return d.rpm }

// SetRateLimit overrides the declared requests-per-minute budget.
func (d *DuckDuckGoProvider) SetRateLimit(rpm int) {
	if rpm > 0 {
		d.rpm = rpm
	}
}

func (d *DuckDuckGoProvider) Search(ctx context.Context, query string, params Params) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.buildSearchURL(query, params), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	html := string(body)
	if strings.Contains(strings.ToLower(html), "captcha") {
		return nil, fmt.Errorf("blocked by CAPTCHA")
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	results := d.parseSearchResults(html, maxResults)

	logger.Debug("duckduckgo search completed", "query", query, "results", len(results))
	return results, nil
}

func (d *DuckDuckGoProvider) buildSearchURL(query string, params Params) string {
	if params.Domain != "" {
		query = query + " site:" + params.Domain
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("b", "0")
	values.Set("kl", "us-en")
	if params.Since > 0 {
		days := int(params.Since.Hours() / 24)
		switch {
		case days <= 1:
			values.Set("df", "d")
		case days <= 7:
			values.Set("df", "w")
		case days <= 30:
			values.Set("df", "m")
		default:
			values.Set("df", "y")
		}
	}
	return d.baseURL + "?" + values.Encode()
}

var (
	ddgResultPattern  = regexp.MustCompile(`<div class="result[^"]*"[^>]*>(.*?)</div>`)
	ddgTitlePattern   = regexp.MustCompile(`<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func (d *DuckDuckGoProvider) parseSearchResults(html string, maxResults int) []Result {
	var results []Result
	for i, match := range ddgResultPattern.FindAllStringSubmatch(html, -1) {
		if len(results) >= maxResults {
			break
		}
		resultHTML := match[1]

		titleMatch := ddgTitlePattern.FindStringSubmatch(resultHTML)
		if len(titleMatch) < 3 {
			continue
		}
		finalURL := decodeRedirect(titleMatch[1])
		if finalURL == "" {
			continue
		}

		snippet := ""
		if m := ddgSnippetPattern.FindStringSubmatch(resultHTML); len(m) >= 2 {
			snippet = cleanHTMLText(m[1])
		}

		rank := i + 1
		results = append(results, Result{
			URL:     finalURL,
			Title:   cleanHTMLText(titleMatch[2]),
			Snippet: snippet,
			Domain:  extractDomain(finalURL),
			Score:   rankScore(rank),
			Source:  d.Name(),
			Rank:    rank,
		})
	}
	return results
}

// decodeRedirect unwraps DuckDuckGo's /l/?uddg=... redirect URLs.
func decodeRedirect(redirectURL string) string {
	if strings.HasPrefix(redirectURL, "/l/?") || strings.HasPrefix(redirectURL, "//duckduckgo.com/l/?") {
		parsed, err := url.Parse(redirectURL)
		if err != nil {
			return ""
		}
		if uddg := parsed.Query().Get("uddg"); uddg != "" {
			decoded, err := url.QueryUnescape(uddg)
			if err != nil {
				return ""
			}
			return decoded
		}
	}
	if strings.HasPrefix(redirectURL, "http") {
		return redirectURL
	}
	return ""
}

func cleanHTMLText(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	replacements := [][2]string{
		{"&amp;", "&"}, {"&lt;", "<"}, {"&gt;", ">"},
		{"&quot;", `"`}, {"&#39;", "'"}, {"&nbsp;", " "},
	}
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
