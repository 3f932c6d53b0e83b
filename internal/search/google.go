package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"prospect/internal/logger"
)

// GoogleProvider searches via the Google Custom Search JSON API.
type GoogleProvider struct {
	apiKey   string
	searchID string
	client   *http.Client
	baseURL  string
	rpm      int
}

// NewGoogleProvider creates a Google Custom Search provider.
func NewGoogleProvider(apiKey, searchID string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:   apiKey,
		searchID: searchID,
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  "https://www.googleapis.com/customsearch/v1",
		rpm:      60,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Capabilities() Capabilities {
	return Capabilities{DateFiltering: true, DomainFiltering: true}
}

func (g *GoogleProvider) RateLimit() int { return g.rpm }

// SetRateLimit overrides the declared requests-per-minute budget.
func (g *GoogleProvider) SetRateLimit(rpm int) {
	if rpm > 0 {
		g.rpm = rpm
	}
}

func (g *GoogleProvider) Search(ctx context.Context, query string, params Params) ([]Result, error) {
	values := url.Values{}
	values.Set("key", g.apiKey)
	values.Set("cx", g.searchID)
	values.Set("q", query)

	// CSE caps num at 10 per request.
	n := params.MaxResults
	if n <= 0 || n > 10 {
		n = 10
	}
	values.Set("num", strconv.Itoa(n))

	if params.Domain != "" {
		values.Set("siteSearch", params.Domain)
	}
	if params.Since > 0 {
		values.Set("sort", "date:r:"+dateFloor(params.Since).Format("20060102"))
	}
	if params.Language != "" {
		values.Set("lr", "lang_"+params.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building CSE request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing CSE request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CSE request failed with status %d", resp.StatusCode)
	}

	var apiResponse struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("parsing CSE response: %w", err)
	}
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("CSE API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)
	}

	results := make([]Result, 0, len(apiResponse.Items))
	for i, item := range apiResponse.Items {
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  extractDomain(item.Link),
			Score:   rankScore(i + 1),
			Source:  g.Name(),
			Rank:    i + 1,
		})
	}

	logger.Debug("google search completed", "query", query, "results", len(results))
	return results, nil
}

func dateFloor(since time.Duration) time.Time {
	days := int(since.Hours() / 24)
	switch {
	case days <= 1:
		return time.Now().AddDate(0, 0, -1)
	case days <= 7:
		return time.Now().AddDate(0, 0, -7)
	case days <= 30:
		return time.Now().AddDate(0, 0, -30)
	default:
		return time.Now().AddDate(0, 0, -365)
	}
}
