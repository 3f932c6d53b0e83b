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

// SerpAPIProvider searches through the SerpAPI JSON API.
type SerpAPIProvider struct {
	apiKey  string
	client  *http.Client
	baseURL string
	rpm     int
}

// NewSerpAPIProvider creates a SerpAPI search provider.
func NewSerpAPIProvider(apiKey string) *SerpAPIProvider {
	return &SerpAPIProvider{
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://serpapi.com/search",
		rpm:     60,
	}
}

func (s *SerpAPIProvider) Name() string { return "serpapi" }

func (s *SerpAPIProvider) Capabilities() Capabilities {
	return Capabilities{DateFiltering: true, DomainFiltering: true}
}

func (s *SerpAPIProvider) RateLimit() int { return s.rpm }

// SetRateLimit overrides the declared requests-per-minute budget.
func (s *SerpAPIProvider) SetRateLimit(rpm int) {
	if rpm > 0 {
		s.rpm = rpm
	}
}

func (s *SerpAPIProvider) Search(ctx context.Context, query string, params Params) ([]Result, error) {
	if params.Domain != "" {
		query = query + " site:" + params.Domain
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("engine", "google")
	values.Set("api_key", s.apiKey)
	if params.MaxResults > 0 {
		values.Set("num", strconv.Itoa(params.MaxResults))
	}
	if params.Since > 0 {
		days := int(params.Since.Hours() / 24)
		switch {
		case days <= 1:
			values.Set("tbs", "qdr:d")
		case days <= 7:
			values.Set("tbs", "qdr:w")
		case days <= 30:
			values.Set("tbs", "qdr:m")
		default:
			values.Set("tbs", "qdr:y")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building SerpAPI request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing SerpAPI request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SerpAPI request failed with status %d", resp.StatusCode)
	}

	var apiResponse struct {
		OrganicResults []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
		} `json:"organic_results"`
		Error string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("parsing SerpAPI response: %w", err)
	}
	if apiResponse.Error != "" {
		return nil, fmt.Errorf("SerpAPI error: %s", apiResponse.Error)
	}

	results := make([]Result, 0, len(apiResponse.OrganicResults))
	for _, item := range apiResponse.OrganicResults {
		rank := item.Position
		if rank <= 0 {
			rank = len(results) + 1
		}
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  extractDomain(item.Link),
			Score:   rankScore(rank),
			Source:  s.Name(),
			Rank:    rank,
		})
	}

	logger.Debug("serpapi search completed", "query", query, "results", len(results))
	return results, nil
}
