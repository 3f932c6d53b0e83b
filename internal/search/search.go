// Package search fans company queries out to pluggable web-search providers
// and merges their results into one deduplicated, scored list.
package search

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Params tunes one search request.
type Params struct {
	MaxResults int           // Maximum results per provider
	Since      time.Duration // Only results newer than this (0 = any age)
	Domain     string        // Restrict to one domain (providers that support it)
	Language   string        // Language preference (e.g., "en")
}

// Result is one merged or provider-native search hit.
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Domain      string    `json:"domain"`
	Score       float64   `json:"score"` // Relevance in [0,1]
	PublishedAt time.Time `json:"published_at,omitempty"`
	Source      string    `json:"source"` // Provider name(s)
	Rank        int       `json:"rank"`   // Position in merged output
}

// Capabilities declares what a provider's query language supports.
type Capabilities struct {
	DateFiltering   bool
	DomainFiltering bool
}

// Provider is one web-search backend.
type Provider interface {
	// Search runs one query. Implementations honor ctx cancellation.
	Search(ctx context.Context, query string, params Params) ([]Result, error)

	// Name returns the stable provider identifier used in config.
	Name() string

	// Capabilities reports which Params fields the provider honors.
	Capabilities() Capabilities

	// RateLimit is the provider's allowed requests per minute.
	RateLimit() int
}

// ProviderType identifies a provider implementation.
type ProviderType string

const (
	ProviderTypeDuckDuckGo ProviderType = "duckduckgo"
	ProviderTypeGoogle     ProviderType = "google"
	ProviderTypeSerpAPI    ProviderType = "serpapi"
	ProviderTypeMock       ProviderType = "mock"
)

// NewProvider creates a provider of the given type from a flat settings map.
func NewProvider(providerType ProviderType, settings map[string]string) (Provider, error) {
	switch providerType {
	case ProviderTypeDuckDuckGo:
		return NewDuckDuckGoProvider(), nil
	case ProviderTypeGoogle:
		apiKey := settings["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		searchID := settings["search_id"]
		if searchID == "" {
			return nil, ErrMissingSearchID
		}
		return NewGoogleProvider(apiKey, searchID), nil
	case ProviderTypeSerpAPI:
		apiKey := settings["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewSerpAPIProvider(apiKey), nil
	case ProviderTypeMock:
		return NewMockProvider(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// rankScore maps a 1-based result position to a relevance score for
// providers that report rank but no score of their own.
func rankScore(rank int) float64 {
	s := 1.0 - 0.08*float64(rank-1)
	if s < 0.1 {
		s = 0.1
	}
	return s
}

// extractDomain pulls the www-stripped hostname out of a URL.
func extractDomain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
