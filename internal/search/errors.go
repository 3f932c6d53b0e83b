package search

import "errors"

var (
	// ErrMissingAPIKey indicates a provider was configured without its API key.
	ErrMissingAPIKey = errors.New("search: missing API key")

	// ErrMissingSearchID indicates Google CSE was configured without a search engine ID.
	ErrMissingSearchID = errors.New("search: missing search engine ID")

	// ErrUnsupportedProvider indicates an unknown provider type was requested.
	ErrUnsupportedProvider = errors.New("search: unsupported provider type")

	// ErrRateLimited indicates the registry declined a call to stay under a
	// provider's requests-per-minute budget.
	ErrRateLimited = errors.New("search: provider rate limit reached")
)
