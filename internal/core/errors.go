package core

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable, programmatic error category. Kinds survive
// wrapping and are what callers switch on; messages are for people.
type ErrorKind string

const (
	// Input validation.
	KindInvalidURL         ErrorKind = "InvalidUrl"
	KindInvalidCompanyName ErrorKind = "InvalidCompanyName"

	// Link discovery.
	KindHomepageUnreachable ErrorKind = "HomepageUnreachable"
	KindRobotsBlocked       ErrorKind = "RobotsBlocked"
	KindNoCandidatesFound   ErrorKind = "NoCandidatesFound"

	// Page selection.
	KindSelectorUnparseable ErrorKind = "SelectorResponseUnparseable"
	KindSelectorEmpty       ErrorKind = "SelectorEmptySelection"

	// Fetching.
	KindFetchTimeout       ErrorKind = "FetchTimeout"
	KindFetchNetworkError  ErrorKind = "FetchNetworkError"
	KindFetchHTTPStatus    ErrorKind = "FetchHttpStatus"
	KindFetchBodyCapExceed ErrorKind = "FetchBodyCapExceeded"

	// Aggregation.
	KindLLMUnparseable   ErrorKind = "LlmUnparseable"
	KindLLMRateLimited   ErrorKind = "LlmRateLimited"
	KindLLMProviderError ErrorKind = "LlmProviderError"
	KindContentTooLarge  ErrorKind = "ContentTooLarge"

	// Persistence.
	KindVectorDimensionMismatch ErrorKind = "VectorDimensionMismatch"
	KindVectorUpsertFailed      ErrorKind = "VectorUpsertFailed"
	KindVectorStoreError        ErrorKind = "VectorStoreError"
	KindDocumentStoreFailed     ErrorKind = "DocumentStoreFailed"

	// Search.
	KindNoSearchResults ErrorKind = "NoSearchResults"

	// Lifecycle.
	KindCancelled        ErrorKind = "Cancelled"
	KindDeadlineExceeded ErrorKind = "DeadlineExceeded"
)

// Error carries a kind alongside a user-phrased message and an optional cause.
type Error struct {
	Kind    ErrorKind // Stable category for programmatic handling
	Message string    // Phrased for end users
	Err     error     // Underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error with the given kind and message, wrapping cause when
// one is supplied. Extra causes beyond the first are ignored.
func E(kind ErrorKind, message string, cause ...error) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(cause) > 0 {
		e.Err = cause[0]
	}
	return e
}

// Ef is E with Sprintf-style message formatting.
func Ef(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed. It returns ""
// when err is nil or carries no kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
