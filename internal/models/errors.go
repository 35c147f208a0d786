package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Wrap them with fmt.Errorf("...: %w") and
// classify with errors.Is or Kind.
var (
	// ErrInvalidQuery signals empty or malformed search input.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidThreshold signals a duplicate threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrUnsupportedMode signals an unrecognized search mode.
	ErrUnsupportedMode = errors.New("unsupported search mode")
	// ErrNotFound signals a missing document.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable signals that the embedding capability or index storage
	// is unreachable or timed out. Retryable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrDataIntegrity signals entries present in one index but missing from another.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// ErrorKind is a stable, machine-readable error classification.
type ErrorKind string

// Error kind values.
const (
	KindInvalidQuery        ErrorKind = "invalid_query"
	KindInvalidThreshold    ErrorKind = "invalid_threshold"
	KindUnsupportedMode     ErrorKind = "unsupported_mode"
	KindNotFound            ErrorKind = "not_found"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindDataIntegrity       ErrorKind = "data_integrity"
	KindInternal            ErrorKind = "internal"
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, ErrInvalidThreshold):
		return KindInvalidThreshold
	case errors.Is(err, ErrUnsupportedMode):
		return KindUnsupportedMode
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrDataIntegrity):
		return KindDataIntegrity
	default:
		return KindInternal
	}
}

// Upstream marks err as an upstream failure of the named dependency.
// Errors that already carry the upstream kind are only annotated.
func Upstream(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %w", what, ErrUpstreamUnavailable, err)
}
