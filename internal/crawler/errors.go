package crawler

import (
	"errors"
	"fmt"
)

// ErrNoRootSitemap is returned when no root sitemap can be resolved for an outlet.
var ErrNoRootSitemap = errors.New("no root sitemap found")

// ErrUnknownOutlet is returned when no rule profile exists for the requested outlet.
var ErrUnknownOutlet = errors.New("unknown outlet")

// ErrQueueClosed is returned by Dequeue once a queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// FetchErrorKind groups transport failures.
type FetchErrorKind string

// Supported fetch failure kinds.
const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchNetwork    FetchErrorKind = "network"
)

// FetchError reports a failed fetch. It is never fatal to a run: the node is
// dropped and counted.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed or unrecognized sitemap body. Callers treat
// it as zero entries.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("parse sitemap: %v", e.Err)
	}
	return fmt.Sprintf("parse sitemap %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError aborts a run before any fetching begins: a missing or invalid
// rule profile, or no resolvable root sitemap.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError for field.
func NewConfigError(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}
