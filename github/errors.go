package github_handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v73/github"
)

// Sentinel errors for GitHub API operations.
// Every APIError unwraps to exactly one of the kind sentinels, so callers can use errors.Is.
var (
	// ErrAuthenticationFailed indicates GitHub rejected the credential, even after one refresh.
	// Action: check the PAT scopes or the App's installation permissions.
	ErrAuthenticationFailed = errors.New("GitHub authentication failed")

	// ErrNotFound indicates the resource does not exist or is not visible to the credential.
	ErrNotFound = errors.New("GitHub resource not found")

	// ErrValidationFailed indicates GitHub refused the request as malformed (4xx other than auth/404).
	ErrValidationFailed = errors.New("GitHub rejected the request")

	// ErrRateLimited indicates the GitHub API rate limit was exceeded.
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")

	// ErrUpstreamUnavailable indicates GitHub answered with a server error.
	ErrUpstreamUnavailable = errors.New("GitHub API unavailable")

	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("GitHub API unreachable")

	// ErrRepositoryUnavailable indicates no owner/repo could be determined from configuration
	// or the working copy's git remote.
	// Action: set GITHUB_OWNER and GITHUB_REPO, or run inside a clone with a GitHub origin.
	ErrRepositoryUnavailable = errors.New("GitHub repository context unavailable")

	// ErrGraphQLQuery indicates a GraphQL query failed.
	ErrGraphQLQuery = errors.New("GitHub GraphQL query failed")
)

// ErrorKind is the terminal classification of a failed call.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindRateLimit  ErrorKind = "rate_limit"
	KindUpstream   ErrorKind = "upstream"
	KindNetwork    ErrorKind = "network"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuthenticationFailed
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidationFailed
	case KindRateLimit:
		return ErrRateLimited
	case KindUpstream:
		return ErrUpstreamUnavailable
	default:
		return ErrNetwork
	}
}

// APIError is the classified failure of an executed request.
type APIError struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int

	// Message and DocumentationURL come from GitHub's error body when present.
	Message          string
	DocumentationURL string

	// Errors lists per-field validation failures, typically sent with a 422.
	Errors []github.Error

	// ResetAt is when the exhausted rate limit window resets. RetryAfter is the server-requested wait.
	ResetAt    time.Time
	RetryAfter time.Duration

	// Attempts is the number of HTTP calls made, including the one-shot auth retry.
	Attempts int
	Err      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GitHub API %s %s: %v", e.Method, e.Path, e.Kind.sentinel())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	for _, fe := range e.Errors {
		b.WriteString("; " + fieldError(fe))
	}
	if !e.ResetAt.IsZero() {
		b.WriteString("; resets at " + e.ResetAt.UTC().Format(time.RFC3339))
	}
	if e.RetryAfter > 0 {
		b.WriteString("; retry after " + e.RetryAfter.String())
	}
	return b.String()
}

func fieldError(fe github.Error) string {
	if fe.Message != "" && fe.Field == "" {
		return fe.Message
	}
	detail := fmt.Sprintf("%s.%s: %s", fe.Resource, fe.Field, fe.Code)
	if fe.Message != "" {
		detail += " (" + fe.Message + ")"
	}
	return detail
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Retryable reports whether the executor retries this kind of failure.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindUpstream, KindNetwork:
		return true
	default:
		return false
	}
}

// GraphQLError wraps a failed GraphQL operation.
type GraphQLError struct {
	Operation       string
	UnderlyingError error
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("GitHub GraphQL %s failed: %v", e.Operation, e.UnderlyingError)
}

func (e *GraphQLError) Unwrap() []error {
	return []error{ErrGraphQLQuery, e.UnderlyingError}
}

// NewGraphQLError creates a GraphQL error for operation.
func NewGraphQLError(operation string, err error) error {
	return &GraphQLError{Operation: operation, UnderlyingError: err}
}
