// Package github talks to the GitHub REST API, the remote authority for
// issues when a token and repository are configured.
package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the number of extra attempts for a failed read.
	MaxRetries = 3

	// RetryDelay is the first backoff interval between read attempts.
	RetryDelay = 500 * time.Millisecond

	MaxPageSize = 100

	// MaxPages stops pagination that a malformed Link header would make
	// endless.
	MaxPages = 100
)

var (
	// ErrRemoteUnavailable wraps every failure to reach or satisfy GitHub.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrNotConfigured is returned when token, owner or repo is missing.
	ErrNotConfigured = errors.New("remote not configured")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode  int
	Body        string
	RateLimited bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrRemoteUnavailable
}

// Client is safe for concurrent use once constructed.
type Client struct {
	Token      string
	Owner      string
	Repo       string
	BaseURL    string
	HTTPClient *http.Client
	RetryDelay time.Duration
}

// Issue is an issue as returned by the GitHub API.
type Issue struct {
	ID          int64      `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	User        *User      `json:"user,omitempty"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"`
}

// PullRef is set when an entry of the issues endpoint is a pull request.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Comment is an issue comment as returned by the GitHub API.
type Comment struct {
	ID        int64      `json:"id"`
	Body      string     `json:"body"`
	User      *User      `json:"user,omitempty"`
	CreatedAt *time.Time `json:"created_at"`
}
