package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a client for owner/repo authenticated with token.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		RetryDelay: RetryDelay,
	}
}

// WithHTTPClient returns a copy using httpClient.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	next := *c
	next.HTTPClient = httpClient
	return &next
}

// WithBaseURL returns a copy pointed at baseURL (tests, GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	next := *c
	next.BaseURL = strings.TrimRight(baseURL, "/")
	return &next
}

// IsConfigured reports whether the client can reach a repository at all.
func (c *Client) IsConfigured() bool {
	return c != nil && c.Token != "" && c.Owner != "" && c.Repo != ""
}

func (c *Client) repoPath() string {
	return "/repos/" + c.Owner + "/" + c.Repo
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// do performs exactly one request.
func (c *Client) do(ctx context.Context, method, urlStr string, body any) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteUnavailable, method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %w", ErrRemoteUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rateLimited := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
		return nil, nil, &APIError{
			StatusCode:  resp.StatusCode,
			Body:        strings.TrimSpace(string(respBody)),
			RateLimited: rateLimited,
		}
	}
	return respBody, resp.Header, nil
}

// get retries transient read failures with exponential backoff. Writes go
// through do directly and are never repeated.
func (c *Client) get(ctx context.Context, urlStr string) ([]byte, http.Header, error) {
	var (
		respBody []byte
		headers  http.Header
	)
	op := func() error {
		var err error
		respBody, headers, err = c.do(ctx, http.MethodGet, urlStr, nil)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if c.RetryDelay > 0 {
		bo.InitialInterval = c.RetryDelay
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries), ctx)); err != nil {
		return nil, nil, err
	}
	return respBody, headers, nil
}

// retryable treats transport errors, 5xx and rate limiting as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.RateLimited || apiErr.StatusCode >= 500
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func nextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// ListAll returns every issue of the repository in any state. Pull
// requests, which GitHub lists on the same endpoint, are skipped.
func (c *Client) ListAll(ctx context.Context) ([]Issue, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	all := make([]Issue, 0)
	urlStr := c.buildURL(c.repoPath()+"/issues", map[string]string{
		"state":    "all",
		"per_page": strconv.Itoa(MaxPageSize),
	})
	for page := 1; ; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("%w: pagination stopped after %d pages", ErrRemoteUnavailable, MaxPages)
		}

		respBody, headers, err := c.get(ctx, urlStr)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}

		var issues []Issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, fmt.Errorf("%w: parse issues response: %w", ErrRemoteUnavailable, err)
		}
		for _, issue := range issues {
			if issue.PullRequest == nil {
				all = append(all, issue)
			}
		}

		next, ok := nextPage(headers)
		if !ok {
			return all, nil
		}
		urlStr = next
	}
}

// Create opens an issue. GitHub attributes it to the token owner, so the
// acting user is recorded in a trailer of the body.
func (c *Client) Create(ctx context.Context, title, description, author string) (Issue, error) {
	if !c.IsConfigured() {
		return Issue{}, ErrNotConfigured
	}

	reqBody := map[string]string{
		"title": title,
		"body":  withAuthorTrailer(description, author),
	}
	respBody, _, err := c.do(ctx, http.MethodPost, c.buildURL(c.repoPath()+"/issues", nil), reqBody)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return Issue{}, fmt.Errorf("%w: parse create response: %w", ErrRemoteUnavailable, err)
	}
	return issue, nil
}

// SetStatus sets the remote state of issue number to "open" or "closed".
func (c *Client) SetStatus(ctx context.Context, number int, state string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	urlStr := c.buildURL(c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	if _, _, err := c.do(ctx, http.MethodPatch, urlStr, map[string]string{"state": state}); err != nil {
		return fmt.Errorf("update issue #%d: %w", number, err)
	}
	return nil
}

// AddComment posts text on issue number, prefixed with the author.
func (c *Client) AddComment(ctx context.Context, number int, author, text string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	urlStr := c.buildURL(c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	if _, _, err := c.do(ctx, http.MethodPost, urlStr, map[string]string{"body": formatCommentBody(author, text)}); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return nil
}

// ListComments returns the comments of issue number, oldest first.
func (c *Client) ListComments(ctx context.Context, number int) ([]Comment, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	all := make([]Comment, 0)
	urlStr := c.buildURL(c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", map[string]string{
		"per_page": strconv.Itoa(MaxPageSize),
	})
	for page := 1; ; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("%w: pagination stopped after %d pages", ErrRemoteUnavailable, MaxPages)
		}
		respBody, headers, err := c.get(ctx, urlStr)
		if err != nil {
			return nil, fmt.Errorf("list comments of #%d: %w", number, err)
		}

		var comments []Comment
		if err := json.Unmarshal(respBody, &comments); err != nil {
			return nil, fmt.Errorf("%w: parse comments response: %w", ErrRemoteUnavailable, err)
		}
		all = append(all, comments...)

		next, ok := nextPage(headers)
		if !ok {
			return all, nil
		}
		urlStr = next
	}
}
