package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(server *httptest.Server) *Client {
	client := NewClient("test-token", "acme", "widgets").WithBaseURL(server.URL)
	client.RetryDelay = time.Millisecond
	return client
}

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		client *Client
		want   bool
	}{
		{name: "complete", client: NewClient("t", "o", "r"), want: true},
		{name: "missing token", client: NewClient("", "o", "r")},
		{name: "missing owner", client: NewClient("t", "", "r")},
		{name: "missing repo", client: NewClient("t", "o", "")},
		{name: "nil", client: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.IsConfigured(); got != tt.want {
				t.Fatalf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListAllFollowsPaginationAndSkipsPullRequests(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/repos/acme/widgets/issues" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("state") != "all" {
			t.Errorf("state = %q, want all", r.URL.Query().Get("state"))
		}

		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/issues?state=all&page=2>; rel="next"`, server.URL))
			_ = json.NewEncoder(w).Encode([]Issue{
				{ID: 11, Number: 1, Title: "First", State: "open"},
				{ID: 12, Number: 2, Title: "A pull request", State: "open", PullRequest: &PullRef{URL: "x"}},
			})
		case "2":
			_ = json.NewEncoder(w).Encode([]Issue{{ID: 13, Number: 3, Title: "Third", State: "closed"}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	issues, err := newTestClient(server).ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(issues) != 2 || issues[0].Number != 1 || issues[1].Number != 3 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestListAllRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]Issue{{ID: 1, Number: 1, Title: "ok", State: "open"}})
	}))
	defer server.Close()

	issues, err := newTestClient(server).ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestListAllDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server).ListAll(context.Background())
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("ListAll() error = %v, want ErrRemoteUnavailable", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected APIError 401, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestListAllGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := newTestClient(server).ListAll(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("ListAll() error = %v, want ErrRemoteUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", MaxRetries+1, got)
	}
}

func TestCreateSendsAuthorTrailerAndIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/widgets/issues" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["title"] != "Bug" {
			t.Errorf("title = %q", body["title"])
		}
		if !strings.HasSuffix(body["body"], "_Created by alice via issue tracker_") {
			t.Errorf("body = %q, want author trailer", body["body"])
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server).Create(context.Background(), "Bug", "x", "alice")
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("Create() error = %v, want ErrRemoteUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("write was attempted %d times, want 1", got)
	}
}

func TestCreateReturnsRemoteIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Issue{ID: 987, Number: 42, Title: "Bug", State: "open", HTMLURL: "https://github.com/acme/widgets/issues/42"})
	}))
	defer server.Close()

	issue, err := newTestClient(server).Create(context.Background(), "Bug", "", "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if issue.Number != 42 || issue.ID != 987 {
		t.Fatalf("unexpected issue: %+v", issue)
	}
}

func TestSetStatusAndAddComment(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests = append(requests, r.Method+" "+r.URL.Path+" "+body["state"]+body["body"])
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	if err := client.SetStatus(context.Background(), 7, "closed"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := client.AddComment(context.Background(), 7, "bob", "looks good"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	want := []string{
		"PATCH /repos/acme/widgets/issues/7 closed",
		"POST /repos/acme/widgets/issues/7/comments **bob**: looks good",
	}
	if len(requests) != len(want) {
		t.Fatalf("requests = %v", requests)
	}
	for i := range want {
		if requests[i] != want[i] {
			t.Fatalf("request %d = %q, want %q", i, requests[i], want[i])
		}
	}
}

func TestListComments(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/issues/7/comments" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Comment{
			{ID: 1, Body: "**bob**: looks good", User: &User{Login: "tracker-bot"}, CreatedAt: &created},
			{ID: 2, Body: "plain", User: &User{Login: "carol"}, CreatedAt: &created},
		})
	}))
	defer server.Close()

	remote, err := newTestClient(server).ListComments(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	comments := ToComments(remote)
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].Author != "bob" || comments[0].Text != "looks good" {
		t.Fatalf("unexpected first comment: %+v", comments[0])
	}
	if comments[1].Author != "carol" || comments[1].Text != "plain" || !comments[1].Timestamp.Equal(created) {
		t.Fatalf("unexpected second comment: %+v", comments[1])
	}
}

func TestUnconfiguredClientMakesNoCalls(t *testing.T) {
	client := NewClient("", "acme", "widgets")
	ctx := context.Background()

	if _, err := client.ListAll(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListAll() error = %v, want ErrNotConfigured", err)
	}
	if _, err := client.Create(ctx, "t", "d", "a"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Create() error = %v, want ErrNotConfigured", err)
	}
	if err := client.SetStatus(ctx, 1, "closed"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SetStatus() error = %v, want ErrNotConfigured", err)
	}
	if err := client.AddComment(ctx, 1, "a", "t"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("AddComment() error = %v, want ErrNotConfigured", err)
	}
	if _, err := client.ListComments(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListComments() error = %v, want ErrNotConfigured", err)
	}
}
