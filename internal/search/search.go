package search

import (
	"strings"

	"tracker/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Status    string `json:"status"`
	CreatedBy string `json:"createdBy"`
	RemoteURL string `json:"remoteUrl,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Status string // empty = any status
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// IssueRecord is the data we index for an issue.
type IssueRecord struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
	Status      string `json:"status"`
	CreatedBy   string `json:"createdBy"`
	RemoteURL   string `json:"remoteUrl,omitempty"`
}

func RecordFromIssue(issue store.Issue) IssueRecord {
	comments := make([]string, 0, len(issue.Comments))
	for _, comment := range issue.Comments {
		comments = append(comments, comment.Text)
	}
	return IssueRecord{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Comments:    strings.Join(comments, "\n"),
		Status:      string(issue.Status),
		CreatedBy:   issue.CreatedBy,
		RemoteURL:   issue.RemoteURL,
	}
}

func RecordsFromIssues(issues []store.Issue) []IssueRecord {
	out := make([]IssueRecord, 0, len(issues))
	for _, issue := range issues {
		out = append(out, RecordFromIssue(issue))
	}
	return out
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
