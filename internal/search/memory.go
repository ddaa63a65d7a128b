package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"tracker/api/internal/store"
)

// IssueSource is the live mirror searched by Memory.
type IssueSource interface {
	All() []store.Issue
}

// Memory searches the mirror directly with case-insensitive substring
// matching. Title hits rank above description hits, which rank above
// comment hits.
type Memory struct {
	source IssueSource
}

func NewMemory(source IssueSource) *Memory {
	return &Memory{source: source}
}

func (m *Memory) Healthy() bool {
	return true
}

func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}

	type scored struct {
		result Result
		rank   int
	}
	var hits []scored
	for _, issue := range m.source.All() {
		if q.Status != "" && !strings.EqualFold(string(issue.Status), q.Status) {
			continue
		}
		rank, snippet, ok := matchIssue(issue, needle)
		if !ok {
			continue
		}
		hits = append(hits, scored{
			rank: rank,
			result: Result{
				ID:        issue.ID,
				Title:     issue.Title,
				Snippet:   snippet,
				Status:    string(issue.Status),
				CreatedBy: issue.CreatedBy,
				RemoteURL: issue.RemoteURL,
			},
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].result.ID < hits[j].result.ID
	})

	total := len(hits)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + normalizeLimit(q.Limit)
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-offset)
	for _, hit := range hits[offset:end] {
		results = append(results, hit.result)
	}
	return results, total, nil
}

func matchIssue(issue store.Issue, needle string) (int, string, bool) {
	if strings.Contains(strings.ToLower(issue.Title), needle) {
		return 0, snippet(issue.Description, needle), true
	}
	if strings.Contains(strings.ToLower(issue.Description), needle) {
		return 1, snippet(issue.Description, needle), true
	}
	for _, comment := range issue.Comments {
		if strings.Contains(strings.ToLower(comment.Text), needle) {
			return 2, snippet(comment.Text, needle), true
		}
	}
	return 0, "", false
}

const snippetRadius = 60

// snippet cuts text around the first occurrence of needle. Offsets are
// counted in runes so the cut never splits a multi-byte character.
func snippet(text, needle string) string {
	runes := []rune(text)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	idx := 0
	if at := strings.Index(string(lowered), needle); at >= 0 {
		idx = utf8.RuneCountInString(string(lowered)[:at])
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + utf8.RuneCountInString(needle) + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
