package store

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// ParseStatus accepts the wire spellings used by clients and by GitHub
// ("open", "Open", "CLOSED", ...).
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "open":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// RemoteState is the GitHub spelling of a status.
func (s Status) RemoteState() string {
	if s == StatusClosed {
		return "closed"
	}
	return "open"
}

type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Issue struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Comments    []Comment  `json:"comments"`
	RemoteID    string     `json:"remoteId,omitempty"`
	RemoteURL   string     `json:"remoteUrl,omitempty"`
}

// IsRemote reports whether the issue was mirrored from the remote authority.
func (i Issue) IsRemote() bool {
	return i.RemoteID != ""
}

// Touch sets UpdatedAt, never earlier than CreatedAt.
func (i *Issue) Touch(at time.Time) {
	if at.Before(i.CreatedAt) {
		at = i.CreatedAt
	}
	i.UpdatedAt = &at
}

func (i Issue) clone() Issue {
	out := i
	out.Comments = make([]Comment, len(i.Comments))
	copy(out.Comments, i.Comments)
	if i.UpdatedAt != nil {
		updated := *i.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

// normalize enforces the per-issue invariants of a snapshot.
func (i Issue) normalize() Issue {
	out := i.clone()
	if out.Status == "" {
		out.Status = StatusOpen
	}
	if out.UpdatedAt != nil && out.UpdatedAt.Before(out.CreatedAt) {
		created := out.CreatedAt
		out.UpdatedAt = &created
	}
	return out
}

// Snapshot is the persisted layout of the mirror.
type Snapshot struct {
	Issues []Issue `json:"issues"`
}

// NewSnapshot builds a snapshot with unique ids (last occurrence wins),
// ordered by id.
func NewSnapshot(issues []Issue) Snapshot {
	byID := make(map[int]Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue.normalize()
	}
	return Snapshot{Issues: sortedIssues(byID)}
}

func sortedIssues(byID map[int]Issue) []Issue {
	out := make([]Issue, 0, len(byID))
	for _, issue := range byID {
		out = append(out, issue.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
