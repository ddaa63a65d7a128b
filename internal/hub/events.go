package hub

import (
	"encoding/json"

	"tracker/api/internal/store"
)

type EventType string

const (
	EventInitialData     EventType = "INITIAL_DATA"
	EventIssueCreated    EventType = "ISSUE_CREATED"
	EventIssueUpdated    EventType = "ISSUE_UPDATED"
	EventSyncUpdate      EventType = "SYNC_UPDATE"
	EventCommentsFetched EventType = "COMMENTS_FETCHED"
	EventError           EventType = "ERROR"
)

// Event is one outbound frame. Build it with the constructors below so the
// payload always matches its type.
type Event struct {
	Type EventType
	body any
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.body)
}

type issuesFrame struct {
	Type EventType     `json:"type"`
	Data []store.Issue `json:"data"`
}

type initialFrame struct {
	Type             EventType     `json:"type"`
	Data             []store.Issue `json:"data"`
	GitHubConfigured bool          `json:"githubConfigured"`
}

type issueFrame struct {
	Type EventType   `json:"type"`
	Data store.Issue `json:"data"`
}

type commentsFrame struct {
	Type     EventType       `json:"type"`
	IssueID  int             `json:"issueId"`
	Comments []store.Comment `json:"comments"`
}

type errorFrame struct {
	Type  EventType `json:"type"`
	Code  string    `json:"code"`
	Error string    `json:"error"`
}

func nonNilIssues(issues []store.Issue) []store.Issue {
	if issues == nil {
		return []store.Issue{}
	}
	return issues
}

func InitialData(issues []store.Issue, githubConfigured bool) Event {
	return Event{Type: EventInitialData, body: initialFrame{
		Type:             EventInitialData,
		Data:             nonNilIssues(issues),
		GitHubConfigured: githubConfigured,
	}}
}

func IssueCreated(issue store.Issue) Event {
	return Event{Type: EventIssueCreated, body: issueFrame{Type: EventIssueCreated, Data: issue}}
}

func IssueUpdated(issue store.Issue) Event {
	return Event{Type: EventIssueUpdated, body: issueFrame{Type: EventIssueUpdated, Data: issue}}
}

// SyncUpdate carries the whole mirror after a reconciliation.
func SyncUpdate(issues []store.Issue) Event {
	return Event{Type: EventSyncUpdate, body: issuesFrame{Type: EventSyncUpdate, Data: nonNilIssues(issues)}}
}

func CommentsFetched(issueID int, comments []store.Comment) Event {
	if comments == nil {
		comments = []store.Comment{}
	}
	return Event{Type: EventCommentsFetched, body: commentsFrame{
		Type:     EventCommentsFetched,
		IssueID:  issueID,
		Comments: comments,
	}}
}

func Error(code, message string) Event {
	return Event{Type: EventError, body: errorFrame{Type: EventError, Code: code, Error: message}}
}
