package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tracker/api/internal/gitrepo"
	"tracker/api/internal/github"
	"tracker/api/internal/hub"
	"tracker/api/internal/search"
	"tracker/api/internal/store"
)

const anonymousAuthor = "anonymous"

// RemoteClient is the subset of the GitHub client used by the coordinator
// and the reconciler.
type RemoteClient interface {
	IsConfigured() bool
	ListAll(ctx context.Context) ([]github.Issue, error)
	Create(ctx context.Context, title, description, author string) (github.Issue, error)
	SetStatus(ctx context.Context, number int, state string) error
	AddComment(ctx context.Context, number int, author, text string) error
	ListComments(ctx context.Context, number int) ([]github.Comment, error)
}

type Auditor interface {
	Record(summary string)
	RecordAs(author, summary string)
	History(limit int) ([]gitrepo.CommitInfo, error)
}

type Broadcaster interface {
	Broadcast(event hub.Event)
	SendTo(sub hub.Subscriber, event hub.Event)
}

type Indexer interface {
	IndexIssue(issue store.Issue)
	ReindexAll(issues []store.Issue)
	Search(q search.Query) search.Response
}

// ResyncScheduler queues a delayed reconciliation.
type ResyncScheduler interface {
	ScheduleResync()
}

type CreateIssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

type CreateResult struct {
	Issue  store.Issue `json:"issue"`
	Remote bool        `json:"remote"`
}

type UpdateStatusInput struct {
	IssueID int
	Status  string
	User    string
}

type CommentInput struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Coordinator applies client intents: it forwards them to the remote when
// configured and falls back to the local mirror for creation.
type Coordinator struct {
	store      *store.SnapshotStore
	remote     RemoteClient
	audit      Auditor
	hub        Broadcaster
	search     Indexer
	resync     ResyncScheduler
	optimistic bool
	now        func() time.Time
}

func NewCoordinator(snapshots *store.SnapshotStore, remote RemoteClient, audit Auditor, broadcaster Broadcaster, indexer Indexer, resync ResyncScheduler, optimistic bool) *Coordinator {
	return &Coordinator{
		store:      snapshots,
		remote:     remote,
		audit:      audit,
		hub:        broadcaster,
		search:     indexer,
		resync:     resync,
		optimistic: optimistic,
		now:        time.Now,
	}
}

func (c *Coordinator) remoteConfigured() bool {
	return c.remote != nil && c.remote.IsConfigured()
}

func (c *Coordinator) CreateIssue(ctx context.Context, input CreateIssueInput) (CreateResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return CreateResult{}, malformed("title is required")
	}
	author := strings.TrimSpace(input.CreatedBy)
	if author == "" {
		author = anonymousAuthor
	}

	if c.remoteConfigured() {
		created, err := c.remote.Create(ctx, title, input.Description, author)
		if err == nil {
			c.resync.ScheduleResync()
			c.audit.RecordAs(author, fmt.Sprintf("Issue #%d created on GitHub: %s by %s", created.Number, title, author))
			return CreateResult{Issue: github.ToIssue(created), Remote: true}, nil
		}
		log.Printf("coordinator: remote create failed, creating locally: %v", err)
	}

	issue, err := c.store.CreateLocal(ctx, func(id int) store.Issue {
		return store.Issue{
			ID:          id,
			Title:       title,
			Description: input.Description,
			Status:      store.StatusOpen,
			CreatedBy:   author,
			CreatedAt:   c.now().UTC(),
			Comments:    []store.Comment{},
		}
	})
	if err != nil {
		log.Printf("coordinator: %v: %v", ErrPersistence, err)
	}

	c.audit.RecordAs(author, fmt.Sprintf("Issue #%d created: \"%s\" by %s", issue.ID, title, author))
	c.hub.Broadcast(hub.IssueCreated(issue))
	c.search.IndexIssue(issue)
	return CreateResult{Issue: issue}, nil
}

func (c *Coordinator) UpdateStatus(ctx context.Context, input UpdateStatusInput) error {
	if input.IssueID <= 0 {
		return malformed("issueId is required")
	}
	status, err := store.ParseStatus(input.Status)
	if err != nil {
		return malformed(err.Error())
	}
	user := strings.TrimSpace(input.User)
	if user == "" {
		user = anonymousAuthor
	}

	if !c.remoteConfigured() {
		c.audit.RecordAs(user, fmt.Sprintf("Issue #%d status change to %s by %s ignored: remote not configured", input.IssueID, status, user))
		return nil
	}

	err = c.remote.SetStatus(ctx, input.IssueID, status.RemoteState())
	c.resync.ScheduleResync()
	if err != nil {
		return fmt.Errorf("update status of issue #%d: %w", input.IssueID, err)
	}

	c.audit.RecordAs(user, fmt.Sprintf("Issue #%d status changed to %s by %s", input.IssueID, status, user))
	if c.optimistic {
		c.patch(ctx, input.IssueID, func(issue *store.Issue) {
			issue.Status = status
		})
	}
	return nil
}

func (c *Coordinator) AddComment(ctx context.Context, issueID int, input CommentInput) error {
	if issueID <= 0 {
		return malformed("issueId is required")
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return malformed("comment text is required")
	}
	user := strings.TrimSpace(input.User)
	if user == "" {
		user = anonymousAuthor
	}

	if !c.remoteConfigured() {
		c.audit.RecordAs(user, fmt.Sprintf("Comment on Issue #%d by %s ignored: remote not configured", issueID, user))
		return nil
	}

	err := c.remote.AddComment(ctx, issueID, user, text)
	c.resync.ScheduleResync()
	if err != nil {
		return fmt.Errorf("add comment to issue #%d: %w", issueID, err)
	}

	c.audit.RecordAs(user, fmt.Sprintf("Comment added to Issue #%d by %s", issueID, user))
	if c.optimistic {
		at := c.now().UTC()
		c.patch(ctx, issueID, func(issue *store.Issue) {
			issue.Comments = append(issue.Comments, store.Comment{Author: user, Text: text, Timestamp: at})
		})
	}
	return nil
}

// patch applies an optimistic change to the mirror ahead of the next
// reconciliation and announces it.
func (c *Coordinator) patch(ctx context.Context, id int, fn func(*store.Issue)) {
	now := c.now().UTC()
	issue, ok, err := c.store.Mutate(ctx, id, func(issue *store.Issue) {
		fn(issue)
		issue.Touch(now)
	})
	if !ok {
		return
	}
	if err != nil {
		log.Printf("coordinator: %v: %v", ErrPersistence, err)
	}
	c.hub.Broadcast(hub.IssueUpdated(issue))
	c.search.IndexIssue(issue)
}

// FetchComments reads comments through to the remote. The result is not
// stored; on any remote problem the mirror's own comments are returned.
func (c *Coordinator) FetchComments(ctx context.Context, issueID int) ([]store.Comment, error) {
	if issueID <= 0 {
		return nil, malformed("issueId is required")
	}
	if c.remoteConfigured() {
		remote, err := c.remote.ListComments(ctx, issueID)
		if err == nil {
			return github.ToComments(remote), nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.Printf("coordinator: fetch comments for issue #%d, using mirror: %v", issueID, err)
	}

	issue, ok := c.store.Get(issueID)
	if !ok || issue.Comments == nil {
		return []store.Comment{}, nil
	}
	return issue.Comments, nil
}
