package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"tracker/api/internal/config"
	"tracker/api/internal/gitrepo"
	"tracker/api/internal/github"
	"tracker/api/internal/hub"
	"tracker/api/internal/search"
	"tracker/api/internal/store"
)

type fakeRemote struct {
	configured     bool
	listAllFn      func(context.Context) ([]github.Issue, error)
	createFn       func(ctx context.Context, title, description, author string) (github.Issue, error)
	setStatusFn    func(ctx context.Context, number int, state string) error
	addCommentFn   func(ctx context.Context, number int, author, text string) error
	listCommentsFn func(ctx context.Context, number int) ([]github.Comment, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) IsConfigured() bool { return f.configured }

func (f *fakeRemote) ListAll(ctx context.Context) ([]github.Issue, error) {
	f.record("ListAll")
	if f.listAllFn != nil {
		return f.listAllFn(ctx)
	}
	return nil, nil
}

func (f *fakeRemote) Create(ctx context.Context, title, description, author string) (github.Issue, error) {
	f.record("Create")
	if f.createFn != nil {
		return f.createFn(ctx, title, description, author)
	}
	return github.Issue{}, errors.New("create not stubbed")
}

func (f *fakeRemote) SetStatus(ctx context.Context, number int, state string) error {
	f.record("SetStatus")
	if f.setStatusFn != nil {
		return f.setStatusFn(ctx, number, state)
	}
	return nil
}

func (f *fakeRemote) AddComment(ctx context.Context, number int, author, text string) error {
	f.record("AddComment")
	if f.addCommentFn != nil {
		return f.addCommentFn(ctx, number, author, text)
	}
	return nil
}

func (f *fakeRemote) ListComments(ctx context.Context, number int) ([]github.Comment, error) {
	f.record("ListComments")
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, number)
	}
	return nil, nil
}

type auditEntry struct {
	author  string
	summary string
}

type fakeAudit struct {
	mu        sync.Mutex
	entries   []auditEntry
	historyFn func(limit int) ([]gitrepo.CommitInfo, error)
}

func (f *fakeAudit) Record(summary string) { f.RecordAs("tracker", summary) }

func (f *fakeAudit) RecordAs(author, summary string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{author: author, summary: summary})
}

func (f *fakeAudit) History(limit int) ([]gitrepo.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(limit)
	}
	return nil, nil
}

func (f *fakeAudit) Summaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.summary)
	}
	return out
}

type sentEvent struct {
	to    string
	event hub.Event
}

type fakeHub struct {
	mu        sync.Mutex
	broadcast []hub.Event
	sent      []sentEvent
	handler   hub.MessageHandler
}

func (f *fakeHub) Broadcast(event hub.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, event)
}

func (f *fakeHub) SendTo(sub hub.Subscriber, event hub.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{to: sub.ID(), event: event})
}

func (f *fakeHub) SetHandler(handler hub.MessageHandler) { f.handler = handler }

func (f *fakeHub) Serve(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "websocket not available", http.StatusNotImplemented)
}

func (f *fakeHub) Broadcasts() []hub.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hub.Event(nil), f.broadcast...)
}

func (f *fakeHub) Sent() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEvent(nil), f.sent...)
}

type fakeIndexer struct {
	mu       sync.Mutex
	indexed  []int
	reindex  int
	searchFn func(search.Query) search.Response
}

func (f *fakeIndexer) IndexIssue(issue store.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, issue.ID)
}

func (f *fakeIndexer) ReindexAll([]store.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindex++
}

func (f *fakeIndexer) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

type fakeSubscriber struct {
	id string
}

func (f fakeSubscriber) ID() string        { return f.id }
func (f fakeSubscriber) Open() bool        { return true }
func (f fakeSubscriber) Send([]byte) error { return nil }

type fixture struct {
	cfg      config.Config
	store    *store.SnapshotStore
	snapPath string
	remote   *fakeRemote
	audit    *fakeAudit
	hub      *fakeHub
	search   *fakeIndexer
	service  *Service
}

func newFixture(t *testing.T, remote *fakeRemote) *fixture {
	t.Helper()
	if remote == nil {
		remote = &fakeRemote{}
	}
	path := filepath.Join(t.TempDir(), "issues.json")
	snapshots := store.NewSnapshotStore(store.NewFilePersister(path))
	if err := snapshots.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg := config.Config{
		SnapshotBackend: config.BackendFile,
		SyncInterval:    time.Hour,
		ResyncDelay:     time.Hour,
	}
	f := &fixture{
		cfg:      cfg,
		store:    snapshots,
		snapPath: path,
		remote:   remote,
		audit:    &fakeAudit{},
		hub:      &fakeHub{},
		search:   &fakeIndexer{},
	}
	f.service = New(cfg, snapshots, remote, f.audit, f.search, f.hub)
	t.Cleanup(f.service.Close)
	return f
}

type issueFrame struct {
	Type string      `json:"type"`
	Data store.Issue `json:"data"`
}

type issuesFrame struct {
	Type string        `json:"type"`
	Data []store.Issue `json:"data"`
}

func decodeFrame[T any](t *testing.T, event hub.Event) T {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode event %s: %v", raw, err)
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func remoteIssue(number int, title, state string) github.Issue {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return github.Issue{
		ID:        int64(1000 + number),
		Number:    number,
		Title:     title,
		State:     state,
		CreatedAt: timePtr(created),
		UpdatedAt: timePtr(created.Add(time.Hour)),
		User:      &github.User{Login: "octocat"},
		HTMLURL:   "https://github.com/acme/widgets/issues/" + strconv.Itoa(number),
	}
}
