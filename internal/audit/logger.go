package audit

import (
	"errors"
	"log"
	"sync"

	"tracker/api/internal/gitrepo"
	"tracker/api/internal/store"
)

const (
	queueSize     = 256
	defaultAuthor = "tracker"
)

// Committer records snapshots with a message.
type Committer interface {
	CommitSnapshot(snapshot store.Snapshot, author, message string) (gitrepo.CommitInfo, error)
	History(limit int) ([]gitrepo.CommitInfo, error)
}

// SnapshotSource supplies the state recorded alongside each summary.
type SnapshotSource interface {
	Snapshot() store.Snapshot
}

type entry struct {
	author   string
	summary  string
	snapshot store.Snapshot
}

// Logger is a fire-and-forget audit trail. Entries are committed in order
// by a single worker; callers never wait on it and never see its errors.
type Logger struct {
	repo   Committer
	source SnapshotSource

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}
}

// New starts the worker. A nil repo gives a logger that only writes the
// summaries to the process log.
func New(repo Committer, source SnapshotSource) *Logger {
	l := &Logger{
		repo:   repo,
		source: source,
		queue:  make(chan entry, queueSize),
		done:   make(chan struct{}),
	}
	if repo == nil {
		close(l.done)
		return l
	}
	go l.run()
	return l
}

func (l *Logger) Enabled() bool {
	return l != nil && l.repo != nil
}

// Record audits summary on behalf of the service itself.
func (l *Logger) Record(summary string) {
	l.RecordAs(defaultAuthor, summary)
}

// RecordAs audits summary with author as the commit author. The snapshot
// is captured now, so the commit reflects the state the summary describes.
func (l *Logger) RecordAs(author, summary string) {
	if l == nil {
		return
	}
	if !l.Enabled() {
		log.Printf("audit: %s", summary)
		return
	}

	item := entry{author: author, summary: summary, snapshot: l.source.Snapshot()}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		log.Printf("audit: logger closed, dropping %q", summary)
		return
	}
	select {
	case l.queue <- item:
	default:
		log.Printf("audit: queue full, dropping %q", summary)
	}
}

// History returns the most recent audit commits, newest first.
func (l *Logger) History(limit int) ([]gitrepo.CommitInfo, error) {
	if !l.Enabled() {
		return []gitrepo.CommitInfo{}, nil
	}
	return l.repo.History(limit)
}

// Close stops accepting entries and waits for the queued ones to commit.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		if l.repo != nil {
			close(l.queue)
		}
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for item := range l.queue {
		l.commit(item)
	}
}

func (l *Logger) commit(item entry) {
	info, err := l.repo.CommitSnapshot(item.snapshot, item.author, item.summary)
	switch {
	case errors.Is(err, gitrepo.ErrNothingChanged):
		log.Printf("audit: no changes to record for %q", item.summary)
	case err != nil:
		log.Printf("audit: commit %q failed: %v", item.summary, err)
	default:
		log.Printf("audit: %s", info.Line())
	}
}
