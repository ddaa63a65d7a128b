package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrNoSnapshot is returned by a Persister that has never been written.
	ErrNoSnapshot = errors.New("no snapshot persisted")
	// ErrCorruptSnapshot marks a stored copy that is empty or cannot be decoded.
	ErrCorruptSnapshot = errors.New("snapshot corrupt")
)

// Persister is the durable copy of the mirror.
type Persister interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Pinger is implemented by persisters backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotStore holds the current mirror in memory. Every mutating call
// persists while still holding the write lock, so a caller that emits an
// event after the call returns never announces state that a restart would
// lose.
type SnapshotStore struct {
	mu        sync.RWMutex
	issues    map[int]Issue
	persister Persister
}

func NewSnapshotStore(persister Persister) *SnapshotStore {
	return &SnapshotStore{
		issues:    make(map[int]Issue),
		persister: persister,
	}
}

// Load reads the durable copy. A missing, empty or corrupt copy resets the
// mirror to empty and writes that default back. Any other read failure is
// returned and the durable copy is left alone.
func (s *SnapshotStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.persister.Load(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		switch {
		case errors.Is(err, ErrNoSnapshot):
			log.Printf("store: no snapshot found, initializing empty mirror")
		case errors.Is(err, ErrCorruptSnapshot):
			log.Printf("store: snapshot corrupt, reinitializing: %v", err)
		default:
			return fmt.Errorf("load snapshot: %w", err)
		}
		s.issues = make(map[int]Issue)
		if err := s.persistLocked(ctx); err != nil {
			log.Printf("store: persist default snapshot: %v", err)
		}
		return nil
	}

	s.issues = make(map[int]Issue, len(snapshot.Issues))
	for _, issue := range NewSnapshot(snapshot.Issues).Issues {
		s.issues[issue.ID] = issue
	}
	log.Printf("store: loaded %d issues", len(s.issues))
	return nil
}

// Persist writes the current mirror to the durable copy.
func (s *SnapshotStore) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(ctx)
}

func (s *SnapshotStore) persistLocked(ctx context.Context) error {
	if err := s.persister.Save(ctx, Snapshot{Issues: sortedIssues(s.issues)}); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// ReplaceAll swaps the entire mirror and persists it.
func (s *SnapshotStore) ReplaceAll(ctx context.Context, issues []Issue) error {
	next := make(map[int]Issue, len(issues))
	for _, issue := range NewSnapshot(issues).Issues {
		next[issue.ID] = issue
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = next
	return s.persistLocked(ctx)
}

// UpsertLocal inserts or overwrites one issue and persists.
func (s *SnapshotStore) UpsertLocal(ctx context.Context, issue Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.ID] = issue.normalize()
	return s.persistLocked(ctx)
}

// CreateLocal assigns the next local id, stores the issue built for it and
// persists, all under one lock. The returned issue is stored even when
// persisting fails; the error is reported so the caller can log it.
func (s *SnapshotStore) CreateLocal(ctx context.Context, build func(id int) Issue) (Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue := build(s.nextIDLocked()).normalize()
	s.issues[issue.ID] = issue
	return issue.clone(), s.persistLocked(ctx)
}

// Mutate applies fn to one issue and persists. The bool is false when the
// issue is not in the mirror.
func (s *SnapshotStore) Mutate(ctx context.Context, id int, fn func(*Issue)) (Issue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return Issue{}, false, nil
	}
	issue = issue.clone()
	fn(&issue)
	issue = issue.normalize()
	s.issues[id] = issue
	return issue.clone(), true, s.persistLocked(ctx)
}

func (s *SnapshotStore) Get(id int) (Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[id]
	if !ok {
		return Issue{}, false
	}
	return issue.clone(), true
}

// All returns a copy of the mirror ordered by id.
func (s *SnapshotStore) All() []Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIssues(s.issues)
}

func (s *SnapshotStore) Snapshot() Snapshot {
	return Snapshot{Issues: s.All()}
}

func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issues)
}

// NextLocalID is max(id)+1, or 1 for an empty mirror.
func (s *SnapshotStore) NextLocalID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIDLocked()
}

func (s *SnapshotStore) nextIDLocked() int {
	maxID := 0
	for id := range s.issues {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// Ping checks the persister when it is backed by a network service.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if pinger, ok := s.persister.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
