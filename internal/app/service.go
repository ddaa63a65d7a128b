package app

import (
	"context"
	"net/http"

	"tracker/api/internal/config"
	"tracker/api/internal/hub"
	"tracker/api/internal/search"
	"tracker/api/internal/store"
)

const gitLogLimit = 30

// EventHub is the websocket fan-out the service publishes to.
type EventHub interface {
	Broadcaster
	SetHandler(handler hub.MessageHandler)
	Serve(w http.ResponseWriter, r *http.Request)
}

type Service struct {
	cfg         config.Config
	store       *store.SnapshotStore
	remote      RemoteClient
	audit       Auditor
	search      Indexer
	hub         EventHub
	coordinator *Coordinator
	reconciler  *Reconciler
}

func New(cfg config.Config, snapshots *store.SnapshotStore, remote RemoteClient, auditLog Auditor, indexer Indexer, events EventHub) *Service {
	reconciler := NewReconciler(snapshots, remote, auditLog, events, indexer, cfg.SyncInterval, cfg.ResyncDelay)
	coordinator := NewCoordinator(snapshots, remote, auditLog, events, indexer, reconciler, cfg.OptimisticUpdates)
	events.SetHandler(NewDispatcher(coordinator, events))

	return &Service{
		cfg:         cfg,
		store:       snapshots,
		remote:      remote,
		audit:       auditLog,
		search:      indexer,
		hub:         events,
		coordinator: coordinator,
		reconciler:  reconciler,
	}
}

// Run drives periodic reconciliation until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.reconciler.Run(ctx)
}

// Close cancels the pending delayed pull.
func (s *Service) Close() {
	s.reconciler.Stop()
}

func (s *Service) RemoteConfigured() bool {
	return s.remote != nil && s.remote.IsConfigured()
}

func (s *Service) Issues() []store.Issue {
	return s.store.All()
}

func (s *Service) CreateIssue(ctx context.Context, input CreateIssueInput) (CreateResult, error) {
	return s.coordinator.CreateIssue(ctx, input)
}

func (s *Service) FetchComments(ctx context.Context, issueID int) ([]store.Comment, error) {
	return s.coordinator.FetchComments(ctx, issueID)
}

func (s *Service) Resync(ctx context.Context) (SyncResult, error) {
	return s.reconciler.Resync(ctx)
}

func (s *Service) Config() map[string]any {
	return map[string]any{
		"githubConfigured":    s.RemoteConfigured(),
		"repository":          s.cfg.Repository(),
		"syncIntervalSeconds": int(s.cfg.SyncInterval.Seconds()),
		"resyncDelayMs":       s.cfg.ResyncDelay.Milliseconds(),
		"snapshotBackend":     s.cfg.SnapshotBackend,
		"optimisticUpdates":   s.cfg.OptimisticUpdates,
	}
}

// GitLog returns the most recent audit entries as "<hash> <subject>".
func (s *Service) GitLog() ([]string, error) {
	history, err := s.audit.History(gitLogLimit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(history))
	for _, commit := range history {
		lines = append(lines, commit.Line())
	}
	return lines, nil
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
