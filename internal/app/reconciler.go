package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"tracker/api/internal/github"
	"tracker/api/internal/hub"
	"tracker/api/internal/store"
	"tracker/api/internal/util"
)

const resyncTimeout = time.Minute

type SyncResult struct {
	Synced  int  `json:"synced"`
	Skipped bool `json:"skipped,omitempty"`
}

// Reconciler replaces the mirror with the remote's full issue list. Pulls
// that overlap in time share one remote call.
type Reconciler struct {
	store    *store.SnapshotStore
	remote   RemoteClient
	audit    Auditor
	hub      Broadcaster
	search   Indexer
	interval time.Duration

	group     singleflight.Group
	debouncer *util.Debouncer
}

func NewReconciler(snapshots *store.SnapshotStore, remote RemoteClient, audit Auditor, broadcaster Broadcaster, indexer Indexer, interval, resyncDelay time.Duration) *Reconciler {
	r := &Reconciler{
		store:    snapshots,
		remote:   remote,
		audit:    audit,
		hub:      broadcaster,
		search:   indexer,
		interval: interval,
	}
	r.debouncer = util.NewDebouncer(resyncDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		if _, err := r.Resync(ctx); err != nil {
			log.Printf("reconcile: delayed resync failed: %v", err)
		}
	})
	return r
}

func (r *Reconciler) configured() bool {
	return r.remote != nil && r.remote.IsConfigured()
}

// ScheduleResync arms the delayed pull. Calls inside the delay window
// collapse into one pull.
func (r *Reconciler) ScheduleResync() {
	if !r.configured() {
		return
	}
	r.debouncer.Trigger()
}

func (r *Reconciler) Resync(ctx context.Context) (SyncResult, error) {
	if !r.configured() {
		return SyncResult{Skipped: true}, nil
	}

	ch := r.group.DoChan("resync", func() (any, error) {
		pullCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resyncTimeout)
		defer cancel()
		return r.resync(pullCtx)
	})
	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SyncResult{}, res.Err
		}
		return res.Val.(SyncResult), nil
	}
}

func (r *Reconciler) resync(ctx context.Context) (SyncResult, error) {
	remote, err := r.remote.ListAll(ctx)
	if err != nil {
		log.Printf("reconcile: pull failed, mirror unchanged: %v", err)
		return SyncResult{}, fmt.Errorf("resync: %w", err)
	}

	issues := github.ToIssues(remote)
	if err := r.store.ReplaceAll(ctx, issues); err != nil {
		log.Printf("reconcile: %v: %v", ErrPersistence, err)
	}
	r.audit.Record(fmt.Sprintf("Synced %d issues", len(issues)))

	all := r.store.All()
	r.search.ReindexAll(all)
	r.hub.Broadcast(hub.SyncUpdate(all))
	log.Printf("reconcile: synced %d issues", len(issues))
	return SyncResult{Synced: len(issues)}, nil
}

// Run pulls once immediately and then on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if !r.configured() {
		log.Printf("reconcile: remote not configured, periodic sync disabled")
		return
	}

	r.pull(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pull(ctx)
		}
	}
}

func (r *Reconciler) pull(ctx context.Context) {
	if _, err := r.Resync(ctx); err != nil && ctx.Err() == nil {
		log.Printf("reconcile: periodic resync failed: %v", err)
	}
}

// Stop cancels a pending delayed pull and waits for one in flight.
func (r *Reconciler) Stop() {
	r.debouncer.Stop()
}
