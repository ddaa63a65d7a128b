package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tracker/api/internal/app"
	"tracker/api/internal/audit"
	"tracker/api/internal/config"
	"tracker/api/internal/github"
	"tracker/api/internal/gitrepo"
	"tracker/api/internal/hub"
	"tracker/api/internal/search"
	"tracker/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	persister, db, closePersister := openPersister(ctx, cfg)
	defer closePersister()

	snapshots := store.NewSnapshotStore(persister)
	if err := snapshots.Load(ctx); err != nil {
		log.Fatalf("snapshot load failed: %v", err)
	}
	log.Printf("Loaded %d issues from %s snapshot", snapshots.Len(), cfg.SnapshotBackend)

	var committer audit.Committer
	if cfg.AuditEnabled {
		repo := gitrepo.New(cfg.AuditRepoDir)
		if err := repo.EnsureRepo(); err != nil {
			log.Printf("WARNING: audit log disabled, repository init failed: %v", err)
		} else {
			committer = repo
		}
	}
	auditLog := audit.New(committer, snapshots)
	defer auditLog.Close()

	remote := github.NewClient(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo).WithBaseURL(cfg.GitHubAPIURL)
	if cfg.GitHubConfigured() {
		log.Printf("GitHub sync enabled for %s every %s", cfg.Repository(), cfg.SyncInterval)
	} else {
		log.Printf("GitHub not configured, running local-only")
	}

	var fallback search.Searcher = search.NewMemory(snapshots)
	if db != nil {
		fallback = search.NewPgFTS(db)
	}
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, fallback)
	defer searchService.Close()
	searchService.ReindexAll(snapshots.All())

	events := hub.New(snapshots, remote.IsConfigured())
	events.SetCheckOrigin(hub.OriginChecker(cfg.CORSOrigin))
	defer events.Close()

	service := app.New(cfg, snapshots, remote, auditLog, searchService, events)
	defer service.Close()
	go service.Run(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tracker API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openPersister selects the snapshot backend. Failing to reach an
// explicitly selected network backend is fatal at startup.
func openPersister(ctx context.Context, cfg config.Config) (store.Persister, *sql.DB, func()) {
	switch cfg.SnapshotBackend {
	case config.BackendPostgres:
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		log.Printf("Using PostgreSQL for snapshot storage")
		return store.NewPostgresPersister(db), db, func() { _ = db.Close() }

	case config.BackendRedis:
		persister, err := store.NewRedisPersister(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		log.Printf("Using Redis for snapshot storage")
		return persister, nil, func() { _ = persister.Close() }

	case config.BackendS3:
		persister, err := store.NewObjectPersister(ctx, store.ObjectConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Key:       cfg.S3ObjectKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		log.Printf("Using object storage bucket %s for snapshot storage", cfg.S3Bucket)
		return persister, nil, func() {}

	default:
		if cfg.SnapshotBackend != config.BackendFile {
			log.Printf("WARNING: unknown SNAPSHOT_BACKEND %q, using file", cfg.SnapshotBackend)
		}
		log.Printf("Using %s for snapshot storage", cfg.SnapshotPath())
		return store.NewFilePersister(cfg.SnapshotPath()), nil, func() {}
	}
}
