package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

type Config struct {
	Addr       string
	CORSOrigin string
	DataDir    string
	// Snapshot persistence
	SnapshotBackend string
	DatabaseURL     string
	MigrationsDir   string
	RedisURL        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3ObjectKey     string
	S3UseSSL        bool
	// Audit log
	AuditEnabled bool
	AuditRepoDir string
	// GitHub (remote authority)
	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubAPIURL string
	// Reconciliation
	SyncInterval      time.Duration
	ResyncDelay       time.Duration
	OptimisticUpdates bool
	// Search
	MeiliURL       string
	MeiliMasterKey string
}

func Load() Config {
	dataDir := getenv("DATA_DIR", "./data")
	return Config{
		Addr:            getenv("API_ADDR", ":3000"),
		CORSOrigin:      getenv("CORS_ORIGIN", "*"),
		DataDir:         dataDir,
		SnapshotBackend: strings.ToLower(getenv("SNAPSHOT_BACKEND", BackendFile)),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		MigrationsDir:   getenv("MIGRATIONS_DIR", "./db/migrations"),
		RedisURL:        getenv("REDIS_URL", ""),
		S3Endpoint:      getenv("S3_ENDPOINT", ""),
		S3AccessKey:     getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getenv("S3_SECRET_KEY", ""),
		S3Bucket:        getenv("S3_BUCKET", "tracker"),
		S3ObjectKey:     getenv("S3_OBJECT_KEY", "snapshots/issues.json"),
		S3UseSSL:        getenvBool("S3_USE_SSL", false),
		AuditEnabled:    getenvBool("AUDIT_ENABLED", true),
		AuditRepoDir:    getenv("AUDIT_REPO_DIR", filepath.Join(dataDir, "audit")),
		// GitHub - empty by default, the tracker runs local-only if any is missing
		GitHubToken:       getenv("GITHUB_TOKEN", ""),
		GitHubOwner:       getenv("GITHUB_OWNER", ""),
		GitHubRepo:        getenv("GITHUB_REPO", ""),
		GitHubAPIURL:      getenv("GITHUB_API_URL", "https://api.github.com"),
		SyncInterval:      time.Duration(getenvInt("SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		ResyncDelay:       time.Duration(getenvInt("RESYNC_DELAY_MS", 2000)) * time.Millisecond,
		OptimisticUpdates: getenvBool("OPTIMISTIC_UPDATES", false),
		MeiliURL:          getenv("MEILI_URL", ""),
		MeiliMasterKey:    getenv("MEILI_MASTER_KEY", ""),
	}
}

// GitHubConfigured reports whether all remote credentials are present.
func (c Config) GitHubConfigured() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}

// Repository returns "owner/repo", or an empty string when unconfigured.
func (c Config) Repository() string {
	if c.GitHubOwner == "" || c.GitHubRepo == "" {
		return ""
	}
	return c.GitHubOwner + "/" + c.GitHubRepo
}

func (c Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "issues.json")
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
