package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens a pooled connection through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresPersister keeps the snapshot in the single row of issue_snapshots.
type PostgresPersister struct {
	db *sql.DB
}

func NewPostgresPersister(db *sql.DB) *PostgresPersister {
	return &PostgresPersister{db: db}
}

func (p *PostgresPersister) Load(ctx context.Context) (Snapshot, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM issue_snapshots WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot row: %w", err)
	}
	return decodeSnapshot(payload)
}

func (p *PostgresPersister) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := encodeSnapshot(snapshot, false)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO issue_snapshots (id, payload, issue_count, updated_at)
		VALUES (1, $1::jsonb, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload, issue_count = EXCLUDED.issue_count, updated_at = EXCLUDED.updated_at
	`, string(payload), len(snapshot.Issues))
	if err != nil {
		return fmt.Errorf("save snapshot row: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
