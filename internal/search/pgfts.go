package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// issueRows expands the persisted snapshot row into one row per issue.
const issueRows = `
	SELECT (elem->>'id')::int AS id,
		coalesce(elem->>'title', '') AS title,
		coalesce(elem->>'description', '') AS description,
		coalesce(elem->>'status', '') AS status,
		coalesce(elem->>'createdBy', '') AS created_by,
		coalesce(elem->>'remoteUrl', '') AS remote_url,
		to_tsvector('english', coalesce(elem->>'title', '') || ' ' || coalesce(elem->>'description', '')) AS fts
	FROM issue_snapshots s, jsonb_array_elements(s.payload->'issues') AS elem
	WHERE s.id = 1`

// PgFTS implements Searcher with PostgreSQL full-text search over the
// snapshot stored by the postgres backend.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; the postgres backend is required at startup.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks issues with plainto_tsquery and ts_rank, with ts_headline
// for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	where := "i.fts @@ " + tsQuery
	if q.Status != "" {
		where += " AND lower(i.status) = lower($2)"
		args = append(args, q.Status)
	}

	countSQL := fmt.Sprintf(`WITH i AS (%s) SELECT count(*) FROM i WHERE %s`, issueRows, where)
	dataSQL := fmt.Sprintf(`WITH i AS (%s)
		SELECT i.id, i.title,
			ts_headline('english', i.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			i.status, i.created_by, i.remote_url
		FROM i
		WHERE %s
		ORDER BY ts_rank(i.fts, %s) DESC, i.id
		LIMIT %d OFFSET %d`, issueRows, tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Status, &r.CreatedBy, &r.RemoteURL); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
