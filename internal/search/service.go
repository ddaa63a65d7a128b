package search

import (
	"log"

	"tracker/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to a
// local searcher (PostgreSQL FTS or the in-memory mirror).
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexIssue indexes one issue (fire-and-forget to Meilisearch).
func (s *Service) IndexIssue(issue store.Issue) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromIssue(issue)
	go func() {
		if err := s.meili.IndexIssue(record); err != nil {
			log.Printf("search: index issue %d: %v", record.ID, err)
		}
	}()
}

// ReindexAll replaces the index content with issues. Called after every
// reconciliation and at startup.
func (s *Service) ReindexAll(issues []store.Issue) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.ReplaceIssues(RecordsFromIssues(issues)); err != nil {
		log.Printf("search: reindex issues: %v", err)
	}
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
