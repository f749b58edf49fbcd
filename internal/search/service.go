package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// scanning the grant collection.
type Service struct {
	meili *Meili
	scan  *SheetScan
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, scan *SheetScan) *Service {
	return &Service{meili: meili, scan: scan}
}

// Search tries Meilisearch if healthy, otherwise falls back to the scan.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to sheet scan: %v", err)
	}

	results, total, err := s.scan.Search(q)
	if err != nil {
		log.Printf("search: sheet scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexGrant indexes a grant (fire-and-forget to Meilisearch).
func (s *Service) IndexGrant(rec GrantRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexGrant(rec); err != nil {
			log.Printf("search: index grant %s: %v", rec.ID, err)
		}
	}()
}

// DeleteGrant removes a grant from the search index (fire-and-forget).
func (s *Service) DeleteGrant(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteGrant(id); err != nil {
			log.Printf("search: delete grant %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the full grant collection into Meilisearch. Called
// after the initial sheet load when Meilisearch is healthy.
func (s *Service) ReindexAll(records []GrantRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexGrants(records); err != nil {
		log.Printf("search: reindex grants: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
