package search

import (
	"strings"

	"grantdesk/api/internal/entitystore"
)

// SheetScan implements Searcher by scanning the in-memory grant
// collection. It is the fallback when Meilisearch is absent or down; the
// collection mirrors the Grants sheet, so results stay consistent with
// the spreadsheet without another round trip.
type SheetScan struct {
	grants func() []entitystore.Grant
}

// NewSheetScan builds the fallback searcher over a grant provider,
// typically GrantStore.Items.
func NewSheetScan(grants func() []entitystore.Grant) *SheetScan {
	return &SheetScan{grants: grants}
}

// Healthy always reports true; the scan has no external dependency.
func (s *SheetScan) Healthy() bool { return true }

// Search matches the query text case-insensitively against grant ID,
// title, and organization.
func (s *SheetScan) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	var matched []Result
	for _, g := range s.grants() {
		if q.FilterStatus != "" && g.Status != q.FilterStatus {
			continue
		}
		if needle != "" && !grantMatches(g, needle) {
			continue
		}
		matched = append(matched, Result{
			ID:           g.GrantID,
			Title:        g.Title,
			Snippet:      g.Organization,
			Organization: g.Organization,
			Status:       g.Status,
		})
	}

	total := len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func grantMatches(g entitystore.Grant, needle string) bool {
	for _, field := range []string{g.GrantID, g.Title, g.Organization} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
