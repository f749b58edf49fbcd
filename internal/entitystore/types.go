// Package entitystore holds the typed client-side collections for each
// entity kind. Every mutation is optimistic: local state changes first,
// the gateway call follows, and failure rolls the collection back to its
// pre-mutation snapshot. The spreadsheet stays authoritative after any
// successful write.
package entitystore

import (
	"strconv"
	"strings"
)

// Sheet names, one tab per entity kind.
const (
	SheetGrants        = "Grants"
	SheetActionItems   = "ActionItems"
	SheetReports       = "Reports"
	SheetArtifacts     = "Artifacts"
	SheetStatusHistory = "StatusHistory"
	SheetConfig        = "Config"
)

// Action item statuses.
const (
	ItemOpen      = "Open"
	ItemDone      = "Done"
	ItemCancelled = "Cancelled"
)

// Report statuses.
const (
	ReportExpected = "Expected"
	ReportReceived = "Received"
	ReportOverdue  = "Overdue"
)

// Grant is one row of the Grants sheet. The four category percentages
// should sum to 100 when any is non-zero; that is a soft, UI-warned
// contract, not an enforced one. Status transitions are unconstrained.
type Grant struct {
	GrantID      string  `json:"grant_id"`
	Title        string  `json:"title"`
	Organization string  `json:"organization"`
	PctProgram   float64 `json:"pct_program"`
	PctOps       float64 `json:"pct_ops"`
	PctResearch  float64 `json:"pct_research"`
	PctCommunity float64 `json:"pct_community"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`

	// Extra holds unknown columns read from the sheet. It is dropped at
	// the gateway boundary on writes.
	Extra map[string]string `json:"-"`
}

// CategoriesUnbalanced reports the soft invariant violation: some
// percentage is set but the four do not sum to 100.
func (g Grant) CategoriesUnbalanced() bool {
	sum := g.PctProgram + g.PctOps + g.PctResearch + g.PctCommunity
	if sum == 0 {
		return false
	}
	return sum < 99.999 || sum > 100.001
}

func (g Grant) ToRow() map[string]string {
	return map[string]string{
		"grant_id":      g.GrantID,
		"title":         g.Title,
		"organization":  g.Organization,
		"pct_program":   formatFloat(g.PctProgram),
		"pct_ops":       formatFloat(g.PctOps),
		"pct_research":  formatFloat(g.PctResearch),
		"pct_community": formatFloat(g.PctCommunity),
		"status":        g.Status,
		"amount":        formatFloat(g.Amount),
		"created_at":    g.CreatedAt,
		"updated_at":    g.UpdatedAt,
	}
}

func grantFromRecord(rec map[string]string) Grant {
	g := Grant{
		GrantID:      take(rec, "grant_id"),
		Title:        take(rec, "title"),
		Organization: take(rec, "organization"),
		PctProgram:   parseFloat(take(rec, "pct_program")),
		PctOps:       parseFloat(take(rec, "pct_ops")),
		PctResearch:  parseFloat(take(rec, "pct_research")),
		PctCommunity: parseFloat(take(rec, "pct_community")),
		Status:       take(rec, "status"),
		Amount:       parseFloat(take(rec, "amount")),
		CreatedAt:    take(rec, "created_at"),
		UpdatedAt:    take(rec, "updated_at"),
	}
	g.Extra = rec
	return g
}

// ActionItem is one row of the ActionItems sheet. CompletedAt is set
// exactly when the status transitions to Done. SyncedCommentID identifies
// the source comment an item was imported from, preventing duplicate
// import.
type ActionItem struct {
	ItemID          string `json:"item_id"`
	GrantID         string `json:"grant_id"`
	Description     string `json:"description"`
	Assignee        string `json:"assignee"`
	DueDate         string `json:"due_date"`
	Status          string `json:"status"`
	CompletedAt     string `json:"completed_at"`
	SyncedCommentID string `json:"synced_comment_id"`

	Extra map[string]string `json:"-"`
}

func (a ActionItem) ToRow() map[string]string {
	return map[string]string{
		"item_id":           a.ItemID,
		"grant_id":          a.GrantID,
		"description":       a.Description,
		"assignee":          a.Assignee,
		"due_date":          a.DueDate,
		"status":            a.Status,
		"completed_at":      a.CompletedAt,
		"synced_comment_id": a.SyncedCommentID,
	}
}

func actionItemFromRecord(rec map[string]string) ActionItem {
	a := ActionItem{
		ItemID:          take(rec, "item_id"),
		GrantID:         take(rec, "grant_id"),
		Description:     take(rec, "description"),
		Assignee:        take(rec, "assignee"),
		DueDate:         take(rec, "due_date"),
		Status:          take(rec, "status"),
		CompletedAt:     take(rec, "completed_at"),
		SyncedCommentID: take(rec, "synced_comment_id"),
	}
	a.Extra = rec
	return a
}

// Report is one row of the Reports sheet. ReceivedDate is set exactly
// when the status becomes Received.
type Report struct {
	ReportID     string `json:"report_id"`
	GrantID      string `json:"grant_id"`
	Period       string `json:"period"`
	ReportType   string `json:"report_type"`
	Status       string `json:"status"`
	DueDate      string `json:"due_date"`
	ReceivedDate string `json:"received_date"`

	Extra map[string]string `json:"-"`
}

func (r Report) ToRow() map[string]string {
	return map[string]string{
		"report_id":     r.ReportID,
		"grant_id":      r.GrantID,
		"period":        r.Period,
		"report_type":   r.ReportType,
		"status":        r.Status,
		"due_date":      r.DueDate,
		"received_date": r.ReceivedDate,
	}
}

func reportFromRecord(rec map[string]string) Report {
	r := Report{
		ReportID:     take(rec, "report_id"),
		GrantID:      take(rec, "grant_id"),
		Period:       take(rec, "period"),
		ReportType:   take(rec, "report_type"),
		Status:       take(rec, "status"),
		DueDate:      take(rec, "due_date"),
		ReceivedDate: take(rec, "received_date"),
	}
	r.Extra = rec
	return r
}

// Artifact is one row of the Artifacts sheet: a link to a document or
// other material attached to a grant.
type Artifact struct {
	ArtifactID string `json:"artifact_id"`
	GrantID    string `json:"grant_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Date       string `json:"date"`
	AddedBy    string `json:"added_by"`

	Extra map[string]string `json:"-"`
}

func (a Artifact) ToRow() map[string]string {
	return map[string]string{
		"artifact_id": a.ArtifactID,
		"grant_id":    a.GrantID,
		"type":        a.Type,
		"title":       a.Title,
		"url":         a.URL,
		"date":        a.Date,
		"added_by":    a.AddedBy,
	}
}

func artifactFromRecord(rec map[string]string) Artifact {
	a := Artifact{
		ArtifactID: take(rec, "artifact_id"),
		GrantID:    take(rec, "grant_id"),
		Type:       take(rec, "type"),
		Title:      take(rec, "title"),
		URL:        take(rec, "url"),
		Date:       take(rec, "date"),
		AddedBy:    take(rec, "added_by"),
	}
	a.Extra = rec
	return a
}

// StatusHistoryEntry records one grant status transition. The sheet is
// append-only; the application never updates or deletes these rows.
type StatusHistoryEntry struct {
	HistoryID  string `json:"history_id"`
	GrantID    string `json:"grant_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ChangedBy  string `json:"changed_by"`
	ChangedAt  string `json:"changed_at"`
}

func (h StatusHistoryEntry) ToRow() map[string]string {
	return map[string]string{
		"history_id":  h.HistoryID,
		"grant_id":    h.GrantID,
		"from_status": h.FromStatus,
		"to_status":   h.ToStatus,
		"changed_by":  h.ChangedBy,
		"changed_at":  h.ChangedAt,
	}
}

func historyFromRecord(rec map[string]string) StatusHistoryEntry {
	return StatusHistoryEntry{
		HistoryID:  take(rec, "history_id"),
		GrantID:    take(rec, "grant_id"),
		FromStatus: take(rec, "from_status"),
		ToStatus:   take(rec, "to_status"),
		ChangedBy:  take(rec, "changed_by"),
		ChangedAt:  take(rec, "changed_at"),
	}
}

// ConfigEntry is one key/value row of the Config sheet. Values are often
// JSON-encoded (team allowlist, categories, folder IDs).
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (c ConfigEntry) ToRow() map[string]string {
	return map[string]string{"key": c.Key, "value": c.Value}
}

func configFromRecord(rec map[string]string) ConfigEntry {
	return ConfigEntry{Key: take(rec, "key"), Value: take(rec, "value")}
}

// take removes and returns a known column so the remainder of the record
// lands in Extra.
func take(rec map[string]string, key string) string {
	value := rec[key]
	delete(rec, key)
	return value
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
