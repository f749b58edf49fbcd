package entitystore

import (
	"context"
	"encoding/json"
	"time"

	"grantdesk/api/internal/sheetdb"
	"grantdesk/api/internal/util"
)

func loadRecords(ctx context.Context, gw Gateway, sheet string) ([]map[string]string, error) {
	table, err := gw.ReadSheet(ctx, sheet, "")
	if err != nil {
		return nil, err
	}
	records := make([]map[string]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec := make(map[string]string, len(table.Headers))
		for i, h := range table.Headers {
			if i < len(row) {
				rec[h] = sheetdb.CellString(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// GrantStore caches the Grants sheet.
type GrantStore struct {
	c   collection[Grant]
	gw  Gateway
	now func() time.Time
}

func NewGrantStore(gw Gateway) *GrantStore {
	return &GrantStore{gw: gw, now: time.Now}
}

func (s *GrantStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetGrants)
	if err != nil {
		return err
	}
	items := make([]Grant, 0, len(records))
	for _, rec := range records {
		items = append(items, grantFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *GrantStore) Items() []Grant { return s.c.Items() }
func (s *GrantStore) Err() error     { return s.c.Err() }

func (s *GrantStore) Get(grantID string) (Grant, bool) {
	for _, g := range s.c.Items() {
		if g.GrantID == grantID {
			return g, true
		}
	}
	return Grant{}, false
}

func (s *GrantStore) Create(ctx context.Context, g Grant) (Grant, error) {
	if g.GrantID == "" {
		g.GrantID = util.NewID("grant")
	}
	stamp := s.now().UTC().Format(time.RFC3339)
	if g.CreatedAt == "" {
		g.CreatedAt = stamp
	}
	g.UpdatedAt = stamp
	err := mutate(&s.c,
		func(items []Grant) []Grant { return append(items, g) },
		func() error { return s.gw.AppendRow(ctx, SheetGrants, g.ToRow()) })
	return g, err
}

// Update patches the named grant. The patch carries sheet column names;
// unknown keys are ignored locally and dropped before the remote write.
func (s *GrantStore) Update(ctx context.Context, grantID string, patch map[string]string) error {
	patch = knownKeys(patch, Grant{}.ToRow())
	patch["updated_at"] = s.now().UTC().Format(time.RFC3339)
	return mutate(&s.c,
		func(items []Grant) []Grant {
			for i, g := range items {
				if g.GrantID == grantID {
					items[i] = applyGrantPatch(g, patch)
				}
			}
			return items
		},
		func() error {
			return s.gw.UpdateRow(ctx, SheetGrants, "grant_id", grantID, patch)
		})
}

func (s *GrantStore) Delete(ctx context.Context, grantID string) error {
	return mutate(&s.c,
		func(items []Grant) []Grant {
			out := items[:0]
			for _, g := range items {
				if g.GrantID != grantID {
					out = append(out, g)
				}
			}
			return out
		},
		func() error {
			return s.gw.DeleteRow(ctx, SheetGrants, "grant_id", grantID)
		})
}

func applyGrantPatch(g Grant, patch map[string]string) Grant {
	for key, value := range patch {
		switch key {
		case "title":
			g.Title = value
		case "organization":
			g.Organization = value
		case "pct_program":
			g.PctProgram = parseFloat(value)
		case "pct_ops":
			g.PctOps = parseFloat(value)
		case "pct_research":
			g.PctResearch = parseFloat(value)
		case "pct_community":
			g.PctCommunity = parseFloat(value)
		case "status":
			g.Status = value
		case "amount":
			g.Amount = parseFloat(value)
		case "updated_at":
			g.UpdatedAt = value
		}
	}
	return g
}

// ActionItemStore caches the ActionItems sheet.
type ActionItemStore struct {
	c   collection[ActionItem]
	gw  Gateway
	now func() time.Time
}

func NewActionItemStore(gw Gateway) *ActionItemStore {
	return &ActionItemStore{gw: gw, now: time.Now}
}

func (s *ActionItemStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetActionItems)
	if err != nil {
		return err
	}
	items := make([]ActionItem, 0, len(records))
	for _, rec := range records {
		items = append(items, actionItemFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *ActionItemStore) Items() []ActionItem { return s.c.Items() }
func (s *ActionItemStore) Err() error          { return s.c.Err() }

func (s *ActionItemStore) Get(itemID string) (ActionItem, bool) {
	for _, a := range s.c.Items() {
		if a.ItemID == itemID {
			return a, true
		}
	}
	return ActionItem{}, false
}

func (s *ActionItemStore) Create(ctx context.Context, a ActionItem) (ActionItem, error) {
	if a.ItemID == "" {
		a.ItemID = util.NewID("item")
	}
	if a.Status == "" {
		a.Status = ItemOpen
	}
	err := mutate(&s.c,
		func(items []ActionItem) []ActionItem { return append(items, a) },
		func() error { return s.gw.AppendRow(ctx, SheetActionItems, a.ToRow()) })
	return a, err
}

// ImportComment creates an item sourced from a document comment. An item
// carrying the same synced_comment_id already in the collection means the
// comment was imported before; the call is then a no-op.
func (s *ActionItemStore) ImportComment(ctx context.Context, a ActionItem) (ActionItem, bool, error) {
	if a.SyncedCommentID != "" {
		for _, existing := range s.c.Items() {
			if existing.SyncedCommentID == a.SyncedCommentID {
				return existing, false, nil
			}
		}
	}
	created, err := s.Create(ctx, a)
	return created, err == nil, err
}

// Update patches the named item. Transitioning the status to Done stamps
// completed_at; transitioning away from Done clears it.
func (s *ActionItemStore) Update(ctx context.Context, itemID string, patch map[string]string) error {
	patch = knownKeys(patch, ActionItem{}.ToRow())
	if status, ok := patch["status"]; ok {
		if prev, found := s.Get(itemID); found {
			if status == ItemDone && prev.Status != ItemDone {
				patch["completed_at"] = s.now().UTC().Format(time.RFC3339)
			} else if status != ItemDone && prev.Status == ItemDone {
				patch["completed_at"] = ""
			}
		}
	}
	return mutate(&s.c,
		func(items []ActionItem) []ActionItem {
			for i, a := range items {
				if a.ItemID == itemID {
					items[i] = applyActionItemPatch(a, patch)
				}
			}
			return items
		},
		func() error {
			return s.gw.UpdateRow(ctx, SheetActionItems, "item_id", itemID, patch)
		})
}

func (s *ActionItemStore) Delete(ctx context.Context, itemID string) error {
	return mutate(&s.c,
		func(items []ActionItem) []ActionItem {
			out := items[:0]
			for _, a := range items {
				if a.ItemID != itemID {
					out = append(out, a)
				}
			}
			return out
		},
		func() error {
			return s.gw.DeleteRow(ctx, SheetActionItems, "item_id", itemID)
		})
}

func applyActionItemPatch(a ActionItem, patch map[string]string) ActionItem {
	for key, value := range patch {
		switch key {
		case "grant_id":
			a.GrantID = value
		case "description":
			a.Description = value
		case "assignee":
			a.Assignee = value
		case "due_date":
			a.DueDate = value
		case "status":
			a.Status = value
		case "completed_at":
			a.CompletedAt = value
		case "synced_comment_id":
			a.SyncedCommentID = value
		}
	}
	return a
}

// ReportStore caches the Reports sheet.
type ReportStore struct {
	c   collection[Report]
	gw  Gateway
	now func() time.Time
}

func NewReportStore(gw Gateway) *ReportStore {
	return &ReportStore{gw: gw, now: time.Now}
}

func (s *ReportStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetReports)
	if err != nil {
		return err
	}
	items := make([]Report, 0, len(records))
	for _, rec := range records {
		items = append(items, reportFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *ReportStore) Items() []Report { return s.c.Items() }
func (s *ReportStore) Err() error      { return s.c.Err() }

func (s *ReportStore) Get(reportID string) (Report, bool) {
	for _, r := range s.c.Items() {
		if r.ReportID == reportID {
			return r, true
		}
	}
	return Report{}, false
}

func (s *ReportStore) Create(ctx context.Context, r Report) (Report, error) {
	if r.ReportID == "" {
		r.ReportID = util.NewID("report")
	}
	if r.Status == "" {
		r.Status = ReportExpected
	}
	err := mutate(&s.c,
		func(items []Report) []Report { return append(items, r) },
		func() error { return s.gw.AppendRow(ctx, SheetReports, r.ToRow()) })
	return r, err
}

// Update patches the named report. Transitioning the status to Received
// stamps received_date.
func (s *ReportStore) Update(ctx context.Context, reportID string, patch map[string]string) error {
	patch = knownKeys(patch, Report{}.ToRow())
	if status, ok := patch["status"]; ok {
		if prev, found := s.Get(reportID); found {
			if status == ReportReceived && prev.Status != ReportReceived {
				patch["received_date"] = s.now().UTC().Format("2006-01-02")
			} else if status != ReportReceived && prev.Status == ReportReceived {
				patch["received_date"] = ""
			}
		}
	}
	return mutate(&s.c,
		func(items []Report) []Report {
			for i, r := range items {
				if r.ReportID == reportID {
					items[i] = applyReportPatch(r, patch)
				}
			}
			return items
		},
		func() error {
			return s.gw.UpdateRow(ctx, SheetReports, "report_id", reportID, patch)
		})
}

func (s *ReportStore) Delete(ctx context.Context, reportID string) error {
	return mutate(&s.c,
		func(items []Report) []Report {
			out := items[:0]
			for _, r := range items {
				if r.ReportID != reportID {
					out = append(out, r)
				}
			}
			return out
		},
		func() error {
			return s.gw.DeleteRow(ctx, SheetReports, "report_id", reportID)
		})
}

func applyReportPatch(r Report, patch map[string]string) Report {
	for key, value := range patch {
		switch key {
		case "grant_id":
			r.GrantID = value
		case "period":
			r.Period = value
		case "report_type":
			r.ReportType = value
		case "status":
			r.Status = value
		case "due_date":
			r.DueDate = value
		case "received_date":
			r.ReceivedDate = value
		}
	}
	return r
}

// ArtifactStore caches the Artifacts sheet.
type ArtifactStore struct {
	c  collection[Artifact]
	gw Gateway
}

func NewArtifactStore(gw Gateway) *ArtifactStore {
	return &ArtifactStore{gw: gw}
}

func (s *ArtifactStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetArtifacts)
	if err != nil {
		return err
	}
	items := make([]Artifact, 0, len(records))
	for _, rec := range records {
		items = append(items, artifactFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *ArtifactStore) Items() []Artifact { return s.c.Items() }
func (s *ArtifactStore) Err() error        { return s.c.Err() }

func (s *ArtifactStore) Create(ctx context.Context, a Artifact) (Artifact, error) {
	if a.ArtifactID == "" {
		a.ArtifactID = util.NewID("artifact")
	}
	err := mutate(&s.c,
		func(items []Artifact) []Artifact { return append(items, a) },
		func() error { return s.gw.AppendRow(ctx, SheetArtifacts, a.ToRow()) })
	return a, err
}

func (s *ArtifactStore) Delete(ctx context.Context, artifactID string) error {
	return mutate(&s.c,
		func(items []Artifact) []Artifact {
			out := items[:0]
			for _, a := range items {
				if a.ArtifactID != artifactID {
					out = append(out, a)
				}
			}
			return out
		},
		func() error {
			return s.gw.DeleteRow(ctx, SheetArtifacts, "artifact_id", artifactID)
		})
}

// StatusHistoryStore caches the StatusHistory sheet. The sheet is
// append-only, so the store exposes no update or delete.
type StatusHistoryStore struct {
	c   collection[StatusHistoryEntry]
	gw  Gateway
	now func() time.Time
}

func NewStatusHistoryStore(gw Gateway) *StatusHistoryStore {
	return &StatusHistoryStore{gw: gw, now: time.Now}
}

func (s *StatusHistoryStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetStatusHistory)
	if err != nil {
		return err
	}
	items := make([]StatusHistoryEntry, 0, len(records))
	for _, rec := range records {
		items = append(items, historyFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *StatusHistoryStore) Items() []StatusHistoryEntry { return s.c.Items() }
func (s *StatusHistoryStore) Err() error                  { return s.c.Err() }

func (s *StatusHistoryStore) Append(ctx context.Context, entry StatusHistoryEntry) (StatusHistoryEntry, error) {
	if entry.HistoryID == "" {
		entry.HistoryID = util.NewID("hist")
	}
	if entry.ChangedAt == "" {
		entry.ChangedAt = s.now().UTC().Format(time.RFC3339)
	}
	err := mutate(&s.c,
		func(items []StatusHistoryEntry) []StatusHistoryEntry { return append(items, entry) },
		func() error { return s.gw.AppendRow(ctx, SheetStatusHistory, entry.ToRow()) })
	return entry, err
}

// ForGrant returns the transitions recorded for one grant, in sheet order.
func (s *StatusHistoryStore) ForGrant(grantID string) []StatusHistoryEntry {
	var out []StatusHistoryEntry
	for _, e := range s.c.Items() {
		if e.GrantID == grantID {
			out = append(out, e)
		}
	}
	return out
}

// ConfigStore caches the Config sheet, a key/value table. Keys are
// unique: Set updates an existing row instead of appending a duplicate.
type ConfigStore struct {
	c  collection[ConfigEntry]
	gw Gateway
}

func NewConfigStore(gw Gateway) *ConfigStore {
	return &ConfigStore{gw: gw}
}

func (s *ConfigStore) Load(ctx context.Context) error {
	records, err := loadRecords(ctx, s.gw, SheetConfig)
	if err != nil {
		return err
	}
	items := make([]ConfigEntry, 0, len(records))
	for _, rec := range records {
		items = append(items, configFromRecord(rec))
	}
	s.c.replace(items)
	return nil
}

func (s *ConfigStore) Items() []ConfigEntry { return s.c.Items() }
func (s *ConfigStore) Err() error           { return s.c.Err() }

func (s *ConfigStore) Get(key string) (string, bool) {
	for _, e := range s.c.Items() {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	_, exists := s.Get(key)
	apply := func(items []ConfigEntry) []ConfigEntry {
		if exists {
			for i, e := range items {
				if e.Key == key {
					items[i].Value = value
				}
			}
			return items
		}
		return append(items, ConfigEntry{Key: key, Value: value})
	}
	if exists {
		return mutate(&s.c, apply, func() error {
			return s.gw.UpdateRow(ctx, SheetConfig, "key", key, map[string]string{"value": value})
		})
	}
	return mutate(&s.c, apply, func() error {
		return s.gw.AppendRow(ctx, SheetConfig, map[string]string{"key": key, "value": value})
	})
}

// TeamAllowlist decodes the team_allowlist config value, a JSON array of
// email addresses. A missing or malformed value yields an empty list.
func (s *ConfigStore) TeamAllowlist() []string {
	raw, ok := s.Get("team_allowlist")
	if !ok {
		return nil
	}
	var emails []string
	if err := json.Unmarshal([]byte(raw), &emails); err != nil {
		return nil
	}
	return emails
}

// knownKeys filters a patch down to the columns the entity owns, using a
// zero-value ToRow as the schema.
func knownKeys(patch, schema map[string]string) map[string]string {
	out := make(map[string]string, len(patch))
	for key, value := range patch {
		if _, ok := schema[key]; ok {
			out[key] = value
		}
	}
	return out
}
