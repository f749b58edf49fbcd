// Package docinit seeds a freshly created tracker document with headings
// and a metadata table. It shares the authorization path with the rest of
// the Drive surface but is otherwise peripheral.
package docinit

import (
	"context"
	"strings"

	"google.golang.org/api/docs/v1"

	"grantdesk/api/internal/gapi"
)

// canonicalFields fixes the order metadata rows appear in the tracker
// table. Keys outside this list are dropped.
var canonicalFields = []string{
	"Grant ID",
	"Title",
	"Organization",
	"Category",
	"Status",
	"Amount",
	"Start Date",
	"End Date",
	"Program Officer",
}

type Initializer struct {
	svc *docs.Service
}

func New(svc *docs.Service) *Initializer {
	return &Initializer{svc: svc}
}

// InitializeTrackerDocument writes the tracker skeleton into documentID in
// a single batched edit: a title heading, an optional approvers line, and
// when metadata is non-empty a details heading plus a two-column table
// with one row per present field. Calling it twice inserts the content
// twice; there is no existing-content check.
func (i *Initializer) InitializeTrackerDocument(ctx context.Context, documentID string, metadata map[string]string, approvers []string) error {
	if strings.TrimSpace(documentID) == "" {
		return &ValidationError{Reason: "documentId is required"}
	}

	requests := buildRequests(metadata, approvers)
	err := gapi.Retry(ctx, func() error {
		_, callErr := i.svc.Documents.BatchUpdate(documentID, &docs.BatchUpdateDocumentRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gapi.WrapError("initialize document "+documentID, err)
	}
	return nil
}

// presentFields filters the canonical list down to keys that exist in the
// metadata with a non-empty value, preserving canonical order.
func presentFields(metadata map[string]string) []string {
	fields := []string{}
	for _, field := range canonicalFields {
		if strings.TrimSpace(metadata[field]) != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

func buildRequests(metadata map[string]string, approvers []string) []*docs.Request {
	var requests []*docs.Request
	cursor := int64(1)

	insertStyled := func(text, style string) {
		start := cursor
		requests = append(requests, &docs.Request{
			InsertText: &docs.InsertTextRequest{
				Text:     text,
				Location: &docs.Location{Index: start},
			},
		})
		requests = append(requests, &docs.Request{
			UpdateParagraphStyle: &docs.UpdateParagraphStyleRequest{
				Range:          &docs.Range{StartIndex: start, EndIndex: start + int64(len([]rune(text)))},
				ParagraphStyle: &docs.ParagraphStyle{NamedStyleType: style},
				Fields:         "namedStyleType",
			},
		})
		cursor += int64(len([]rune(text)))
	}

	insertStyled("Grant Tracker\n", "HEADING_1")

	if len(approvers) > 0 {
		start := cursor
		text := "Approvers: " + strings.Join(approvers, ", ") + "\n"
		requests = append(requests, &docs.Request{
			InsertText: &docs.InsertTextRequest{
				Text:     text,
				Location: &docs.Location{Index: start},
			},
		})
		cursor += int64(len([]rune(text)))
	}

	fields := presentFields(metadata)
	if len(fields) == 0 {
		return requests
	}

	insertStyled("Grant Details\n", "HEADING_2")

	const cols = 2
	rows := len(fields)
	requests = append(requests, &docs.Request{
		InsertTable: &docs.InsertTableRequest{
			Rows:     int64(rows),
			Columns:  cols,
			Location: &docs.Location{Index: cursor},
		},
	})

	// Docs starts the table on its own paragraph, so the table structure
	// begins one index past the insertion point. Cell (r, c) content then
	// starts at tableStart + 4 + r*(cols*2+1) + c*2. Cells are filled in
	// reverse so earlier indices stay valid within the same batch.
	tableStart := cursor + 1
	cellIndex := func(r, c int) int64 {
		return tableStart + 4 + int64(r)*(cols*2+1) + int64(c)*2
	}
	for r := rows - 1; r >= 0; r-- {
		field := fields[r]
		requests = append(requests, &docs.Request{
			InsertText: &docs.InsertTextRequest{
				Text:     metadata[field],
				Location: &docs.Location{Index: cellIndex(r, 1)},
			},
		})
		requests = append(requests, &docs.Request{
			InsertText: &docs.InsertTextRequest{
				Text:     field,
				Location: &docs.Location{Index: cellIndex(r, 0)},
			},
		})
	}

	return requests
}

// ValidationError means the caller's request was malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}
