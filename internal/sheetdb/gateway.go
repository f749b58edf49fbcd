// Package sheetdb is the generic CRUD surface over one spreadsheet. Each
// sheet is a table whose first row is the header; rows are records. The
// gateway performs no type normalization beyond string coercion and no
// retries beyond the transparent rate-limit backoff.
package sheetdb

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/sheets/v4"

	"grantdesk/api/internal/gapi"
)

// Table is a sheet read result. Headers and Rows are returned separately;
// zipping them into records is the caller's job.
type Table struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// CellUpdate is one range-scoped write inside a batch.
type CellUpdate struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

type Gateway struct {
	svc           *sheets.Service
	spreadsheetID string
}

func New(svc *sheets.Service, spreadsheetID string) *Gateway {
	return &Gateway{svc: svc, spreadsheetID: spreadsheetID}
}

// ReadSheet returns the sheet's header row and data rows. An empty sheet
// yields empty headers and rows, not an error. rng narrows the read to a
// sub-range of the sheet.
func (g *Gateway) ReadSheet(ctx context.Context, sheet, rng string) (Table, error) {
	if strings.TrimSpace(sheet) == "" {
		return Table{}, &ValidationError{Reason: "sheet name is required"}
	}

	readRange := quoteSheet(sheet)
	if rng != "" {
		readRange += "!" + rng
	}

	var resp *sheets.ValueRange
	err := gapi.Retry(ctx, func() error {
		var callErr error
		resp, callErr = g.svc.Spreadsheets.Values.Get(g.spreadsheetID, readRange).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		// Sheets rejects unknown sheet names and unparsable ranges with 400.
		if gapi.StatusCode(err) == http.StatusBadRequest {
			return Table{}, &ValidationError{Reason: "bad sheet name or range: " + sheet}
		}
		return Table{}, gapi.WrapError("read sheet "+sheet, err)
	}

	table := Table{Headers: []string{}, Rows: [][]any{}}
	if len(resp.Values) == 0 {
		return table, nil
	}
	for _, cell := range resp.Values[0] {
		table.Headers = append(table.Headers, CellString(cell))
	}
	table.Rows = resp.Values[1:]
	return table, nil
}

// AppendRow projects the record onto the sheet's header order and appends
// it after the last row. Missing fields become empty strings; record keys
// that are not headers are dropped. Values are written as user-entered so
// the sheet's own coercion applies, matching manual entry.
func (g *Gateway) AppendRow(ctx context.Context, sheet string, record map[string]string) error {
	if strings.TrimSpace(sheet) == "" {
		return &ValidationError{Reason: "sheet name is required"}
	}
	if len(record) == 0 {
		return &ValidationError{Reason: "row is required"}
	}

	headers, err := g.readHeaders(ctx, sheet)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return &ValidationError{Reason: "sheet " + sheet + " has no header row"}
	}

	row := make([]any, len(headers))
	for i, header := range headers {
		row[i] = record[header]
		if row[i] == nil {
			row[i] = ""
		}
	}

	err = gapi.Retry(ctx, func() error {
		_, callErr := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, quoteSheet(sheet), &sheets.ValueRange{
			Values: [][]any{row},
		}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gapi.WrapError("append row to "+sheet, err)
	}
	return nil
}

// UpdateRow locates the first row whose idColumn cell equals idValue,
// merges patch onto it by header name, and writes the merged row back to
// its exact range. Read-modify-write with no concurrency token: two
// concurrent updates to the same row race and the last write wins.
func (g *Gateway) UpdateRow(ctx context.Context, sheet, idColumn, idValue string, patch map[string]string) error {
	if err := validateRowKey(sheet, idColumn, idValue); err != nil {
		return err
	}
	if len(patch) == 0 {
		return &ValidationError{Reason: "data is required"}
	}

	table, _, rowIdx, err := g.locateRow(ctx, sheet, idColumn, idValue)
	if err != nil {
		return err
	}

	merged := make([]any, len(table.Headers))
	existing := table.Rows[rowIdx]
	for i, header := range table.Headers {
		if i < len(existing) {
			merged[i] = existing[i]
		} else {
			merged[i] = ""
		}
		if value, ok := patch[header]; ok {
			merged[i] = value
		}
	}

	// Row 1 is the header, so data row N lives at sheet row N+2.
	rowNumber := rowIdx + 2
	writeRange := fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), rowNumber, columnLetter(len(table.Headers)), rowNumber)

	err = gapi.Retry(ctx, func() error {
		_, callErr := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, writeRange, &sheets.ValueRange{
			Values: [][]any{merged},
		}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gapi.WrapError("update row in "+sheet, err)
	}
	return nil
}

// DeleteRow removes the matched row structurally, shifting later rows up.
// The sheet's numeric ID is resolved from its name before the delete.
func (g *Gateway) DeleteRow(ctx context.Context, sheet, idColumn, idValue string) error {
	if err := validateRowKey(sheet, idColumn, idValue); err != nil {
		return err
	}

	_, _, rowIdx, err := g.locateRow(ctx, sheet, idColumn, idValue)
	if err != nil {
		return err
	}

	sheetID, err := g.resolveSheetID(ctx, sheet)
	if err != nil {
		return err
	}

	// DeleteDimension indices are zero-based and include the header row,
	// so data row N is dimension index N+1.
	start := int64(rowIdx + 1)
	err = gapi.Retry(ctx, func() error {
		_, callErr := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				DeleteDimension: &sheets.DeleteDimensionRequest{
					Range: &sheets.DimensionRange{
						SheetId:    sheetID,
						Dimension:  "ROWS",
						StartIndex: start,
						EndIndex:   start + 1,
					},
				},
			}},
		}).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gapi.WrapError("delete row from "+sheet, err)
	}
	return nil
}

// BatchUpdateCells applies several range-scoped writes in one round trip.
// Atomicity of the request only: Sheets still applies the writes
// independently.
func (g *Gateway) BatchUpdateCells(ctx context.Context, sheet string, updates []CellUpdate) error {
	if strings.TrimSpace(sheet) == "" {
		return &ValidationError{Reason: "sheet name is required"}
	}
	if len(updates) == 0 {
		return &ValidationError{Reason: "updates are required"}
	}

	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, update := range updates {
		if strings.TrimSpace(update.Range) == "" {
			return &ValidationError{Reason: "update range is required"}
		}
		data = append(data, &sheets.ValueRange{
			Range:  quoteSheet(sheet) + "!" + update.Range,
			Values: update.Values,
		})
	}

	err := gapi.Retry(ctx, func() error {
		_, callErr := g.svc.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data:             data,
		}).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return gapi.WrapError("batch update "+sheet, err)
	}
	return nil
}

// locateRow reads the full sheet and scans data rows top to bottom for the
// first idColumn cell whose string form equals idValue.
func (g *Gateway) locateRow(ctx context.Context, sheet, idColumn, idValue string) (Table, int, int, error) {
	table, err := g.ReadSheet(ctx, sheet, "")
	if err != nil {
		return Table{}, 0, 0, err
	}

	colIdx := -1
	for i, header := range table.Headers {
		if header == idColumn {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return Table{}, 0, 0, &NotFoundError{Kind: "column", Name: idColumn}
	}

	for i, row := range table.Rows {
		if colIdx < len(row) && CellString(row[colIdx]) == idValue {
			return table, colIdx, i, nil
		}
	}
	return Table{}, 0, 0, &NotFoundError{Kind: "row", Name: idColumn + "=" + idValue}
}

func (g *Gateway) readHeaders(ctx context.Context, sheet string) ([]string, error) {
	table, err := g.ReadSheet(ctx, sheet, "1:1")
	if err != nil {
		return nil, err
	}
	return table.Headers, nil
}

func (g *Gateway) resolveSheetID(ctx context.Context, sheet string) (int64, error) {
	var meta *sheets.Spreadsheet
	err := gapi.Retry(ctx, func() error {
		var callErr error
		meta, callErr = g.svc.Spreadsheets.Get(g.spreadsheetID).
			Fields("sheets(properties(sheetId,title))").
			Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return 0, gapi.WrapError("get spreadsheet metadata", err)
	}
	for _, s := range meta.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return s.Properties.SheetId, nil
		}
	}
	return 0, &NotFoundError{Kind: "sheet", Name: sheet}
}

func validateRowKey(sheet, idColumn, idValue string) error {
	if strings.TrimSpace(sheet) == "" {
		return &ValidationError{Reason: "sheet name is required"}
	}
	if strings.TrimSpace(idColumn) == "" {
		return &ValidationError{Reason: "idColumn is required"}
	}
	if idValue == "" {
		return &ValidationError{Reason: "id is required"}
	}
	return nil
}

// CellString is the gateway's only coercion: default stringification.
// Producers must generate and compare IDs consistently; no numeric
// normalization happens here.
func CellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// columnLetter converts a 1-based column count to its A1 letter, e.g.
// 1 -> A, 26 -> Z, 27 -> AA.
func columnLetter(n int) string {
	letters := ""
	for n > 0 {
		n--
		letters = string(rune('A'+n%26)) + letters
		n /= 26
	}
	return letters
}
