package sheetdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"grantdesk/api/internal/gapi"
)

// fakeSheets models one sheet of one spreadsheet behind the subset of the
// Sheets v4 REST surface the gateway uses. Row 0 holds the headers.
type fakeSheets struct {
	mu       sync.Mutex
	title    string
	sheetID  int64
	values   [][]any
	requests int
}

var rowRangeRe = regexp.MustCompile(`!A(\d+):`)

func (f *fakeSheets) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++

		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
			values := f.values
			if strings.Contains(path, "1:1") && len(values) > 1 {
				values = values[:1]
			}
			writeBody(w, map[string]any{"range": "r", "values": values})

		case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
			var vr sheets.ValueRange
			decode(r, &vr)
			f.values = append(f.values, vr.Values...)
			writeBody(w, map[string]any{})

		case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
			var vr sheets.ValueRange
			decode(r, &vr)
			match := rowRangeRe.FindStringSubmatch(path)
			if match == nil {
				http.Error(w, "bad range", http.StatusBadRequest)
				return
			}
			rowNum, _ := strconv.Atoi(match[1])
			if rowNum-1 < len(f.values) && len(vr.Values) == 1 {
				f.values[rowNum-1] = vr.Values[0]
			}
			writeBody(w, map[string]any{})

		case r.Method == http.MethodPost && strings.HasSuffix(path, "/values:batchUpdate"):
			writeBody(w, map[string]any{})

		case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
			var req sheets.BatchUpdateSpreadsheetRequest
			decode(r, &req)
			for _, sub := range req.Requests {
				if sub.DeleteDimension != nil {
					start := sub.DeleteDimension.Range.StartIndex
					if int(start) < len(f.values) {
						f.values = append(f.values[:start], f.values[start+1:]...)
					}
				}
			}
			writeBody(w, map[string]any{})

		case r.Method == http.MethodGet:
			writeBody(w, map[string]any{
				"sheets": []map[string]any{
					{"properties": map[string]any{"sheetId": f.sheetID, "title": f.title}},
				},
			})

		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	})
}

func writeBody(w http.ResponseWriter, body any) {
	_ = json.NewEncoder(w).Encode(body)
}

func decode(r *http.Request, target any) {
	_ = json.NewDecoder(r.Body).Decode(target)
}

func newTestGateway(t *testing.T, fake *fakeSheets) *Gateway {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("create sheets service: %v", err)
	}
	return New(svc, "spreadsheet-1")
}

func grantsFake() *fakeSheets {
	return &fakeSheets{
		title:   "Grants",
		sheetID: 7,
		values: [][]any{
			{"grant_id", "title", "organization", "status", "amount"},
			{"OTF-2025-Mesh", "Mesh Networking", "OTF", "Active", "50000"},
			{"SFC-2025-Conserv", "Conservancy Support", "SFC", "Completed", "20000"},
		},
	}
}

func TestReadSheetSplitsHeadersFromRows(t *testing.T) {
	gw := newTestGateway(t, grantsFake())

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(table.Headers) != 5 || table.Headers[0] != "grant_id" {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(table.Rows))
	}
}

func TestReadSheetEmptySheetIsNotAnError(t *testing.T) {
	gw := newTestGateway(t, &fakeSheets{title: "Grants", sheetID: 7})

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(table.Headers) != 0 || len(table.Rows) != 0 {
		t.Fatalf("expected empty table, got %+v", table)
	}
}

func TestReadSheetRequiresSheetName(t *testing.T) {
	gw := newTestGateway(t, grantsFake())
	var verr *ValidationError
	if _, err := gw.ReadSheet(context.Background(), "  ", ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAppendRowProjectsRecordOntoHeaders(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	err := gw.AppendRow(context.Background(), "Grants", map[string]string{
		"grant_id": "PYPI-2026-Packaging",
		"title":    "PyPI Sustainability",
		"status":   "Initial Contact",
		"ignored":  "dropped silently",
	})
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	last := table.Rows[len(table.Rows)-1]
	want := []any{"PYPI-2026-Packaging", "PyPI Sustainability", "", "Initial Contact", ""}
	if fmt.Sprint(last) != fmt.Sprint(want) {
		t.Fatalf("appended row mismatch:\n got %v\nwant %v", last, want)
	}
}

func TestAppendRowRejectsEmptyRecord(t *testing.T) {
	gw := newTestGateway(t, grantsFake())
	var verr *ValidationError
	if err := gw.AppendRow(context.Background(), "Grants", nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateRowPatchesOnlyNamedFields(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	err := gw.UpdateRow(context.Background(), "Grants", "grant_id", "OTF-2025-Mesh", map[string]string{
		"status": "Completed",
	})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	row := table.Rows[0]
	if CellString(row[3]) != "Completed" {
		t.Fatalf("expected patched status, got %v", row[3])
	}
	if CellString(row[0]) != "OTF-2025-Mesh" || CellString(row[1]) != "Mesh Networking" {
		t.Fatalf("unpatched fields changed: %v", row)
	}
}

func TestUpdateRowUnknownColumnIsNotFound(t *testing.T) {
	gw := newTestGateway(t, grantsFake())

	err := gw.UpdateRow(context.Background(), "Grants", "bogus_column", "x", map[string]string{"status": "Active"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "column" {
		t.Fatalf("expected column NotFoundError, got %v", err)
	}
}

func TestUpdateRowMissingRowIsNotFoundNeverSilent(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	err := gw.UpdateRow(context.Background(), "Grants", "grant_id", "NOPE-0000-Missing", map[string]string{"status": "Active"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "row" {
		t.Fatalf("expected row NotFoundError, got %v", err)
	}
}

func TestDeleteRowRemovesExactlyTheMatchedRow(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	if err := gw.DeleteRow(context.Background(), "Grants", "grant_id", "OTF-2025-Mesh"); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected exactly one row left, got %d", len(table.Rows))
	}
	if CellString(table.Rows[0][0]) != "SFC-2025-Conserv" {
		t.Fatalf("wrong row removed, remaining: %v", table.Rows[0])
	}
}

func TestDeleteRowMissingIDLeavesSheetUnchanged(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	err := gw.DeleteRow(context.Background(), "Grants", "grant_id", "NOPE-0000-Missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("failed delete must not change the sheet, got %d rows", len(table.Rows))
	}
}

func TestBatchUpdateCellsIsOneRoundTrip(t *testing.T) {
	fake := grantsFake()
	gw := newTestGateway(t, fake)

	err := gw.BatchUpdateCells(context.Background(), "Grants", []CellUpdate{
		{Range: "B2", Values: [][]any{{"Renamed"}}},
		{Range: "E2:E3", Values: [][]any{{"1"}, {"2"}}},
	})
	if err != nil {
		t.Fatalf("BatchUpdateCells: %v", err)
	}
	if fake.requests != 1 {
		t.Fatalf("expected one network round trip, got %d", fake.requests)
	}
}

func TestGrantLifecycle(t *testing.T) {
	fake := &fakeSheets{
		title:   "Grants",
		sheetID: 7,
		values:  [][]any{{"grant_id", "title", "organization", "status", "amount"}},
	}
	gw := newTestGateway(t, fake)
	ctx := context.Background()

	err := gw.AppendRow(ctx, "Grants", map[string]string{
		"grant_id": "PYPI-2026-Packaging",
		"title":    "PyPI Sustainability",
		"status":   "Initial Contact",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	table, err := gw.ReadSheet(ctx, "Grants", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	row := table.Rows[0]
	if CellString(row[0]) != "PYPI-2026-Packaging" || CellString(row[2]) != "" {
		t.Fatalf("unexpected row after append: %v", row)
	}

	if err := gw.UpdateRow(ctx, "Grants", "grant_id", "PYPI-2026-Packaging", map[string]string{"status": "Active"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	table, _ = gw.ReadSheet(ctx, "Grants", "")
	row = table.Rows[0]
	if CellString(row[3]) != "Active" || CellString(row[1]) != "PyPI Sustainability" {
		t.Fatalf("unexpected row after update: %v", row)
	}

	if err := gw.DeleteRow(ctx, "Grants", "grant_id", "PYPI-2026-Packaging"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	table, _ = gw.ReadSheet(ctx, "Grants", "")
	for _, r := range table.Rows {
		if CellString(r[0]) == "PYPI-2026-Packaging" {
			t.Fatalf("row survived delete: %v", r)
		}
	}
}

func TestRateLimitedCallsAreRetried(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	fake := grantsFake()
	inner := fake.handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reject := failures > 0
		if reject {
			failures--
		}
		mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"code": 429, "message": "rate limit"}}`)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer server.Close()

	svc, err := sheets.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("create sheets service: %v", err)
	}
	gw := New(svc, "spreadsheet-1")

	table, err := gw.ReadSheet(context.Background(), "Grants", "")
	if err != nil {
		t.Fatalf("expected backoff to absorb 429s, got %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected data after retry, got %d rows", len(table.Rows))
	}
}

func TestUpstreamFailureIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error": {"code": 502, "message": "bad gateway"}}`)
	}))
	defer server.Close()

	svc, err := sheets.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("create sheets service: %v", err)
	}
	gw := New(svc, "spreadsheet-1")

	_, err = gw.ReadSheet(context.Background(), "Grants", "")
	var upstream *gapi.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", upstream.StatusCode)
	}
}

func TestContextDeadlineBecomesTimeoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeBody(w, map[string]any{"values": [][]any{}})
	}))
	defer server.Close()

	svc, err := sheets.NewService(context.Background(),
		option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("create sheets service: %v", err)
	}
	gw := New(svc, "spreadsheet-1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = gw.ReadSheet(ctx, "Grants", "")
	var timeout *gapi.UpstreamTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected UpstreamTimeoutError, got %v", err)
	}
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{1: "A", 5: "E", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range cases {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}
