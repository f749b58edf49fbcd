package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"grantdesk/api/internal/audit"
	"grantdesk/api/internal/authz"
	"grantdesk/api/internal/config"
	"grantdesk/api/internal/drivefs"
	"grantdesk/api/internal/gapi"
	"grantdesk/api/internal/session"
	"grantdesk/api/internal/sheetdb"
)

type fakeVerifier struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
	last    authz.User
}

func (f *fakeVerifier) Allowed(_ context.Context, user authz.User, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = user
	return f.allowed, f.err
}

type fakeSessions struct {
	mu    sync.Mutex
	items map[string]session.Identity
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{items: map[string]session.Identity{}}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash string, identity session.Identity, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[tokenHash] = identity
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, tokenHash string) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.items[tokenHash]
	if !ok {
		return session.Identity{}, session.ErrNotFound
	}
	return identity, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

type appendCall struct {
	sheet  string
	record map[string]string
}

type fakeTabular struct {
	mu      sync.Mutex
	tables  map[string]sheetdb.Table
	appends []appendCall
	updates []map[string]string
	deletes []string
	batches int
	fail    error
}

func newFakeTabular() *fakeTabular {
	return &fakeTabular{tables: map[string]sheetdb.Table{}}
}

func (f *fakeTabular) ReadSheet(_ context.Context, sheet, _ string) (sheetdb.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return sheetdb.Table{}, f.fail
	}
	return f.tables[sheet], nil
}

func (f *fakeTabular) AppendRow(_ context.Context, sheet string, record map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.appends = append(f.appends, appendCall{sheet: sheet, record: record})
	return nil
}

func (f *fakeTabular) UpdateRow(_ context.Context, _, _, _ string, patch map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.updates = append(f.updates, patch)
	return nil
}

func (f *fakeTabular) DeleteRow(_ context.Context, _, _, idValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.deletes = append(f.deletes, idValue)
	return nil
}

func (f *fakeTabular) BatchUpdateCells(_ context.Context, _ string, _ []sheetdb.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.batches++
	return nil
}

func (f *fakeTabular) appendsTo(sheet string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]string
	for _, call := range f.appends {
		if call.sheet == sheet {
			out = append(out, call.record)
		}
	}
	return out
}

type fakeDrive struct {
	mu    sync.Mutex
	moves []string
	fail  error
}

func (f *fakeDrive) ListFiles(context.Context, string, string) ([]drivefs.FileInfo, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return []drivefs.FileInfo{{ID: "file-1", Name: "Proposal"}}, nil
}

func (f *fakeDrive) CreateFolder(_ context.Context, name, _ string) (drivefs.Created, error) {
	if f.fail != nil {
		return drivefs.Created{}, f.fail
	}
	return drivefs.Created{ID: "folder-" + name, URL: "https://drive.example/" + name}, nil
}

func (f *fakeDrive) CreateDocument(_ context.Context, name, _, _ string) (drivefs.Created, error) {
	return drivefs.Created{ID: "doc-" + name, URL: "https://docs.example/" + name}, nil
}

func (f *fakeDrive) CreateShortcut(_ context.Context, targetID, _, _ string) (drivefs.Created, error) {
	return drivefs.Created{ID: "shortcut-" + targetID}, nil
}

func (f *fakeDrive) MoveFile(_ context.Context, fileID, newParentID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, fileID+"->"+newParentID)
	return f.fail
}

func (f *fakeDrive) GetFile(_ context.Context, fileID string) (drivefs.FileInfo, error) {
	if f.fail != nil {
		return drivefs.FileInfo{}, f.fail
	}
	return drivefs.FileInfo{ID: fileID, Name: "Proposal"}, nil
}

type fakeDocs struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDocs) InitializeTrackerDocument(_ context.Context, documentID string, _ map[string]string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_ = documentID
	return nil
}

type testEnv struct {
	service  *Service
	handler  http.Handler
	tabular  *fakeTabular
	drive    *fakeDrive
	docs     *fakeDocs
	verifier *fakeVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		SessionSecret:  "test-secret",
		AccessTTL:      time.Hour,
		SpreadsheetID:  "sheet-1",
		GoogleClientID: "client-1.apps.googleusercontent.com",
	}
	verifier := &fakeVerifier{allowed: true}
	service := NewService(cfg, gapi.NewProvider(cfg), verifier, newFakeSessions(), nil, audit.New(nil, ""))
	service.userInfo = func(context.Context, string) (UserInfo, error) {
		return UserInfo{Sub: "perm-1", Email: "ana@example.org", Name: "Ana"}, nil
	}

	tabular := newFakeTabular()
	drive := &fakeDrive{}
	docs := &fakeDocs{}
	service.sheets = tabular
	service.drive = drive
	service.docs = docs

	return &testEnv{
		service:  service,
		handler:  NewHTTPServer(service, "*").Handler(),
		tabular:  tabular,
		drive:    drive,
		docs:     docs,
		verifier: verifier,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"googleToken": "user-oauth-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Email != "ana@example.org" {
		t.Fatalf("login email = %q", resp.Email)
	}
	return resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPublicConfigNeedsNoSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/config", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["clientId"] != "client-1.apps.googleusercontent.com" {
		t.Fatalf("clientId = %v", resp["clientId"])
	}
	if resp["serviceAccountEnabled"] != false {
		t.Fatalf("serviceAccountEnabled = %v", resp["serviceAccountEnabled"])
	}
	if resp["spreadsheetId"] != "sheet-1" {
		t.Fatalf("spreadsheetId = %v", resp["spreadsheetId"])
	}
}

func TestDataEndpointsRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sheets/read", "", map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/sheets/read", "not-a-real-token", map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
	if env.verifier.calls != 0 {
		t.Fatal("verifier consulted before authentication")
	}
}

func TestVerifierDenialIs403NotA401(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.verifier.allowed = false

	rec := env.do(t, http.MethodPost, "/api/sheets/read", token, map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := decodeError(t, rec); code != "FORBIDDEN" {
		t.Fatalf("code = %q", code)
	}
	if env.verifier.last.Email != "ana@example.org" {
		t.Fatalf("verifier saw %q", env.verifier.last.Email)
	}
	if env.verifier.last.BearerToken != "user-oauth-token" {
		t.Fatal("verifier did not receive the user's own OAuth token")
	}
}

func TestVerifierInfrastructureErrorIs500(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.verifier.err = &gapi.UpstreamError{Op: "files.get", StatusCode: 500, Err: fmt.Errorf("backend")}

	rec := env.do(t, http.MethodPost, "/api/sheets/read", token, map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if code := decodeError(t, rec); code != "UPSTREAM_ERROR" {
		t.Fatalf("code = %q, an upstream failure must not read as a denial", code)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodGet, "/api/session", token, nil)
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["authenticated"] != true || resp["email"] != "ana@example.org" {
		t.Fatalf("session payload: %v", resp)
	}

	rec = env.do(t, http.MethodPost, "/api/session/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/sheets/read", token, map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: status = %d", rec.Code)
	}
}

func TestReadSheetReturnsHeadersAndRows(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.tabular.tables["Grants"] = sheetdb.Table{
		Headers: []string{"grant_id", "title"},
		Rows:    [][]any{{"PYPI-2026-Packaging", "PyPI Sustainability"}},
	}

	rec := env.do(t, http.MethodPost, "/api/sheets/read", token, map[string]string{"sheet": "Grants"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Headers []string `json:"headers"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Headers) != 2 || len(resp.Rows) != 1 {
		t.Fatalf("payload: %+v", resp)
	}
}

func TestSheetUpdateNotFoundIs404(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.tabular.fail = &sheetdb.NotFoundError{Kind: "row", Name: "ghost"}

	rec := env.do(t, http.MethodPost, "/api/sheets/update", token, map[string]any{
		"sheet": "Grants", "idColumn": "grant_id", "id": "ghost", "data": map[string]string{"status": "Active"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSheetValidationErrorIs400(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.tabular.fail = &sheetdb.ValidationError{Reason: "record must not be empty"}

	rec := env.do(t, http.MethodPost, "/api/sheets/append", token, map[string]any{
		"sheet": "Grants", "row": map[string]string{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeError(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %q", code)
	}
}

func TestDriveEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/drive/list", token, map[string]string{"folderId": "folder-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/drive/folder", token, map[string]string{"name": "PYPI-2026-Packaging"})
	if rec.Code != http.StatusOK {
		t.Fatalf("folder status = %d", rec.Code)
	}
	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != "folder-PYPI-2026-Packaging" || created.URL == "" {
		t.Fatalf("created: %+v", created)
	}

	rec = env.do(t, http.MethodPost, "/api/drive/move", token, map[string]string{
		"fileId": "file-1", "newParentId": "folder-2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("move status = %d", rec.Code)
	}
	if len(env.drive.moves) != 1 || env.drive.moves[0] != "file-1->folder-2" {
		t.Fatalf("moves: %v", env.drive.moves)
	}
}

func TestDocsInit(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/docs/init", token, map[string]any{
		"documentId": "doc-1",
		"metadata":   map[string]string{"Title": "PyPI Sustainability"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if env.docs.calls != 1 {
		t.Fatalf("initializer calls = %d", env.docs.calls)
	}
}

func TestGrantLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/grants", token, map[string]any{
		"grant_id": "PYPI-2026-Packaging",
		"title":    "PyPI Sustainability",
		"status":   "Initial Contact",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := env.tabular.appendsTo("Grants"); len(got) != 1 || got[0]["grant_id"] != "PYPI-2026-Packaging" {
		t.Fatalf("grants appends: %v", got)
	}

	rec = env.do(t, http.MethodPut, "/api/grants/PYPI-2026-Packaging", token, map[string]string{"status": "Active"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Status string `json:"status"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Status != "Active" || updated.Title != "PyPI Sustainability" {
		t.Fatalf("updated grant: %+v", updated)
	}

	// The status change is recorded in StatusHistory, attributed to the
	// session's email.
	history := env.tabular.appendsTo("StatusHistory")
	if len(history) != 1 {
		t.Fatalf("history appends = %d", len(history))
	}
	if history[0]["from_status"] != "Initial Contact" || history[0]["to_status"] != "Active" {
		t.Fatalf("history record: %v", history[0])
	}
	if history[0]["changed_by"] != "ana@example.org" {
		t.Fatalf("changed_by = %q", history[0]["changed_by"])
	}

	rec = env.do(t, http.MethodGet, "/api/grants/PYPI-2026-Packaging/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/grants/PYPI-2026-Packaging", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/grants", token, nil)
	var listing struct {
		Grants []map[string]any `json:"grants"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Grants) != 0 {
		t.Fatalf("grants after delete: %v", listing.Grants)
	}
}

func TestGrantUpdateUnknownIDIs404(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPut, "/api/grants/no-such-grant", token, map[string]string{"status": "Active"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearchFallsBackToGrantScan(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/grants", token, map[string]any{
		"grant_id": "OTF-2026-Mesh", "title": "Mesh Networking", "status": "Active",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/search?q=mesh", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var resp struct {
		Results []map[string]any `json:"results"`
		Total   int              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Results[0]["id"] != "OTF-2026-Mesh" {
		t.Fatalf("search response: %+v", resp)
	}
}

func TestSearchRejectsNegativePagination(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/grants", token, map[string]any{
		"grant_id": "OTF-2026-Mesh", "title": "Mesh Networking", "status": "Active",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	for _, query := range []string{"offset=-1", "limit=-1"} {
		rec = env.do(t, http.MethodGet, "/api/search?"+query, token, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", query, rec.Code)
		}
		if code := decodeError(t, rec); code != "VALIDATION_ERROR" {
			t.Fatalf("%s: code = %q", query, code)
		}
	}
}

func TestActionItemImportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	body := map[string]any{
		"grant_id":          "PYPI-2026-Packaging",
		"description":       "Clarify budget line 4",
		"synced_comment_id": "comment-42",
	}
	rec := env.do(t, http.MethodPost, "/api/actionitems/import", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first import status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/actionitems/import", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second import status = %d, want 200 no-op", rec.Code)
	}
	if got := env.tabular.appendsTo("ActionItems"); len(got) != 1 {
		t.Fatalf("action item appended %d times", len(got))
	}
}

func TestSettingsUpsert(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.do(t, http.MethodPut, "/api/settings", token, map[string]string{
		"key": "default_status", "value": "Proposed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/settings", token, map[string]string{
		"key": "", "value": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty key status = %d, want 400", rec.Code)
	}
}
