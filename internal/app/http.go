package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grantdesk/api/internal/auth"
	"grantdesk/api/internal/docinit"
	"grantdesk/api/internal/drivefs"
	"grantdesk/api/internal/entitystore"
	"grantdesk/api/internal/gapi"
	"grantdesk/api/internal/search"
	"grantdesk/api/internal/sheetdb"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		statusCode := http.StatusOK
		status := "ready"
		if !ready {
			statusCode = http.StatusServiceUnavailable
			status = "not_ready"
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	// Public deployment descriptor the frontend bootstraps Google
	// sign-in from.
	if r.Method == http.MethodGet && r.URL.Path == "/api/config" {
		writeJSON(w, http.StatusOK, s.service.PublicConfig())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"email":         sess.Email,
			"name":          sess.Name,
			"expiresAt":     sess.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			GoogleToken string `json:"googleToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.Login(r.Context(), body.GoogleToken)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     sess.Token,
			"email":     sess.Email,
			"name":      sess.Name,
			"expiresAt": sess.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		_ = s.service.Logout(r.Context(), bearerToken(r))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Everything below requires a session and a passing access check
	// against the bound resource. 401 means no/invalid session; 403 means
	// a valid session the verifier denied.
	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.Authorize(r.Context(), sess); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/sheets/"):
		s.handleSheets(w, r, sess)
	case strings.HasPrefix(r.URL.Path, "/api/drive/"):
		s.handleDrive(w, r, sess)
	case r.Method == http.MethodPost && r.URL.Path == "/api/docs/init":
		s.handleDocsInit(w, r, sess)
	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		s.handleSearch(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/grants"):
		s.handleGrants(w, r, sess)
	case strings.HasPrefix(r.URL.Path, "/api/actionitems"):
		s.handleActionItems(w, r, sess)
	case strings.HasPrefix(r.URL.Path, "/api/reports"):
		s.handleReports(w, r, sess)
	case strings.HasPrefix(r.URL.Path, "/api/artifacts"):
		s.handleArtifacts(w, r, sess)
	case strings.HasPrefix(r.URL.Path, "/api/settings"):
		s.handleSettings(w, r, sess)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSheets(w http.ResponseWriter, r *http.Request, sess Session) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.URL.Path {
	case "/api/sheets/read":
		var body struct {
			Sheet string `json:"sheet"`
			Range string `json:"range"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		table, err := s.service.ReadSheet(r.Context(), body.Sheet, body.Range)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		rows := table.Rows
		if rows == nil {
			rows = [][]any{}
		}
		headers := table.Headers
		if headers == nil {
			headers = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"headers": headers, "rows": rows})

	case "/api/sheets/append":
		var body struct {
			Sheet string            `json:"sheet"`
			Row   map[string]string `json:"row"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.AppendRow(r.Context(), sess, body.Sheet, body.Row); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "/api/sheets/update":
		var body struct {
			Sheet    string            `json:"sheet"`
			IDColumn string            `json:"idColumn"`
			ID       string            `json:"id"`
			Data     map[string]string `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateRow(r.Context(), sess, body.Sheet, body.IDColumn, body.ID, body.Data); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "/api/sheets/delete":
		var body struct {
			Sheet    string `json:"sheet"`
			IDColumn string `json:"idColumn"`
			ID       string `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.DeleteRow(r.Context(), sess, body.Sheet, body.IDColumn, body.ID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "/api/sheets/batch":
		var body struct {
			Sheet   string               `json:"sheet"`
			Updates []sheetdb.CellUpdate `json:"updates"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.BatchUpdateCells(r.Context(), sess, body.Sheet, body.Updates); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDrive(w http.ResponseWriter, r *http.Request, sess Session) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.URL.Path {
	case "/api/drive/list":
		var body struct {
			FolderID string `json:"folderId"`
			Query    string `json:"query"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		files, err := s.service.ListFiles(r.Context(), body.FolderID, body.Query)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		if files == nil {
			files = []drivefs.FileInfo{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files})

	case "/api/drive/folder":
		var body struct {
			Name     string `json:"name"`
			ParentID string `json:"parentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateFolder(r.Context(), sess, body.Name, body.ParentID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": created.ID, "url": created.URL})

	case "/api/drive/document":
		var body struct {
			Name     string `json:"name"`
			MimeType string `json:"mimeType"`
			ParentID string `json:"parentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateDocument(r.Context(), sess, body.Name, body.MimeType, body.ParentID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": created.ID, "url": created.URL})

	case "/api/drive/shortcut":
		var body struct {
			TargetID string `json:"targetId"`
			ParentID string `json:"parentId"`
			Name     string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateShortcut(r.Context(), sess, body.TargetID, body.ParentID, body.Name)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": created.ID})

	case "/api/drive/move":
		var body struct {
			FileID       string `json:"fileId"`
			NewParentID  string `json:"newParentId"`
			PrevParentID string `json:"prevParentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.MoveFile(r.Context(), sess, body.FileID, body.NewParentID, body.PrevParentID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "/api/drive/file":
		var body struct {
			FileID string `json:"fileId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		info, err := s.service.GetFile(r.Context(), body.FileID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDocsInit(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		DocumentID string            `json:"documentId"`
		Metadata   map[string]string `json:"metadata"`
		Approvers  []string          `json:"approvers"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.InitializeTrackerDocument(r.Context(), sess, body.DocumentID, body.Metadata, body.Approvers); err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:         strings.TrimSpace(r.URL.Query().Get("q")),
		FilterStatus: strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:        20,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return
		}
		q.Offset = parsed
	}

	resp, err := s.service.SearchGrants(r.Context(), q)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGrants(w http.ResponseWriter, r *http.Request, sess Session) {
	parts := splitPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		grants, err := s.service.Grants(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})

	case r.Method == http.MethodPost && len(parts) == 2:
		var body entitystore.Grant
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateGrant(r.Context(), sess, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodPut && len(parts) == 3:
		var body map[string]string
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateGrant(r.Context(), sess, parts[2], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteGrant(r.Context(), sess, parts[2]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "history":
		history, err := s.service.GrantHistory(r.Context(), parts[2])
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		if history == nil {
			history = []entitystore.StatusHistoryEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleActionItems(w http.ResponseWriter, r *http.Request, sess Session) {
	parts := splitPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		items, err := s.service.ActionItems(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case r.Method == http.MethodPost && len(parts) == 2:
		var body entitystore.ActionItem
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateActionItem(r.Context(), sess, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "import":
		var body entitystore.ActionItem
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, created, err := s.service.ImportActionItem(r.Context(), sess, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"item": item, "created": created})

	case r.Method == http.MethodPut && len(parts) == 3:
		var body map[string]string
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateActionItem(r.Context(), sess, parts[2], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteActionItem(r.Context(), sess, parts[2]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReports(w http.ResponseWriter, r *http.Request, sess Session) {
	parts := splitPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		reports, err := s.service.Reports(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})

	case r.Method == http.MethodPost && len(parts) == 2:
		var body entitystore.Report
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateReport(r.Context(), sess, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodPut && len(parts) == 3:
		var body map[string]string
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateReport(r.Context(), sess, parts[2], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteReport(r.Context(), sess, parts[2]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleArtifacts(w http.ResponseWriter, r *http.Request, sess Session) {
	parts := splitPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		artifacts, err := s.service.Artifacts(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})

	case r.Method == http.MethodPost && len(parts) == 2:
		var body entitystore.Artifact
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateArtifact(r.Context(), sess, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteArtifact(r.Context(), sess, parts[2]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request, sess Session) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.service.Settings(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})

	case http.MethodPut:
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.PutSetting(r.Context(), sess, body.Key, body.Value); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// mapError translates package error types into the wire taxonomy. The
// 401/403 split is deliberate: 401 is a session problem, 403 a verifier
// denial, and they must never collapse into each other.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	var sheetNotFound *sheetdb.NotFoundError
	if errors.As(err, &sheetNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Record not found, it may have been deleted by someone else", sheetNotFound.Error()
	}
	var driveNotFound *drivefs.NotFoundError
	if errors.As(err, &driveNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "File not found", driveNotFound.Error()
	}

	var sheetInvalid *sheetdb.ValidationError
	if errors.As(err, &sheetInvalid) {
		return http.StatusBadRequest, "VALIDATION_ERROR", sheetInvalid.Reason, nil
	}
	var driveInvalid *drivefs.ValidationError
	if errors.As(err, &driveInvalid) {
		return http.StatusBadRequest, "VALIDATION_ERROR", driveInvalid.Reason, nil
	}
	var docsInvalid *docinit.ValidationError
	if errors.As(err, &docsInvalid) {
		return http.StatusBadRequest, "VALIDATION_ERROR", docsInvalid.Reason, nil
	}

	var confErr *gapi.ConfigurationError
	if errors.As(err, &confErr) {
		log.Printf("config error: %v", confErr)
		return http.StatusInternalServerError, "CONFIG_ERROR", "Server is not fully configured", nil
	}
	var timeoutErr *gapi.UpstreamTimeoutError
	if errors.As(err, &timeoutErr) {
		return http.StatusInternalServerError, "UPSTREAM_TIMEOUT", "Google API timed out", nil
	}
	var upstreamErr *gapi.UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusInternalServerError, "UPSTREAM_ERROR", "Google API call failed", nil
	}

	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
