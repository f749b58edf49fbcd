package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"grantdesk/api/internal/audit"
	"grantdesk/api/internal/auth"
	"grantdesk/api/internal/authz"
	"grantdesk/api/internal/config"
	"grantdesk/api/internal/docinit"
	"grantdesk/api/internal/drivefs"
	"grantdesk/api/internal/entitystore"
	"grantdesk/api/internal/gapi"
	"grantdesk/api/internal/search"
	"grantdesk/api/internal/session"
	"grantdesk/api/internal/sheetdb"
	"grantdesk/api/internal/util"
)

type Session struct {
	Token       string
	Sub         string
	Email       string
	Name        string
	GoogleToken string
	JTI         string
	ExpiresAt   time.Time
}

// UserInfo is what Google reports about a signed-in user.
type UserInfo struct {
	Sub   string
	Email string
	Name  string
}

type tabularGateway interface {
	ReadSheet(ctx context.Context, sheet, rng string) (sheetdb.Table, error)
	AppendRow(ctx context.Context, sheet string, record map[string]string) error
	UpdateRow(ctx context.Context, sheet, idColumn, idValue string, patch map[string]string) error
	DeleteRow(ctx context.Context, sheet, idColumn, idValue string) error
	BatchUpdateCells(ctx context.Context, sheet string, updates []sheetdb.CellUpdate) error
}

type driveGateway interface {
	ListFiles(ctx context.Context, folderID, extraQuery string) ([]drivefs.FileInfo, error)
	CreateFolder(ctx context.Context, name, parentID string) (drivefs.Created, error)
	CreateDocument(ctx context.Context, name, mimeType, parentID string) (drivefs.Created, error)
	CreateShortcut(ctx context.Context, targetID, parentID, name string) (drivefs.Created, error)
	MoveFile(ctx context.Context, fileID, newParentID, prevParentID string) error
	GetFile(ctx context.Context, fileID string) (drivefs.FileInfo, error)
}

type docInitializer interface {
	InitializeTrackerDocument(ctx context.Context, documentID string, metadata map[string]string, approvers []string) error
}

type accessVerifier interface {
	Allowed(ctx context.Context, user authz.User, resourceID string) (bool, error)
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, identity session.Identity, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Identity, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	provider *gapi.Provider
	verifier accessVerifier
	sessions sessionStore
	search   *search.Service
	audit    *audit.Logger

	// userInfo resolves a Google OAuth token to the account behind it.
	// Defaults to a Drive About probe; tests substitute it.
	userInfo func(ctx context.Context, googleToken string) (UserInfo, error)

	mu     sync.Mutex
	sheets tabularGateway
	drive  driveGateway
	docs   docInitializer

	grants    *entitystore.GrantStore
	items     *entitystore.ActionItemStore
	reports   *entitystore.ReportStore
	artifacts *entitystore.ArtifactStore
	history   *entitystore.StatusHistoryStore
	settings  *entitystore.ConfigStore
	loaded    bool
}

// NewService wires the service together. meili may be nil; the search
// facade then always falls back to scanning the grant collection.
func NewService(cfg config.Config, provider *gapi.Provider, verifier accessVerifier, sessions sessionStore, meili *search.Meili, auditLogger *audit.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		provider: provider,
		verifier: verifier,
		sessions: sessions,
		audit:    auditLogger,
	}
	s.search = search.NewService(meili, search.NewSheetScan(s.grantItems))
	s.userInfo = s.fetchUserInfo
	return s
}

func (s *Service) fetchUserInfo(ctx context.Context, googleToken string) (UserInfo, error) {
	svc, err := s.provider.DriveForToken(ctx, googleToken)
	if err != nil {
		return UserInfo{}, err
	}
	about, err := svc.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return UserInfo{}, gapi.WrapError("about.get", err)
	}
	if about.User == nil || about.User.EmailAddress == "" {
		return UserInfo{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Google token carries no account", nil)
	}
	return UserInfo{
		Sub:   about.User.PermissionId,
		Email: about.User.EmailAddress,
		Name:  about.User.DisplayName,
	}, nil
}

// Login exchanges a Google OAuth token for a GrantDesk session. The email
// comes from Google, never from the request body; it is the identity the
// access verifier matches against Drive permissions.
func (s *Service) Login(ctx context.Context, googleToken string) (Session, error) {
	googleToken = strings.TrimSpace(googleToken)
	if googleToken == "" {
		return Session{}, domainError(http.StatusBadRequest, "INVALID_BODY", "googleToken is required", nil)
	}

	info, err := s.userInfo(ctx, googleToken)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return Session{}, err
		}
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Google sign-in was not accepted", nil)
	}

	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{
		Sub:   info.Sub,
		Email: info.Email,
		Name:  info.Name,
		JTI:   util.NewID("jti"),
		Exp:   expiresAt.Unix(),
	}
	if claims.Sub == "" {
		claims.Sub = info.Email
	}
	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), claims)
	if err != nil {
		return Session{}, err
	}

	identity := session.Identity{
		Sub:         claims.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		GoogleToken: googleToken,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.sessions.Save(ctx, auth.HashToken(token), identity, expiresAt); err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		Sub:         claims.Sub,
		Email:       info.Email,
		Name:        info.Name,
		GoogleToken: googleToken,
		JTI:         claims.JTI,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	identity, err := s.sessions.Lookup(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:       token,
		Sub:         identity.Sub,
		Email:       identity.Email,
		Name:        identity.DisplayName,
		GoogleToken: identity.GoogleToken,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(token))
}

// Authorize runs the access verifier against the deployment's bound
// resource. A denial is the caller's 403; verifier infrastructure errors
// propagate for mapError to classify.
func (s *Service) Authorize(ctx context.Context, sess Session) error {
	resource := s.provider.SpreadsheetID()
	if resource == "" {
		resource = s.cfg.RootFolderID
	}
	if resource == "" {
		return &gapi.ConfigurationError{Reason: "no spreadsheet or root folder bound"}
	}
	allowed, err := s.verifier.Allowed(ctx, authz.User{Email: sess.Email, BearerToken: sess.GoogleToken}, resource)
	if err != nil {
		return err
	}
	if !allowed {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Access denied, contact your administrator", nil)
	}
	return nil
}

// PublicConfig is the unauthenticated deployment descriptor the frontend
// bootstraps from.
func (s *Service) PublicConfig() map[string]any {
	payload := map[string]any{
		"clientId":              s.cfg.GoogleClientID,
		"serviceAccountEnabled": s.cfg.ServiceAccountEnabled(),
	}
	if id := s.provider.SpreadsheetID(); id != "" {
		payload["spreadsheetId"] = id
	}
	if id := s.provider.GrantsFolderID(); id != "" {
		payload["grantsFolderId"] = id
	}
	return payload
}

// Ready reports per-dependency readiness for /api/ready.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}

	if err := s.sessions.Ping(ctx); err != nil {
		ok = false
		checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["redis"] = map[string]any{"status": "ok"}
	}

	if err := s.provider.ConfigError(); err != nil {
		ok = false
		checks["google"] = map[string]any{"status": "error", "error": err.Error()}
	} else if s.provider.SpreadsheetID() == "" {
		ok = false
		checks["google"] = map[string]any{"status": "error", "error": "spreadsheet not discovered"}
	} else {
		checks["google"] = map[string]any{"status": "ok"}
	}

	return ok, checks
}

func (s *Service) sheetGateway(ctx context.Context) (tabularGateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheets != nil {
		return s.sheets, nil
	}
	spreadsheetID := s.provider.SpreadsheetID()
	if spreadsheetID == "" {
		return nil, &gapi.ConfigurationError{Reason: "no spreadsheet bound to this deployment"}
	}
	svc, err := s.provider.Sheets(ctx)
	if err != nil {
		return nil, err
	}
	s.sheets = sheetdb.New(svc, spreadsheetID)
	return s.sheets, nil
}

func (s *Service) driveGW(ctx context.Context) (driveGateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drive != nil {
		return s.drive, nil
	}
	svc, err := s.provider.Drive(ctx)
	if err != nil {
		return nil, err
	}
	s.drive = drivefs.New(svc)
	return s.drive, nil
}

func (s *Service) docInit(ctx context.Context) (docInitializer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs != nil {
		return s.docs, nil
	}
	svc, err := s.provider.Docs(ctx)
	if err != nil {
		return nil, err
	}
	s.docs = docinit.New(svc)
	return s.docs, nil
}

// ensureStores builds and loads the entity stores on first use. The
// collections stay in memory afterwards; mutations keep them current.
func (s *Service) ensureStores(ctx context.Context) error {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	if s.grants == nil {
		s.grants = entitystore.NewGrantStore(gw)
		s.items = entitystore.NewActionItemStore(gw)
		s.reports = entitystore.NewReportStore(gw)
		s.artifacts = entitystore.NewArtifactStore(gw)
		s.history = entitystore.NewStatusHistoryStore(gw)
		s.settings = entitystore.NewConfigStore(gw)
	}
	s.mu.Unlock()

	if err := s.grants.Load(ctx); err != nil {
		return err
	}
	if err := s.items.Load(ctx); err != nil {
		return err
	}
	if err := s.reports.Load(ctx); err != nil {
		return err
	}
	if err := s.artifacts.Load(ctx); err != nil {
		return err
	}
	if err := s.history.Load(ctx); err != nil {
		return err
	}
	if err := s.settings.Load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()

	s.reindexGrants()
	return nil
}

func (s *Service) grantItems() []entitystore.Grant {
	s.mu.Lock()
	store := s.grants
	loaded := s.loaded
	s.mu.Unlock()
	if store == nil || !loaded {
		return nil
	}
	return store.Items()
}

func (s *Service) reindexGrants() {
	grants := s.grantItems()
	records := make([]search.GrantRecord, 0, len(grants))
	for _, g := range grants {
		records = append(records, grantSearchRecord(g))
	}
	s.search.ReindexAll(records)
}

func grantSearchRecord(g entitystore.Grant) search.GrantRecord {
	return search.GrantRecord{
		ID:           g.GrantID,
		Title:        g.Title,
		Organization: g.Organization,
		Status:       g.Status,
	}
}

// Tabular pass-through operations.

func (s *Service) ReadSheet(ctx context.Context, sheet, rng string) (sheetdb.Table, error) {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return sheetdb.Table{}, err
	}
	return gw.ReadSheet(ctx, sheet, rng)
}

func (s *Service) AppendRow(ctx context.Context, sess Session, sheet string, row map[string]string) error {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return err
	}
	if err := gw.AppendRow(ctx, sheet, row); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "sheet.append", sheet, "")
	return nil
}

func (s *Service) UpdateRow(ctx context.Context, sess Session, sheet, idColumn, id string, data map[string]string) error {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return err
	}
	if err := gw.UpdateRow(ctx, sheet, idColumn, id, data); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "sheet.update", sheet+"/"+id, "")
	return nil
}

func (s *Service) DeleteRow(ctx context.Context, sess Session, sheet, idColumn, id string) error {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return err
	}
	if err := gw.DeleteRow(ctx, sheet, idColumn, id); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "sheet.delete", sheet+"/"+id, "")
	return nil
}

func (s *Service) BatchUpdateCells(ctx context.Context, sess Session, sheet string, updates []sheetdb.CellUpdate) error {
	gw, err := s.sheetGateway(ctx)
	if err != nil {
		return err
	}
	if err := gw.BatchUpdateCells(ctx, sheet, updates); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "sheet.batch", sheet, "")
	return nil
}

// Drive pass-through operations.

func (s *Service) ListFiles(ctx context.Context, folderID, query string) ([]drivefs.FileInfo, error) {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		folderID = s.provider.GrantsFolderID()
	}
	if folderID == "" {
		folderID = s.cfg.RootFolderID
	}
	if folderID == "" {
		return nil, &gapi.ConfigurationError{Reason: "no folder bound to this deployment"}
	}
	return gw.ListFiles(ctx, folderID, query)
}

func (s *Service) CreateFolder(ctx context.Context, sess Session, name, parentID string) (drivefs.Created, error) {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return drivefs.Created{}, err
	}
	if parentID == "" {
		parentID = s.provider.GrantsFolderID()
	}
	created, err := gw.CreateFolder(ctx, name, parentID)
	if err != nil {
		return drivefs.Created{}, err
	}
	s.audit.Record(ctx, sess.Email, "drive.folder.create", created.ID, name)
	return created, nil
}

func (s *Service) CreateDocument(ctx context.Context, sess Session, name, mimeType, parentID string) (drivefs.Created, error) {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return drivefs.Created{}, err
	}
	if parentID == "" {
		parentID = s.provider.GrantsFolderID()
	}
	created, err := gw.CreateDocument(ctx, name, mimeType, parentID)
	if err != nil {
		return drivefs.Created{}, err
	}
	s.audit.Record(ctx, sess.Email, "drive.document.create", created.ID, name)
	return created, nil
}

func (s *Service) CreateShortcut(ctx context.Context, sess Session, targetID, parentID, name string) (drivefs.Created, error) {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return drivefs.Created{}, err
	}
	created, err := gw.CreateShortcut(ctx, targetID, parentID, name)
	if err != nil {
		return drivefs.Created{}, err
	}
	s.audit.Record(ctx, sess.Email, "drive.shortcut.create", created.ID, targetID)
	return created, nil
}

func (s *Service) MoveFile(ctx context.Context, sess Session, fileID, newParentID, prevParentID string) error {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return err
	}
	if err := gw.MoveFile(ctx, fileID, newParentID, prevParentID); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "drive.move", fileID, "to "+newParentID)
	return nil
}

func (s *Service) GetFile(ctx context.Context, fileID string) (drivefs.FileInfo, error) {
	gw, err := s.driveGW(ctx)
	if err != nil {
		return drivefs.FileInfo{}, err
	}
	return gw.GetFile(ctx, fileID)
}

// InitializeTrackerDocument writes the standard tracker scaffold into a
// freshly created document.
func (s *Service) InitializeTrackerDocument(ctx context.Context, sess Session, documentID string, metadata map[string]string, approvers []string) error {
	init, err := s.docInit(ctx)
	if err != nil {
		return err
	}
	if err := init.InitializeTrackerDocument(ctx, documentID, metadata, approvers); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "docs.init", documentID, "")
	return nil
}

// Entity operations.

func (s *Service) Grants(ctx context.Context) ([]entitystore.Grant, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.grants.Items(), nil
}

func (s *Service) CreateGrant(ctx context.Context, sess Session, g entitystore.Grant) (entitystore.Grant, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.Grant{}, err
	}
	created, err := s.grants.Create(ctx, g)
	if err != nil {
		return entitystore.Grant{}, err
	}
	s.audit.Record(ctx, sess.Email, "grant.create", created.GrantID, created.Title)
	s.search.IndexGrant(grantSearchRecord(created))
	return created, nil
}

// UpdateGrant patches a grant; a status change also appends a
// StatusHistory entry attributed to the session.
func (s *Service) UpdateGrant(ctx context.Context, sess Session, grantID string, patch map[string]string) (entitystore.Grant, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.Grant{}, err
	}
	prev, ok := s.grants.Get(grantID)
	if !ok {
		return entitystore.Grant{}, &sheetdb.NotFoundError{Kind: "row", Name: grantID}
	}
	if err := s.grants.Update(ctx, grantID, patch); err != nil {
		return entitystore.Grant{}, err
	}

	if newStatus, changed := patch["status"]; changed && newStatus != prev.Status {
		_, err := s.history.Append(ctx, entitystore.StatusHistoryEntry{
			GrantID:    grantID,
			FromStatus: prev.Status,
			ToStatus:   newStatus,
			ChangedBy:  sess.Email,
		})
		if err != nil {
			// The grant row is already updated; the missing history entry
			// is logged via Err() but must not fail the mutation.
			s.audit.Record(ctx, sess.Email, "grant.history.failed", grantID, err.Error())
		}
	}

	updated, _ := s.grants.Get(grantID)
	s.audit.Record(ctx, sess.Email, "grant.update", grantID, "")
	s.search.IndexGrant(grantSearchRecord(updated))
	return updated, nil
}

func (s *Service) DeleteGrant(ctx context.Context, sess Session, grantID string) error {
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	if _, ok := s.grants.Get(grantID); !ok {
		return &sheetdb.NotFoundError{Kind: "row", Name: grantID}
	}
	if err := s.grants.Delete(ctx, grantID); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "grant.delete", grantID, "")
	s.search.DeleteGrant(grantID)
	return nil
}

func (s *Service) GrantHistory(ctx context.Context, grantID string) ([]entitystore.StatusHistoryEntry, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.history.ForGrant(grantID), nil
}

func (s *Service) ActionItems(ctx context.Context) ([]entitystore.ActionItem, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.items.Items(), nil
}

func (s *Service) CreateActionItem(ctx context.Context, sess Session, item entitystore.ActionItem) (entitystore.ActionItem, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.ActionItem{}, err
	}
	created, err := s.items.Create(ctx, item)
	if err != nil {
		return entitystore.ActionItem{}, err
	}
	s.audit.Record(ctx, sess.Email, "item.create", created.ItemID, created.Description)
	return created, nil
}

// ImportActionItem ingests a document comment as an action item, once per
// comment.
func (s *Service) ImportActionItem(ctx context.Context, sess Session, item entitystore.ActionItem) (entitystore.ActionItem, bool, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.ActionItem{}, false, err
	}
	imported, created, err := s.items.ImportComment(ctx, item)
	if err != nil {
		return entitystore.ActionItem{}, false, err
	}
	if created {
		s.audit.Record(ctx, sess.Email, "item.import", imported.ItemID, imported.SyncedCommentID)
	}
	return imported, created, nil
}

func (s *Service) UpdateActionItem(ctx context.Context, sess Session, itemID string, patch map[string]string) (entitystore.ActionItem, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.ActionItem{}, err
	}
	if _, ok := s.items.Get(itemID); !ok {
		return entitystore.ActionItem{}, &sheetdb.NotFoundError{Kind: "row", Name: itemID}
	}
	if err := s.items.Update(ctx, itemID, patch); err != nil {
		return entitystore.ActionItem{}, err
	}
	updated, _ := s.items.Get(itemID)
	s.audit.Record(ctx, sess.Email, "item.update", itemID, "")
	return updated, nil
}

func (s *Service) DeleteActionItem(ctx context.Context, sess Session, itemID string) error {
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	if _, ok := s.items.Get(itemID); !ok {
		return &sheetdb.NotFoundError{Kind: "row", Name: itemID}
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "item.delete", itemID, "")
	return nil
}

func (s *Service) Reports(ctx context.Context) ([]entitystore.Report, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.reports.Items(), nil
}

func (s *Service) CreateReport(ctx context.Context, sess Session, r entitystore.Report) (entitystore.Report, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.Report{}, err
	}
	created, err := s.reports.Create(ctx, r)
	if err != nil {
		return entitystore.Report{}, err
	}
	s.audit.Record(ctx, sess.Email, "report.create", created.ReportID, "")
	return created, nil
}

func (s *Service) UpdateReport(ctx context.Context, sess Session, reportID string, patch map[string]string) (entitystore.Report, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.Report{}, err
	}
	if _, ok := s.reports.Get(reportID); !ok {
		return entitystore.Report{}, &sheetdb.NotFoundError{Kind: "row", Name: reportID}
	}
	if err := s.reports.Update(ctx, reportID, patch); err != nil {
		return entitystore.Report{}, err
	}
	updated, _ := s.reports.Get(reportID)
	s.audit.Record(ctx, sess.Email, "report.update", reportID, "")
	return updated, nil
}

func (s *Service) DeleteReport(ctx context.Context, sess Session, reportID string) error {
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	if _, ok := s.reports.Get(reportID); !ok {
		return &sheetdb.NotFoundError{Kind: "row", Name: reportID}
	}
	if err := s.reports.Delete(ctx, reportID); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "report.delete", reportID, "")
	return nil
}

func (s *Service) Artifacts(ctx context.Context) ([]entitystore.Artifact, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.artifacts.Items(), nil
}

func (s *Service) CreateArtifact(ctx context.Context, sess Session, a entitystore.Artifact) (entitystore.Artifact, error) {
	if err := s.ensureStores(ctx); err != nil {
		return entitystore.Artifact{}, err
	}
	if a.AddedBy == "" {
		a.AddedBy = sess.Email
	}
	created, err := s.artifacts.Create(ctx, a)
	if err != nil {
		return entitystore.Artifact{}, err
	}
	s.audit.Record(ctx, sess.Email, "artifact.create", created.ArtifactID, created.URL)
	return created, nil
}

func (s *Service) DeleteArtifact(ctx context.Context, sess Session, artifactID string) error {
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	if err := s.artifacts.Delete(ctx, artifactID); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "artifact.delete", artifactID, "")
	return nil
}

func (s *Service) Settings(ctx context.Context) ([]entitystore.ConfigEntry, error) {
	if err := s.ensureStores(ctx); err != nil {
		return nil, err
	}
	return s.settings.Items(), nil
}

func (s *Service) PutSetting(ctx context.Context, sess Session, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return &sheetdb.ValidationError{Reason: "key is required"}
	}
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	if err := s.settings.Set(ctx, key, value); err != nil {
		return err
	}
	s.audit.Record(ctx, sess.Email, "setting.put", key, "")
	return nil
}

// SearchGrants answers /api/search. The fallback scans the loaded grant
// collection, so stores are ensured first.
func (s *Service) SearchGrants(ctx context.Context, q search.Query) (search.Response, error) {
	if err := s.ensureStores(ctx); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(q), nil
}
