// Package gapi resolves credentials and typed clients for the Google APIs
// GrantDesk talks to. Clients are built lazily on first use and cached for
// the process lifetime.
package gapi

import (
	"context"
	"log"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"grantdesk/api/internal/config"
)

var serviceScopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveScope,
	docs.DocumentsScope,
}

// Provider hands out memoized Sheets/Drive/Docs services authorized by the
// deployment's service account, plus throwaway Drive services bound to a
// user's own bearer token for the self-check strategy.
type Provider struct {
	cfg config.Config

	// testOpts, when non-empty, replaces credential resolution entirely so
	// tests can point services at a fake HTTP endpoint.
	testOpts []option.ClientOption

	mu       sync.Mutex
	creds    *google.Credentials
	confErr  error
	resolved bool

	sheetsSvc *sheets.Service
	driveSvc  *drive.Service
	docsSvc   *docs.Service

	spreadsheetID  string
	grantsFolderID string
}

func NewProvider(cfg config.Config, testOpts ...option.ClientOption) *Provider {
	return &Provider{
		cfg:            cfg,
		testOpts:       testOpts,
		spreadsheetID:  cfg.SpreadsheetID,
		grantsFolderID: cfg.GrantsFolderID,
	}
}

// credentials resolves the service-account credential once. Failure is
// remembered as a ConfigurationError and returned on every later call.
// Callers hold p.mu.
func (p *Provider) credentials(ctx context.Context) (*google.Credentials, error) {
	if p.resolved {
		if p.confErr != nil {
			return nil, p.confErr
		}
		return p.creds, nil
	}
	p.resolved = true

	raw := []byte(p.cfg.ServiceAccountJSON)
	if len(raw) == 0 && p.cfg.ServiceAccountFile != "" {
		data, err := os.ReadFile(p.cfg.ServiceAccountFile)
		if err != nil {
			p.confErr = &ConfigurationError{Reason: "read service account file", Err: err}
			return nil, p.confErr
		}
		raw = data
	}
	if len(raw) == 0 {
		p.confErr = &ConfigurationError{Reason: "no service account credential configured"}
		return nil, p.confErr
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, serviceScopes...)
	if err != nil {
		p.confErr = &ConfigurationError{Reason: "parse service account JSON", Err: err}
		return nil, p.confErr
	}
	p.creds = creds
	return creds, nil
}

// options builds the client options for a service-account-authorized
// service. Callers hold p.mu.
func (p *Provider) options(ctx context.Context) ([]option.ClientOption, error) {
	if len(p.testOpts) > 0 {
		return p.testOpts, nil
	}
	creds, err := p.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource))}, nil
}

// Sheets returns the process-wide Sheets service.
func (p *Provider) Sheets(ctx context.Context) (*sheets.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sheetsSvc != nil {
		return p.sheetsSvc, nil
	}
	opts, err := p.options(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConfigurationError{Reason: "create sheets service", Err: err}
	}
	p.sheetsSvc = svc
	return svc, nil
}

// Drive returns the process-wide service-account Drive service.
func (p *Provider) Drive(ctx context.Context) (*drive.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.driveSvc != nil {
		return p.driveSvc, nil
	}
	opts, err := p.options(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConfigurationError{Reason: "create drive service", Err: err}
	}
	p.driveSvc = svc
	return svc, nil
}

// Docs returns the process-wide Docs service.
func (p *Provider) Docs(ctx context.Context) (*docs.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.docsSvc != nil {
		return p.docsSvc, nil
	}
	opts, err := p.options(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConfigurationError{Reason: "create docs service", Err: err}
	}
	p.docsSvc = svc
	return svc, nil
}

// DriveForToken builds a Drive service authorized by the user's own bearer
// token. Not memoized: the token belongs to one request's session.
func (p *Provider) DriveForToken(ctx context.Context, token string) (*drive.Service, error) {
	if len(p.testOpts) > 0 {
		return drive.NewService(ctx, p.testOpts...)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, &ConfigurationError{Reason: "create drive service for user token", Err: err}
	}
	return svc, nil
}

// ConfigError reports the remembered credential failure, if any. Used by
// the readiness check.
func (p *Provider) ConfigError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confErr
}

// SpreadsheetID returns the bound spreadsheet ID, empty if discovery has
// not resolved one.
func (p *Provider) SpreadsheetID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spreadsheetID
}

// GrantsFolderID returns the bound Grants folder ID, empty if unresolved.
func (p *Provider) GrantsFolderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grantsFolderID
}

func (p *Provider) setDiscovered(spreadsheetID, grantsFolderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spreadsheetID != "" {
		p.spreadsheetID = spreadsheetID
	}
	if grantsFolderID != "" {
		p.grantsFolderID = grantsFolderID
	}
	log.Printf("gapi: resources bound spreadsheet=%s grantsFolder=%s", p.spreadsheetID, p.grantsFolderID)
}
