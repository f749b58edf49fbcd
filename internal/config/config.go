package config

import (
	"os"
	"strconv"
	"time"
)

// AuthMode selects how the access verifier decides whether a user may
// operate on the deployment's bound resources.
type AuthMode string

const (
	// ModeSelfCheck probes the resource with the user's own OAuth token.
	ModeSelfCheck AuthMode = "self"
	// ModeServiceAccount enumerates the resource's permissions via the
	// service account and matches the user's email or domain.
	ModeServiceAccount AuthMode = "service-account"
)

type Config struct {
	Addr          string
	SessionSecret string
	AccessTTL     time.Duration
	CORSOrigin    string

	// Google OAuth client ID handed to the frontend for sign-in.
	GoogleClientID string

	// Service account credential: inline JSON wins over the file path.
	ServiceAccountJSON string
	ServiceAccountFile string

	// Drive root folder the deployment is bound to. The spreadsheet and
	// the Grants subfolder are discovered beneath it at startup.
	RootFolderID string

	// Explicit overrides; discovery fills these when empty.
	SpreadsheetID  string
	GrantsFolderID string

	AuthMode   AuthMode
	AuditSheet string

	// Redis Configuration (session storage)
	RedisURL string

	// Meilisearch - empty URL disables the search index
	MeiliURL       string
	MeiliMasterKey string
}

func Load() Config {
	return Config{
		Addr:               getenv("API_ADDR", ":8787"),
		SessionSecret:      getenv("GRANTDESK_SESSION_SECRET", "grantdesk-dev-secret"),
		AccessTTL:          time.Duration(getenvInt("GRANTDESK_ACCESS_TTL_SECONDS", 28800)) * time.Second,
		CORSOrigin:         getenv("GRANTDESK_CORS_ORIGIN", "*"),
		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		ServiceAccountJSON: getenv("GRANTDESK_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountFile: getenv("GRANTDESK_SERVICE_ACCOUNT_FILE", ""),
		RootFolderID:       getenv("GRANTDESK_ROOT_FOLDER_ID", ""),
		SpreadsheetID:      getenv("GRANTDESK_SPREADSHEET_ID", ""),
		GrantsFolderID:     getenv("GRANTDESK_GRANTS_FOLDER_ID", ""),
		AuthMode:           normalizeMode(getenv("GRANTDESK_AUTH_MODE", "")),
		AuditSheet:         getenv("GRANTDESK_AUDIT_SHEET", ""),
		RedisURL:           getenv("REDIS_URL", "redis://localhost:6379/0"),
		MeiliURL:           getenv("MEILI_URL", ""),
		MeiliMasterKey:     getenv("MEILI_MASTER_KEY", ""),
	}
}

// ServiceAccountEnabled reports whether a service-account credential was
// supplied in either form.
func (c Config) ServiceAccountEnabled() bool {
	return c.ServiceAccountJSON != "" || c.ServiceAccountFile != ""
}

func normalizeMode(raw string) AuthMode {
	switch AuthMode(raw) {
	case ModeSelfCheck, ModeServiceAccount:
		return AuthMode(raw)
	default:
		return ModeSelfCheck
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
