package gapi

import (
	"context"
	"errors"
	"testing"

	"grantdesk/api/internal/config"
)

func TestProviderWithoutCredentialIsConfigError(t *testing.T) {
	provider := NewProvider(config.Config{})

	_, err := provider.Sheets(context.Background())
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	// The failure is remembered for the readiness check.
	if provider.ConfigError() == nil {
		t.Fatal("expected ConfigError to report the remembered failure")
	}
}

func TestProviderWithBadCredentialFileIsConfigError(t *testing.T) {
	provider := NewProvider(config.Config{ServiceAccountFile: "/nonexistent/creds.json"})

	_, err := provider.Drive(context.Background())
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
