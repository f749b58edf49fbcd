package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grantdesk/api/internal/app"
	"grantdesk/api/internal/audit"
	"grantdesk/api/internal/authz"
	"grantdesk/api/internal/config"
	"grantdesk/api/internal/gapi"
	"grantdesk/api/internal/search"
	"grantdesk/api/internal/session"
	"grantdesk/api/internal/sheetdb"
)

// sheetAppender builds the tabular gateway on demand so the audit logger
// can append rows once discovery has bound a spreadsheet.
type sheetAppender struct {
	provider *gapi.Provider
}

func (a *sheetAppender) AppendRow(ctx context.Context, sheet string, record map[string]string) error {
	svc, err := a.provider.Sheets(ctx)
	if err != nil {
		return err
	}
	return sheetdb.New(svc, a.provider.SpreadsheetID()).AppendRow(ctx, sheet, record)
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	provider := gapi.NewProvider(cfg)
	if err := provider.Discover(ctx); err != nil {
		log.Printf("WARNING: resource discovery failed (will rely on explicit IDs): %v", err)
	}

	mode := cfg.AuthMode
	if mode == config.ModeServiceAccount && !cfg.ServiceAccountEnabled() {
		log.Printf("WARNING: service-account auth mode requires a credential, falling back to self-check")
		mode = config.ModeSelfCheck
	}
	var strategy authz.Strategy
	if mode == config.ModeServiceAccount {
		log.Printf("Access checks via service-account permission listing")
		strategy = authz.NewPermissionList(provider)
	} else {
		log.Printf("Access checks via per-user self-check probes")
		strategy = authz.NewSelfCheck(provider)
	}
	verifier := authz.NewVerifier(strategy, authz.NewCache(authz.DefaultTTL))

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	auditLogger := audit.New(&sheetAppender{provider: provider}, cfg.AuditSheet)

	service := app.NewService(cfg, provider, verifier, redisStore, meiliClient, auditLogger)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("GrantDesk API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
