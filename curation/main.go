package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seclist-labs/seclist-go/internal/githost"
	"github.com/seclist-labs/seclist-go/internal/listdiff"
	"github.com/seclist-labs/seclist-go/internal/platform/auditlog"
	"github.com/seclist-labs/seclist-go/internal/platform/auth"
	"github.com/seclist-labs/seclist-go/internal/platform/env"
	"github.com/seclist-labs/seclist-go/internal/platform/httpserver"
	"github.com/seclist-labs/seclist-go/internal/platform/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("SECLIST_CURATION_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("SECLIST_CURATION_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxAutomated, err := env.Int("SECLIST_MAX_CHANGES_AUTOMATED", listdiff.MaxChangesAutomated)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxContributor, err := env.Int("SECLIST_MAX_CHANGES_CONTRIBUTOR", listdiff.MaxChangesContributor)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	hostCfg, err := githost.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid hosting api config", "error", err)
		os.Exit(2)
	}
	host, err := githost.NewClient(hostCfg)
	if err != nil {
		logger.Error("hosting api client init failed", "error", err)
		os.Exit(2)
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("curation"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"curation",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	api := newCurationAPI(logger, db, host, maxAutomated, maxContributor)
	api.register(mux)

	var handler http.Handler = mux
	if authenticator != nil {
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.MethodRoleAuthorizer(),
			Audit: func(ctx context.Context, event auth.DenyEvent) error {
				auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return auditlog.InsertAuthDeny(auditCtx, db, "curation", event)
			},
			SkipPrefixes: []string{"/healthz", "/readyz"},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "curation",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "curation", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
