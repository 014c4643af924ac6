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

	"github.com/seclist-labs/seclist-go/internal/enrich"
	"github.com/seclist-labs/seclist-go/internal/githost"
	"github.com/seclist-labs/seclist-go/internal/platform/auditlog"
	"github.com/seclist-labs/seclist-go/internal/platform/auth"
	"github.com/seclist-labs/seclist-go/internal/platform/env"
	"github.com/seclist-labs/seclist-go/internal/platform/httpserver"
	"github.com/seclist-labs/seclist-go/internal/platform/objectstore"
	"github.com/seclist-labs/seclist-go/internal/platform/postgres"
	"github.com/seclist-labs/seclist-go/internal/queue"
	storageobjectstore "github.com/seclist-labs/seclist-go/internal/storage/objectstore"
	"github.com/seclist-labs/seclist-go/internal/summarize"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("SECLIST_ENRICHMENT_HTTP_ADDR", ":8082")
	shutdownTimeout, err := env.Duration("SECLIST_ENRICHMENT_SHUTDOWN_TIMEOUT", 10*time.Second)
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

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	store, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}

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

	summaryCfg, err := summarize.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid summarizer config", "error", err)
		os.Exit(2)
	}
	summarizer, err := summarize.NewClient(summaryCfg)
	if err != nil {
		logger.Error("summarizer init failed", "error", err)
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

	controller := &enrich.Controller{
		Host:            host,
		Store:           store,
		Summarizer:      summarizer,
		Queue:           queue.NewOutbox(db),
		BucketReadmes:   storeCfg.BucketReadmes,
		BucketSummaries: storeCfg.BucketSummaries,
		Logger:          logger,
	}
	runs := enrich.NewRunStore(db)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("enrichment"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"enrichment",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newEnrichmentAPI(logger, runs, controller)
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
				return auditlog.InsertAuthDeny(auditCtx, db, "enrichment", event)
			},
			SkipPrefixes: []string{"/healthz", "/readyz"},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "enrichment",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "enrichment", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
