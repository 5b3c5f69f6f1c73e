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

	"github.com/claimscope/claimscope/internal/api"
	"github.com/claimscope/claimscope/internal/archive"
	s3store "github.com/claimscope/claimscope/internal/archive/s3"
	"github.com/claimscope/claimscope/internal/auth"
	"github.com/claimscope/claimscope/internal/config"
	"github.com/claimscope/claimscope/internal/demo"
	"github.com/claimscope/claimscope/internal/executor"
	duckdbengine "github.com/claimscope/claimscope/internal/executor/duckdb"
	pgengine "github.com/claimscope/claimscope/internal/executor/postgres"
	"github.com/claimscope/claimscope/internal/genai"
	"github.com/claimscope/claimscope/internal/observability"
	"github.com/claimscope/claimscope/internal/pipeline"
	"github.com/claimscope/claimscope/internal/prompt"
	"github.com/claimscope/claimscope/internal/report"
	"github.com/claimscope/claimscope/internal/safety"
	"github.com/claimscope/claimscope/internal/schema"
	schemapostgres "github.com/claimscope/claimscope/internal/schema/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("claimscope-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		source    schema.Source
		engine    executor.Engine
		readiness api.ReadinessCheck
	)

	if cfg.Profile == config.ProfileDev {
		devEngine, err := duckdbengine.Open("")
		if err != nil {
			logger.Error("failed to open embedded database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = devEngine.Close() }()
		if err := demo.Seed(ctx, devEngine.DB()); err != nil {
			logger.Error("failed to seed demo schema", slog.Any("error", err))
			os.Exit(1)
		}
		source = demo.Source{}
		engine = devEngine
		logger.Info("dev profile: serving seeded embedded database")
	} else {
		warehouseDB, err := schemapostgres.Open(ctx, schemapostgres.DBConfig{
			DSN:             cfg.Warehouse.DSN,
			MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
			MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
			ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open warehouse db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = warehouseDB.Close() }()

		pgSource := schemapostgres.NewSource(warehouseDB, cfg.Catalog.Schema, cfg.Catalog.HighCardinalityRows)
		warehouseEngine := pgengine.NewEngine(warehouseDB)
		source = pgSource
		engine = warehouseEngine
		readiness = api.CombineReadinessChecks(
			pgSource.HealthCheck,
			api.CheckWarehouseDSN(cfg),
			api.CheckArchiveConfig(cfg),
		)
	}

	var store archive.Store
	var exporter *report.Exporter
	if cfg.Archive.Enabled {
		store, err = s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize report archive", slog.Any("error", err))
			os.Exit(1)
		}
		exporter = report.NewExporter(store)
	}

	generator, err := genai.NewGeminiClient(genai.GeminiConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize generator", slog.Any("error", err))
		os.Exit(1)
	}

	cache := schema.NewCache(source, cfg.Catalog.TTL)
	controller := pipeline.NewController(generator, safety.NewValidator(), logger, pipeline.ControllerConfig{
		MaxAttempts: cfg.AI.MaxAttempts,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Examples:    prompt.DefaultExamples,
	})
	service := pipeline.NewService(cache, schema.NewKeywordSelector(), controller, engine, exporter, logger, pipeline.ServiceConfig{
		TopKTables: cfg.AI.TopKTables,
		RowCap:     cfg.Query.RowCap,
		Timeout:    cfg.Query.Timeout,
	})

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         readiness,
		DependencyTimeout: time.Second,
		Pipeline:          service,
		Archive:           store,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
