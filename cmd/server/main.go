// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oauth2core/authserver/internal/audit"
	"github.com/oauth2core/authserver/internal/clock"
	"github.com/oauth2core/authserver/internal/config"
	"github.com/oauth2core/authserver/internal/credential"
	"github.com/oauth2core/authserver/internal/observability/logger"
	"github.com/oauth2core/authserver/internal/observability/metrics"
	"github.com/oauth2core/authserver/internal/observability/tracing"
	"github.com/oauth2core/authserver/internal/oauth2grant"
	"github.com/oauth2core/authserver/internal/store/postgres"
	transportHTTP "github.com/oauth2core/authserver/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting oauth2 authorization core")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	clientRepo := postgres.NewClientRepository()
	configRepo := postgres.NewClientConfigRepository()
	refreshTokenRepo := postgres.NewRefreshTokenRepository()
	accessTokenRepo := postgres.NewAccessTokenRepository()
	auditLogRepo := postgres.NewAuditLogRepository()

	clk := clock.System{}
	generator, err := credential.NewSecretGenerator(credential.MinSecretBytes)
	if err != nil {
		slog.Error("failed to build secret generator", logger.Error(err))
		os.Exit(1)
	}
	hasher := credential.NewDefaultSecretHasher()

	auditLogger := audit.NewRepositoryLogger(auditLogRepo, db.Pool(), clk, audit.NewSlogLogger())

	grantTracer := tracer.GetTracer()
	tokensIssuedCounter, err := meter.CreateCounter("oauth2_tokens_issued_total", "refresh-token grants that issued a new access token")
	if err != nil {
		slog.Error("failed to create tokens-issued counter", logger.Error(err))
	}

	refreshTokenFlow := oauth2grant.NewRefreshTokenFlow(oauth2grant.Deps{
		Pool:                    db.Pool(),
		Tx:                      db,
		Clients:                 clientRepo,
		Configs:                 configRepo,
		RefreshTokens:           refreshTokenRepo,
		AccessTokens:            accessTokenRepo,
		AuditLog:                auditLogRepo,
		AuditLogger:             auditLogger,
		Generator:               generator,
		Hasher:                  hasher,
		Clock:                   clk,
		RotateRefreshTokens:     cfg.OAuth2.RotateRefreshTokens,
		FamilyRevocationEnabled: cfg.OAuth2.FamilyRevocationEnabled,
	})
	grantService := oauth2grant.NewService(refreshTokenFlow,
		slog.Default(),
		oauth2grant.WithTracer(grantTracer),
		oauth2grant.WithTokensIssuedCounter(tokensIssuedCounter),
	)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := transportHTTP.NewHandler(grantService)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("migration successful.")
	return nil
}
