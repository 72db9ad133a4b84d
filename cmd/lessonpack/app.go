// Copyright 2024 Lesson Pack Project
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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/allowance"
	"github.com/your-org/lessonpack/internal/auth"
	"github.com/your-org/lessonpack/internal/config"
	"github.com/your-org/lessonpack/internal/gemini"
	"github.com/your-org/lessonpack/internal/generation"
	"github.com/your-org/lessonpack/internal/health"
	"github.com/your-org/lessonpack/internal/imagery"
	"github.com/your-org/lessonpack/internal/openai"
	"github.com/your-org/lessonpack/internal/pipeline"
	"github.com/your-org/lessonpack/internal/resilience"
	"github.com/your-org/lessonpack/internal/store"
)

// app holds every long-lived component built from one configuration
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	ledger       allowance.Ledger
	gate         *allowance.Gate
	packs        *store.Store
	cascade      *imagery.Cascade
	generator    generation.Generator
	orchestrator *pipeline.Orchestrator
	auth         *auth.Middleware
	health       *health.Manager
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	packs, err := store.NewStore(cfg.Store.DBPath)
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("failed to open pack store: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger,
		gate:      allowance.NewGate(ledger, logger),
		packs:     packs,
		cascade:   newCascade(cfg, logger),
		generator: newGenerator(ctx, cfg, logger),
		auth:      auth.NewMiddleware(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), logger),
	}

	a.orchestrator = pipeline.New(a.gate, a.generator, a.cascade, pipeline.Options{
		GenerationTimeout: cfg.Generation.Timeout,
		EnrichTimeout:     cfg.Images.EnrichTimeout,
		RefundOnFailure:   cfg.Allowance.RefundOnFailure,
	}, logger)

	a.health = health.NewManager("lessonpack", version, logger)
	if cfg.Server.HealthTimeout > 0 {
		a.health.SetTimeout(cfg.Server.HealthTimeout)
	}
	a.health.AddChecker("ledger", health.DatabaseHealthChecker("ledger", ledger.Ping))
	a.health.AddChecker("store", health.DatabaseHealthChecker("store", packs.Ping))
	a.health.AddChecker("generator", health.CredentialChecker(cfg.Generation.Provider, generatorConfigured(cfg)))
	a.health.AddChecker("imagery", health.BreakerChecker(a.cascade.Stats))
	a.health.AddCheckerFunc("image_providers", imageProvidersCheck(cfg))

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured; every authenticated route will answer 401")
	}

	return a, nil
}

// Close releases the databases
func (a *app) Close() error {
	return errors.Join(a.packs.Close(), a.ledger.Close())
}

func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (allowance.Ledger, error) {
	switch cfg.Allowance.Backend {
	case config.LedgerRedis:
		var ledger *allowance.RedisLedger
		err := resilience.WithExponentialBackoff(ctx, logger, "connect_redis", resilience.DefaultBackoffConfig(),
			func(ctx context.Context) error {
				var err error
				ledger, err = allowance.NewRedisLedger(ctx, allowance.RedisOptions{
					Addr:      cfg.Allowance.Redis.Addr,
					Password:  cfg.Allowance.Redis.Password,
					DB:        cfg.Allowance.Redis.DB,
					KeyPrefix: cfg.Allowance.Redis.KeyPrefix,
				})
				return err
			})
		if err != nil {
			return nil, fmt.Errorf("failed to connect allowance ledger: %w", err)
		}
		return ledger, nil
	default:
		ledger, err := allowance.NewSQLiteLedger(cfg.Allowance.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open allowance ledger: %w", err)
		}
		return ledger, nil
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) generation.Generator {
	settings := generation.Settings{
		Model:       cfg.Generation.Model,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	}

	if cfg.Generation.Provider == config.ProviderGemini {
		return gemini.NewClient(ctx, gemini.Options{
			APIKey:   cfg.Gemini.APIKey,
			Endpoint: cfg.Gemini.Endpoint,
			Settings: settings,
			Timeout:  cfg.Generation.Timeout,
		}, logger)
	}
	return openai.NewClient(openai.Options{
		APIKey:   cfg.OpenAI.APIKey,
		Endpoint: cfg.OpenAI.Endpoint,
		Settings: settings,
		Timeout:  cfg.Generation.Timeout,
		JSONMode: cfg.OpenAI.JSONMode,
	}, logger)
}

func generatorConfigured(cfg *config.Config) bool {
	if cfg.Generation.Provider == config.ProviderGemini {
		return strings.TrimSpace(cfg.Gemini.APIKey) != ""
	}
	return strings.TrimSpace(cfg.OpenAI.APIKey) != ""
}

// imageProvidersCheck reports which image providers are active. A missing key only
// means slides fall back to the pool, so the check is always healthy.
func imageProvidersCheck(cfg *config.Config) func(context.Context) health.CheckResult {
	return func(context.Context) health.CheckResult {
		return health.CheckResult{
			Status: health.StatusHealthy,
			Metadata: map[string]interface{}{
				"unsplash":  strings.TrimSpace(cfg.Images.UnsplashAccessKey) != "",
				"wikimedia": cfg.Images.WikimediaEnabled,
				"fallback":  true,
			},
		}
	}
}

func newCascade(cfg *config.Config, logger *zap.Logger) *imagery.Cascade {
	breaker := resilience.DefaultCircuitBreakerConfig("imagery")
	if cfg.Images.BreakerMaxFailures > 0 {
		breaker.MaxFailures = cfg.Images.BreakerMaxFailures
	}
	if cfg.Images.BreakerResetTimeout > 0 {
		breaker.ResetTimeout = cfg.Images.BreakerResetTimeout
	}

	httpClient := &http.Client{Timeout: cfg.Images.ProviderTimeout}
	providers := []imagery.Provider{
		imagery.NewUnsplash(cfg.Images.UnsplashAccessKey, cfg.Images.UnsplashEndpoint, httpClient),
	}
	if cfg.Images.WikimediaEnabled {
		providers = append(providers, imagery.NewWikimedia(cfg.Images.WikimediaEndpoint, httpClient))
	}

	return imagery.NewCascade(imagery.Options{
		ProviderTimeout: cfg.Images.ProviderTimeout,
		Concurrency:     cfg.Images.Concurrency,
		MaxWords:        cfg.Images.MaxQueryWords,
		Pool:            cfg.Images.FallbackPool,
		Breaker:         breaker,
	}, logger, providers...)
}
