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

// Package api exposes the generation pipeline and saved packs over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/auth"
	"github.com/your-org/lessonpack/internal/health"
	"github.com/your-org/lessonpack/internal/lessonpack"
	"github.com/your-org/lessonpack/internal/pipeline"
	"github.com/your-org/lessonpack/internal/store"
)

// PackGenerator runs one generation request
type PackGenerator interface {
	Generate(ctx context.Context, desc lessonpack.RequestDescriptor, userID string) (*pipeline.Result, error)
}

// PackStore persists and reads generated packs
type PackStore interface {
	Save(ctx context.Context, userID string, pack *lessonpack.ContentPack) (string, error)
	Get(ctx context.Context, userID, id string) (*store.Record, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]store.Summary, error)
	Delete(ctx context.Context, userID, id string) error
}

// BalanceReader reads a user's remaining allowance
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// RouterConfig wires the HTTP layer
type RouterConfig struct {
	Generator      PackGenerator
	Store          PackStore
	Balances       BalanceReader
	AuthMiddleware *auth.Middleware
	Health         *health.Manager
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the gin engine
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		generator: cfg.Generator,
		store:     cfg.Store,
		balances:  cfg.Balances,
		logger:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logger))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(cfg.AllowedOrigins))
	}

	if cfg.Health != nil {
		router.GET("/health", cfg.Health.Handler())
	}

	api := router.Group("/api")
	// generate lets unauthenticated callers through so the allowance gate
	// can answer them
	api.POST("/generate", cfg.AuthMiddleware.OptionalAuth(), h.generate)

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.GET("/packs", h.listPacks)
	protected.GET("/packs/:id", h.getPack)
	protected.DELETE("/packs/:id", h.deletePack)
	protected.GET("/allowance", h.allowance)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}
