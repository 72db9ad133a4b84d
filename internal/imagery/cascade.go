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

// Package imagery attaches a display image to every slide of a pack, trying
// search providers in order and falling back to a fixed pool.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/lessonpack/internal/lessonpack"
	"github.com/your-org/lessonpack/internal/resilience"
)

// Options tunes the cascade
type Options struct {
	// ProviderTimeout bounds each provider call
	ProviderTimeout time.Duration
	// Concurrency bounds how many slides resolve at once
	Concurrency int
	MaxWords    int
	Pool        []string
	// Breaker is applied per provider; Name is replaced by the provider name
	Breaker resilience.CircuitBreakerConfig
}

// DefaultOptions returns the cascade defaults
func DefaultOptions() Options {
	return Options{
		ProviderTimeout: 6 * time.Second,
		Concurrency:     4,
		MaxWords:        DefaultMaxWords,
		Pool:            DefaultFallbackPool,
		Breaker:         resilience.DefaultCircuitBreakerConfig("imagery"),
	}
}

type guardedProvider struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
}

// Cascade resolves slide images through an ordered provider list
type Cascade struct {
	providers []guardedProvider
	opts      Options
	logger    *zap.Logger
}

// NewCascade creates a cascade over the providers in priority order
func NewCascade(opts Options, logger *zap.Logger, providers ...Provider) *Cascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaults.ProviderTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = defaults.MaxWords
	}
	if len(opts.Pool) == 0 {
		opts.Pool = defaults.Pool
	}
	if opts.Breaker.MaxFailures <= 0 {
		opts.Breaker = defaults.Breaker
	}

	c := &Cascade{opts: opts, logger: logger}
	for _, p := range providers {
		if p == nil {
			continue
		}
		cfg := opts.Breaker
		cfg.Name = "imagery-" + p.Name()
		c.providers = append(c.providers, guardedProvider{
			provider: p,
			breaker:  resilience.NewCircuitBreaker(cfg, logger),
		})
	}
	return c
}

// Resolve returns an image URL for the slide. It never fails: when every provider
// misses, errors, or is unconfigured the slide gets Pool[ordinal mod len(Pool)].
func (c *Cascade) Resolve(ctx context.Context, slide lessonpack.Slide, subject, topic string, ordinal int) (image string) {
	fallback := FallbackImage(c.opts.Pool, ordinal)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Image resolution panicked", zap.Int("slide", ordinal), zap.Any("panic", r))
			image = fallback
		}
	}()

	query := CleanQuery(BuildPhrase(slide, subject, topic), c.opts.MaxWords)

	for _, gp := range c.providers {
		if cp, ok := gp.provider.(interface{ Configured() bool }); ok && !cp.Configured() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		var found string
		err := gp.breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, c.opts.ProviderTimeout)
			defer cancel()
			u, err := gp.provider.Search(callCtx, query)
			found = u
			return err
		})
		if err != nil {
			level := c.logger.Debug
			if !errors.Is(err, resilience.ErrCircuitBreakerOpen) {
				level = c.logger.Warn
			}
			level("Image provider failed",
				zap.String("provider", gp.provider.Name()),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		if found = strings.TrimSpace(found); found != "" {
			c.logger.Debug("Image resolved",
				zap.String("provider", gp.provider.Name()),
				zap.String("query", query),
				zap.Int("slide", ordinal))
			return found
		}
	}

	c.logger.Debug("Using fallback image", zap.String("query", query), zap.Int("slide", ordinal))
	return fallback
}

// EnrichSlides sets Image on every slide and fills VideoURL and ImageSearchURL
// where they are empty.
// Slides keep their position; at most Options.Concurrency resolve at once.
func (c *Cascade) EnrichSlides(ctx context.Context, slides []lessonpack.Slide, subject, topic string) error {
	if len(slides) == 0 {
		return nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i := range slides {
		g.Go(func() error {
			slides[i].Image = c.Resolve(gctx, slides[i], subject, topic, i)
			if slides[i].VideoURL == "" {
				slides[i].VideoURL = YouTubeSearchURL(videoPhrase(slides[i], subject, topic))
			}
			if slides[i].ImageSearchURL == "" {
				slides[i].ImageSearchURL = WikimediaSearchURL(CleanQuery(BuildPhrase(slides[i], subject, topic), c.opts.MaxWords))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("slide enrichment failed: %w", err)
	}

	c.logger.Info("Slides enriched",
		zap.Int("slides", len(slides)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Stats reports the breaker state of each provider
func (c *Cascade) Stats() []resilience.CircuitBreakerStats {
	stats := make([]resilience.CircuitBreakerStats, 0, len(c.providers))
	for _, gp := range c.providers {
		stats = append(stats, gp.breaker.Stats())
	}
	return stats
}

func videoPhrase(slide lessonpack.Slide, subject, topic string) string {
	if q := strings.TrimSpace(slide.VideoQuery); q != "" {
		return q
	}
	if t := strings.TrimSpace(slide.Title); t != "" {
		return strings.TrimSpace(topic + " " + t)
	}
	return strings.TrimSpace(subject + " " + topic)
}
