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

// Package pipeline turns a request descriptor into an enriched content pack:
// gate, compile, invoke, recover, normalize, enrich.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/allowance"
	"github.com/your-org/lessonpack/internal/generation"
	"github.com/your-org/lessonpack/internal/imagery"
	"github.com/your-org/lessonpack/internal/lessonpack"
	"github.com/your-org/lessonpack/internal/prompt"
	"github.com/your-org/lessonpack/internal/recovery"
	"github.com/your-org/lessonpack/internal/resilience"
)

// State is a stage of one generation request
type State string

// Request states in the order they are entered
const (
	StateGating      State = "gating"
	StateCompiling   State = "compiling"
	StateInvoking    State = "invoking"
	StateRecovering  State = "recovering"
	StateNormalizing State = "normalizing"
	StateEnriching   State = "enriching"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Gatekeeper admits requests against the allowance ledger
type Gatekeeper interface {
	Consume(ctx context.Context, userID string) (allowance.Decision, error)
	Refund(ctx context.Context, userID string) error
}

// Enricher attaches media to slides in place
type Enricher interface {
	EnrichSlides(ctx context.Context, slides []lessonpack.Slide, subject, topic string) error
}

// Options tunes the orchestrator
type Options struct {
	// GenerationTimeout bounds the Invoking state
	GenerationTimeout time.Duration
	// EnrichTimeout bounds the Enriching state
	EnrichTimeout time.Duration
	// RefundOnFailure returns the consumed unit when Invoking or Recovering fails
	RefundOnFailure bool
}

// Result is a finished generation
type Result struct {
	Pack      *lessonpack.ContentPack
	Remaining int64
	Model     string
	Duration  time.Duration
}

// Orchestrator runs the generation pipeline
type Orchestrator struct {
	gate      Gatekeeper
	generator generation.Generator
	enricher  Enricher
	opts      Options
	logger    *zap.Logger
}

// New creates an orchestrator. A nil enricher resolves every slide from the
// fallback image pool.
func New(gate Gatekeeper, generator generation.Generator, enricher Enricher, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 120 * time.Second
	}
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = 20 * time.Second
	}
	if enricher == nil {
		enricher = imagery.NewCascade(imagery.DefaultOptions(), logger)
	}
	return &Orchestrator{
		gate:      gate,
		generator: generator,
		enricher:  enricher,
		opts:      opts,
		logger:    logger,
	}
}

// run tracks and logs the state of one request
type run struct {
	logger *zap.Logger
	state  State
	start  time.Time
}

func (r *run) enter(next State) {
	r.logger.Debug("Pipeline transition",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)),
		zap.Duration("elapsed", time.Since(r.start)))
	r.state = next
}

func (r *run) fail(err error) error {
	serviceErr := resilience.AsServiceError(err)
	r.logger.Warn("Pipeline failed",
		zap.String("state", string(r.state)),
		zap.String("code", string(serviceErr.Code)),
		zap.Int("status", serviceErr.StatusCode),
		zap.Error(err),
		zap.Duration("elapsed", time.Since(r.start)))
	r.state = StateFailed
	return serviceErr
}

// Generate runs the full pipeline for userID. Failures are *resilience.ServiceError
// values carrying the HTTP status. Once the allowance is consumed the request runs
// to completion even if ctx is cancelled, bounded by the configured timeouts.
func (o *Orchestrator) Generate(ctx context.Context, desc lessonpack.RequestDescriptor, userID string) (*Result, error) {
	userID = strings.TrimSpace(userID)
	r := &run{
		logger: o.logger.With(zap.String("user_id", userID)),
		state:  StateGating,
		start:  time.Now(),
	}

	// Gating
	if userID == "" {
		return nil, r.fail(resilience.NewUnauthorizedError("Authentication required", nil))
	}
	desc = desc.WithDefaults()
	if err := desc.Validate(); err != nil {
		return nil, r.fail(resilience.NewRequestInvalidError(err.Error(), err))
	}
	r.logger = r.logger.With(
		zap.String("subject", desc.Subject),
		zap.String("topic", desc.Topic),
		zap.String("grade", desc.Grade))

	decision, err := o.gate.Consume(ctx, userID)
	if err != nil {
		return nil, r.fail(resilience.NewUpstreamUnavailableError("Allowance service unavailable", err))
	}
	if !decision.OK {
		if decision.Reason == allowance.ReasonUnauthenticated {
			return nil, r.fail(resilience.NewUnauthorizedError("Authentication required", nil))
		}
		return nil, r.fail(resilience.NewAllowanceExhaustedError("No generation credits remaining", allowance.ErrExhausted))
	}

	// the unit is spent; the caller can no longer abandon the request
	work := context.WithoutCancel(ctx)

	r.enter(StateCompiling)
	instr := prompt.Compile(desc)

	r.enter(StateInvoking)
	raw, err := o.invoke(work, instr)
	if err != nil {
		o.refund(work, r, userID)
		return nil, r.fail(err)
	}

	r.enter(StateRecovering)
	obj, err := recovery.Recover(raw)
	if err != nil {
		o.refund(work, r, userID)
		preview := recovery.Preview(raw)
		var failure *recovery.Failure
		if errors.As(err, &failure) {
			preview = failure.Preview
		}
		return nil, r.fail(resilience.NewRecoveryFailedError("Generator returned unreadable output", preview, err))
	}

	r.enter(StateNormalizing)
	pack := lessonpack.Normalize(obj, desc)

	r.enter(StateEnriching)
	enrichCtx, cancel := context.WithTimeout(work, o.opts.EnrichTimeout)
	if err := o.enricher.EnrichSlides(enrichCtx, pack.Slides, desc.Subject, desc.Topic); err != nil {
		r.logger.Warn("Slide enrichment incomplete", zap.Error(err))
	}
	cancel()
	fillMissingImages(pack.Slides)

	r.enter(StateDone)
	result := &Result{
		Pack:      pack,
		Remaining: decision.Remaining,
		Model:     o.generatorName(),
		Duration:  time.Since(r.start),
	}
	r.logger.Info("Pack generated",
		zap.Int("slides", len(pack.Slides)),
		zap.Int("objectives", len(pack.Objectives)),
		zap.Int64("remaining", decision.Remaining),
		zap.String("model", result.Model),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (o *Orchestrator) invoke(ctx context.Context, instr prompt.Instruction) (string, error) {
	if o.generator == nil {
		return "", resilience.NewUpstreamUnavailableError("Generation service not configured", generation.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	raw, err := o.generator.Generate(ctx, instr)
	if errors.Is(err, generation.ErrNotConfigured) {
		return "", resilience.NewUpstreamUnavailableError("Generation service not configured", err)
	}
	if err != nil {
		return "", resilience.NewGenerationFailedError("Generation failed", err)
	}
	return raw, nil
}

func (o *Orchestrator) refund(ctx context.Context, r *run, userID string) {
	if !o.opts.RefundOnFailure {
		return
	}
	if err := o.gate.Refund(ctx, userID); err != nil {
		r.logger.Error("Allowance refund failed", zap.Error(err))
	}
}

func (o *Orchestrator) generatorName() string {
	if o.generator == nil {
		return ""
	}
	return o.generator.Name()
}

// fillMissingImages covers slides an enricher skipped
func fillMissingImages(slides []lessonpack.Slide) {
	for i := range slides {
		if strings.TrimSpace(slides[i].Image) == "" {
			slides[i].Image = imagery.FallbackImage(nil, i)
		}
	}
}
