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

// Package gemini is the Google Gemini generation backend.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/your-org/lessonpack/internal/generation"
	"github.com/your-org/lessonpack/internal/prompt"
)

// DefaultModel is used when the configuration does not name one
const DefaultModel = "gemini-2.5-flash"

// Options configures the Gemini backend. An empty Endpoint uses the public API.
type Options struct {
	APIKey   string
	Endpoint string
	Settings generation.Settings
	Timeout  time.Duration
}

// Client generates lesson packs with the Gemini API
type Client struct {
	client  *genai.Client
	logger  *zap.Logger
	opts    Options
	initErr error
}

var _ generation.Generator = (*Client)(nil)

// NewClient creates the Gemini backend. Construction never fails; a missing key or
// a client that could not be built is reported by Generate as
// generation.ErrNotConfigured.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Settings.Model == "" {
		opts.Settings.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}

	c := &Client{logger: logger, opts: opts}
	if strings.TrimSpace(opts.APIKey) == "" {
		c.initErr = fmt.Errorf("%w: GEMINI_API_KEY missing", generation.ErrNotConfigured)
		return c
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.Endpoint != "" {
		clientCfg.HTTPOptions.BaseURL = opts.Endpoint
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		c.initErr = fmt.Errorf("%w: %v", generation.ErrNotConfigured, err)
		logger.Error("Failed to create GenAI client", zap.Error(err))
		return c
	}
	c.client = client

	logger.Info("Gemini client initialized",
		zap.String("model", opts.Settings.Model),
		zap.Int("max_tokens", opts.Settings.MaxTokens),
		zap.Float64("temperature", opts.Settings.Temperature),
	)
	return c
}

// Name identifies the backend in logs
func (c *Client) Name() string {
	return "gemini/" + c.opts.Settings.Model
}

// Generate sends the instruction as a single GenerateContent call
func (c *Client) Generate(ctx context.Context, instr prompt.Instruction) (string, error) {
	if c.initErr != nil {
		return "", c.initErr
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instr.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.opts.Settings.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	if c.opts.Settings.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.opts.Settings.MaxTokens)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Settings.Model, genai.Text(instr.User), cfg)
	if err != nil {
		c.logger.Warn("Gemini request failed", zap.Error(err))
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", generation.ErrEmptyOutput
	}

	fields := []zap.Field{zap.Duration("latency", time.Since(start))}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	c.logger.Info("Gemini generation successful", fields...)

	return text, nil
}
