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

package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/generation"
	"github.com/your-org/lessonpack/internal/prompt"
)

const (
	// DefaultModel is used when the configuration does not name one
	DefaultModel = "gpt-4.1-mini"
	// DefaultTimeout bounds a single chat completion call
	DefaultTimeout = 90 * time.Second
)

// Options configures the OpenAI backend
type Options struct {
	APIKey   string
	Endpoint string
	Settings generation.Settings
	Timeout  time.Duration
	// JSONMode asks the API for a json_object response format
	JSONMode bool
}

// Client wraps the go-openai client as a generation.Generator
type Client struct {
	client  *openai.Client
	logger  *zap.Logger
	opts    Options
	hasKey  bool
	timeout time.Duration
}

var _ generation.Generator = (*Client)(nil)

// NewClient creates the OpenAI backend. A missing API key is not an error here: the
// client is still built and every Generate call reports generation.ErrNotConfigured.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Settings.Model == "" {
		opts.Settings.Model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.Endpoint != "" {
		cfg.BaseURL = strings.TrimRight(opts.Endpoint, "/")
	}

	c := &Client{
		client:  openai.NewClientWithConfig(cfg),
		logger:  logger,
		opts:    opts,
		hasKey:  strings.TrimSpace(opts.APIKey) != "",
		timeout: timeout,
	}

	logger.Info("OpenAI client initialized",
		zap.String("model", opts.Settings.Model),
		zap.Int("max_tokens", opts.Settings.MaxTokens),
		zap.Float64("temperature", opts.Settings.Temperature),
		zap.Bool("json_mode", opts.JSONMode),
		zap.Bool("api_key_present", c.hasKey),
	)

	return c
}

// Name identifies the backend in logs
func (c *Client) Name() string {
	return "openai/" + c.opts.Settings.Model
}

// Generate sends the instruction as a single chat completion
func (c *Client) Generate(ctx context.Context, instr prompt.Instruction) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", generation.ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.opts.Settings.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instr.System},
			{Role: openai.ChatMessageRoleUser, Content: instr.User},
		},
		MaxTokens:   c.opts.Settings.MaxTokens,
		Temperature: float32(c.opts.Settings.Temperature),
	}
	if c.opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.logger.Debug("Creating chat completion",
		zap.String("model", req.Model),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", float64(req.Temperature)),
		zap.Int("estimated_prompt_tokens", prompt.EstimateTokens(instr.System+instr.User)),
	)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.handleAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", generation.ErrEmptyOutput)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: finish reason %q", generation.ErrEmptyOutput, resp.Choices[0].FinishReason)
	}

	c.logger.Info("Chat completion successful",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)

	return content, nil
}

// handleAPIError classifies OpenAI errors. Rejected credentials count as
// misconfiguration; everything else is a failed call.
func (c *Client) handleAPIError(err error) error {
	status := 0
	message := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	c.logger.Warn("OpenAI request failed",
		zap.Int("status_code", status),
		zap.String("message", truncateText(message, 200)),
	)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: invalid API key or unauthorized access (status %d)", generation.ErrNotConfigured, status)
	case 0:
		return fmt.Errorf("OpenAI client error: %w", err)
	default:
		return fmt.Errorf("OpenAI API error (status %d): %s", status, message)
	}
}

// truncateText truncates text to a maximum length for logging
func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
