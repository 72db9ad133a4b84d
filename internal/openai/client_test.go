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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/lessonpack/internal/generation"
	"github.com/your-org/lessonpack/internal/prompt"
)

// mockOpenAIServer answers /v1/chat/completions with a fixed status and body
func mockOpenAIServer(t testing.TB, status int, body string, captured *map[string]any, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Logf("Mock server: unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

// createMockChatResponse creates a mock chat completion response
func createMockChatResponse(content string) string {
	encoded, _ := json.Marshal(content)
	return `{
		"id": "chatcmpl-test",
		"object": "chat.completion",
		"created": 1234567890,
		"model": "gpt-4.1-mini",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": ` + string(encoded) + `},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150}
	}`
}

func newTestClient(t *testing.T, url, apiKey string) *Client {
	return NewClient(Options{
		APIKey:   apiKey,
		Endpoint: url + "/v1",
		Settings: generation.Settings{Model: "gpt-4.1-mini", MaxTokens: 2500, Temperature: 0.3},
		Timeout:  5 * time.Second,
		JSONMode: true,
	}, zaptest.NewLogger(t))
}

var testInstruction = prompt.Instruction{System: "system text", User: "user text"}

func TestGenerateSuccess(t *testing.T) {
	var captured map[string]any
	server := mockOpenAIServer(t, http.StatusOK, createMockChatResponse(`{"slides":[]}`), &captured, nil)
	defer server.Close()

	client := newTestClient(t, server.URL, "sk-test1234567890abcdef") // pragma: allowlist secret
	out, err := client.Generate(context.Background(), testInstruction)
	require.NoError(t, err)
	assert.Equal(t, `{"slides":[]}`, out)

	assert.Equal(t, "gpt-4.1-mini", captured["model"])
	assert.EqualValues(t, 2500, captured["max_tokens"])
	assert.InDelta(t, 0.3, captured["temperature"], 0.0001)
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user text", messages[1].(map[string]any)["content"])
}

func TestGenerateMissingKeyMakesNoCall(t *testing.T) {
	var calls int32
	server := mockOpenAIServer(t, http.StatusOK, createMockChatResponse("{}"), nil, &calls)
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	_, err := client.Generate(context.Background(), testInstruction)
	assert.ErrorIs(t, err, generation.ErrNotConfigured)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		notConfigured bool
		empty         bool
	}{
		{
			name:          "unauthorized",
			status:        http.StatusUnauthorized,
			body:          `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			notConfigured: true,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"The server had an error","type":"server_error"}}`,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`,
		},
		{
			name:   "empty content",
			status: http.StatusOK,
			body:   createMockChatResponse("   "),
			empty:  true,
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"x","object":"chat.completion","choices":[],"usage":{}}`,
			empty:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := mockOpenAIServer(t, tt.status, tt.body, nil, &calls)
			defer server.Close()

			client := newTestClient(t, server.URL, "sk-test1234567890abcdef") // pragma: allowlist secret
			out, err := client.Generate(context.Background(), testInstruction)
			require.Error(t, err)
			assert.Empty(t, out)
			assert.Equal(t, tt.notConfigured, isNotConfigured(err))
			if tt.empty {
				assert.ErrorIs(t, err, generation.ErrEmptyOutput)
			}
			assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retries")
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Options{
		APIKey:   "sk-test1234567890abcdef", // pragma: allowlist secret
		Endpoint: server.URL + "/v1",
		Timeout:  50 * time.Millisecond,
	}, zaptest.NewLogger(t))

	_, err := client.Generate(context.Background(), testInstruction)
	require.Error(t, err)
	assert.False(t, isNotConfigured(err))
}

func TestName(t *testing.T) {
	client := NewClient(Options{}, nil)
	assert.Equal(t, "openai/"+DefaultModel, client.Name())
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, "abc...", truncateText("abcdef", 3))
}

func isNotConfigured(err error) bool {
	return errors.Is(err, generation.ErrNotConfigured)
}
