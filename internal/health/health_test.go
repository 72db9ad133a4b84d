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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/lessonpack/internal/resilience"
)

func healthy(context.Context) error { return nil }

func TestManager_Check_AllHealthy(t *testing.T) {
	m := NewManager("lessonpack", "1.0.0", zaptest.NewLogger(t))
	m.AddChecker("ledger", DatabaseHealthChecker("ledger", healthy))
	m.AddChecker("store", DatabaseHealthChecker("store", healthy))
	m.AddChecker("generator", CredentialChecker("openai", true))

	result := m.Check(context.Background())

	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "lessonpack", result.Service)
	assert.Equal(t, "1.0.0", result.Version)
	assert.Len(t, result.Dependencies, 3)
	assert.Contains(t, result.Metadata, "go_version")
	for name, dep := range result.Dependencies {
		assert.Equal(t, StatusHealthy, dep.Status, name)
		assert.False(t, dep.Timestamp.IsZero())
	}
}

func TestManager_Check_DegradedStatus(t *testing.T) {
	m := NewManager("lessonpack", "1.0.0", zaptest.NewLogger(t))
	m.AddChecker("ledger", DatabaseHealthChecker("ledger", healthy))
	m.AddChecker("generator", CredentialChecker("openai", false))

	result := m.Check(context.Background())

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Dependencies["generator"].Error, "openai credential not configured")
}

func TestManager_Check_UnhealthyWins(t *testing.T) {
	m := NewManager("lessonpack", "1.0.0", zaptest.NewLogger(t))
	m.AddChecker("generator", CredentialChecker("openai", false))
	m.AddChecker("ledger", DatabaseHealthChecker("ledger", func(context.Context) error {
		return errors.New("disk I/O error")
	}))

	result := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, StatusUnhealthy, result.Dependencies["ledger"].Status)
}

func TestManager_Check_Timeout(t *testing.T) {
	m := NewManager("lessonpack", "1.0.0", zaptest.NewLogger(t))
	m.SetTimeout(50 * time.Millisecond)
	m.AddChecker("slow", DatabaseHealthChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	result := m.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDegraded, result.Dependencies["slow"].Status)
}

func TestManager_AddCheckerFunc(t *testing.T) {
	m := NewManager("lessonpack", "1.0.0", zaptest.NewLogger(t))
	m.AddCheckerFunc("providers", func(context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Metadata: map[string]interface{}{"unsplash": false}}
	})

	result := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, false, result.Dependencies["providers"].Metadata["unsplash"])
	assert.False(t, result.Dependencies["providers"].Timestamp.IsZero())
}

func TestBreakerChecker(t *testing.T) {
	stats := []resilience.CircuitBreakerStats{
		{Name: "imagery-unsplash", State: resilience.CircuitClosed},
		{Name: "imagery-wikimedia", State: resilience.CircuitClosed},
	}
	checker := BreakerChecker(func() []resilience.CircuitBreakerStats { return stats })

	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "closed", result.Metadata["imagery-unsplash"])

	stats[1].State = resilience.CircuitOpen
	result = checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Error, "imagery-wikimedia")
}

func TestIsTemporaryError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("context deadline exceeded"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table: allowance"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTemporaryError(tt.err), "%v", tt.err)
	}
}

func TestManager_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		ping       func(context.Context) error
		wantStatus int
		wantHealth string
	}{
		{name: "healthy", ping: healthy, wantStatus: http.StatusOK, wantHealth: StatusHealthy},
		{
			name:       "unhealthy",
			ping:       func(context.Context) error { return errors.New("disk full") },
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("lessonpack", "test", zaptest.NewLogger(t))
			m.AddChecker("store", DatabaseHealthChecker("store", tt.ping))

			r := gin.New()
			r.GET("/health", m.Handler())

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantHealth, body.Status)
		})
	}
}
