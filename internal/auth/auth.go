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

// Package auth verifies bearer tokens issued by the identity provider and
// exposes the caller's user id to HTTP handlers.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/resilience"
)

const userIDKey = "auth.user_id"

// ErrNoSecret is returned when no signing secret is configured
var ErrNoSecret = errors.New("auth secret not configured")

// Verifier checks HS256 tokens against a shared secret
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		leeway: 30 * time.Second,
	}
}

// Verify parses the token and returns its subject
func (v *Verifier) Verify(tokenString string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if token == nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// Middleware resolves the caller from the Authorization header
type Middleware struct {
	verifier *Verifier
	logger   *zap.Logger
}

// NewMiddleware creates the gin middleware
func NewMiddleware(verifier *Verifier, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{verifier: verifier, logger: logger}
}

// RequireAuth rejects requests without a valid token with 401
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := m.resolve(c)
		if err != nil {
			m.logger.Debug("Rejected request without valid token",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				resilience.NewUnauthorizedError("missing or invalid token", err).ToErrorResponse(requestID(c)))
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// OptionalAuth stores the user id when the token is valid and continues either way
func (m *Middleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := m.resolve(c); err == nil {
			c.Set(userIDKey, userID)
		}
		c.Next()
	}
}

func (m *Middleware) resolve(c *gin.Context) (string, error) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return m.verifier.Verify(token)
}

// UserID returns the authenticated user id, or "" when there is none
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func requestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}
