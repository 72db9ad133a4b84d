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

// Package allowance meters generation requests against a per-user balance.
package allowance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Rejection reasons reported in Decision.Reason
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonExhausted       = "exhausted"
)

// ErrExhausted is returned by a ledger when the user has no units left or has no
// ledger entry at all
var ErrExhausted = errors.New("allowance exhausted")

// Ledger is the per-user balance store. Consume must be atomic per user: with one
// unit left, at most one of any number of concurrent calls may succeed.
type Ledger interface {
	// Consume decrements the balance by one and returns what is left, or ErrExhausted
	Consume(ctx context.Context, userID string) (int64, error)
	// Refund gives one unit back to an existing entry
	Refund(ctx context.Context, userID string) error
	// Grant adds amount units, creating the entry if needed, and returns the new balance
	Grant(ctx context.Context, userID string, amount int64) (int64, error)
	// Balance returns the current balance; unknown users have zero
	Balance(ctx context.Context, userID string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Decision is the outcome of a gate check
type Decision struct {
	OK        bool
	Remaining int64
	Reason    string
}

// Gate admits or rejects generation requests
type Gate struct {
	ledger Ledger
	logger *zap.Logger
}

// NewGate creates a gate over the ledger
func NewGate(ledger Ledger, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{ledger: ledger, logger: logger}
}

// Consume spends one unit for userID. Rejections are reported in the Decision; the
// error is reserved for ledger failures. An empty user id never reaches the ledger.
func (g *Gate) Consume(ctx context.Context, userID string) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{Reason: ReasonUnauthenticated}, nil
	}

	remaining, err := g.ledger.Consume(ctx, userID)
	if errors.Is(err, ErrExhausted) {
		g.logger.Info("Allowance exhausted", zap.String("user_id", userID))
		return Decision{Reason: ReasonExhausted}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("allowance ledger: %w", err)
	}

	g.logger.Debug("Allowance consumed",
		zap.String("user_id", userID),
		zap.Int64("remaining", remaining))
	return Decision{OK: true, Remaining: remaining}, nil
}

// Refund returns one unit to userID
func (g *Gate) Refund(ctx context.Context, userID string) error {
	if err := g.ledger.Refund(ctx, userID); err != nil {
		return fmt.Errorf("allowance refund: %w", err)
	}
	g.logger.Info("Allowance refunded", zap.String("user_id", userID))
	return nil
}

// Balance returns the balance of userID
func (g *Gate) Balance(ctx context.Context, userID string) (int64, error) {
	return g.ledger.Balance(ctx, userID)
}

// Ledger exposes the underlying ledger for operator tooling and health checks
func (g *Gate) Ledger() Ledger {
	return g.ledger
}
