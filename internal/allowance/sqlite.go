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

package allowance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger keeps balances in a SQLite table
type SQLiteLedger struct {
	db *sql.DB
}

var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLiteLedger opens (or creates) the ledger database at dbPath.
// ":memory:" is supported.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	ledger := &SQLiteLedger{db: db}

	if err := ledger.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// Close closes the database connection
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ping checks the database connection
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *SQLiteLedger) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS allowance (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := l.db.Exec(query)
	return err
}

// Consume decrements the balance in a single conditional UPDATE
func (l *SQLiteLedger) Consume(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE allowance
		SET balance = balance - 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND balance > 0
		RETURNING balance
	`

	var remaining int64
	err := l.db.QueryRowContext(ctx, query, userID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume allowance: %w", err)
	}
	return remaining, nil
}

// Refund adds one unit back to an existing entry
func (l *SQLiteLedger) Refund(ctx context.Context, userID string) error {
	query := `
		UPDATE allowance
		SET balance = balance + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`

	res, err := l.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to refund allowance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no allowance entry for user %q", userID)
	}
	return nil
}

// Grant tops up the balance, creating the entry when it does not exist
func (l *SQLiteLedger) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	query := `
		INSERT INTO allowance (user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = CURRENT_TIMESTAMP
		RETURNING balance
	`

	var balance int64
	if err := l.db.QueryRowContext(ctx, query, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to grant allowance: %w", err)
	}
	return balance, nil
}

// Balance returns the current balance, zero for unknown users
func (l *SQLiteLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, "SELECT balance FROM allowance WHERE user_id = ?", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read allowance: %w", err)
	}
	return balance, nil
}
