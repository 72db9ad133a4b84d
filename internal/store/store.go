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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/your-org/lessonpack/internal/lessonpack"
)

// ErrNotFound is returned when no pack matches the id and owner
var ErrNotFound = errors.New("pack not found")

// Store persists generated packs in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new pack store
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	// Initialize database schema
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initSchema creates the packs table if it doesn't exist
func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS packs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT,
			topic TEXT,
			grade TEXT,
			curriculum TEXT,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_packs_user ON packs (user_id, created_at DESC);
	`

	_, err := s.db.Exec(query)
	return err
}

// Summary is a listing row for a saved pack
type Summary struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Topic      string    `json:"topic"`
	Grade      string    `json:"grade"`
	Curriculum string    `json:"curriculum"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record is a saved pack with its metadata
type Record struct {
	Summary
	UserID string                 `json:"user_id"`
	Pack   *lessonpack.ContentPack `json:"data"`
}

// Save stores the pack for userID and returns its new id
func (s *Store) Save(ctx context.Context, userID string, pack *lessonpack.ContentPack) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if pack == nil {
		return "", errors.New("pack is required")
	}

	body, err := json.Marshal(pack)
	if err != nil {
		return "", fmt.Errorf("failed to encode pack: %w", err)
	}

	id := uuid.NewString()
	query := `
		INSERT INTO packs (id, user_id, subject, topic, grade, curriculum, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, id, userID,
		pack.Meta.Subject, pack.Meta.Topic, pack.Meta.Grade, pack.Meta.Curriculum,
		string(body), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert pack: %w", err)
	}

	return id, nil
}

// Get returns the pack with id if it belongs to userID
func (s *Store) Get(ctx context.Context, userID, id string) (*Record, error) {
	query := `
		SELECT id, user_id, subject, topic, grade, curriculum, body, created_at
		FROM packs WHERE id = ? AND user_id = ?
	`

	var rec Record
	var body string
	err := s.db.QueryRowContext(ctx, query, id, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Subject, &rec.Topic, &rec.Grade, &rec.Curriculum, &body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pack: %w", err)
	}

	var pack lessonpack.ContentPack
	if err := json.Unmarshal([]byte(body), &pack); err != nil {
		return nil, fmt.Errorf("failed to decode pack %s: %w", id, err)
	}
	rec.Pack = &pack

	return &rec, nil
}

// Delete removes the pack with id if it belongs to userID
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM packs WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete pack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete pack: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the newest packs of userID first
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, subject, topic, grade, curriculum, created_at
		FROM packs WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query packs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Subject, &sum.Topic, &sum.Grade, &sum.Curriculum, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pack row: %w", err)
		}
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}
