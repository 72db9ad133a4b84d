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
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces ledger keys
const DefaultRedisKeyPrefix = "lessonpack:allowance:"

// consumeScript decrements only a positive balance; -1 means exhausted or unknown
var consumeScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return -1
end
if tonumber(v) <= 0 then
	return -1
end
return redis.call('DECR', KEYS[1])
`)

// refundScript increments only an existing entry
var refundScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('INCR', KEYS[1])
`)

// RedisOptions configures the Redis ledger
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLedger keeps one integer key per user
type RedisLedger struct {
	rdb    *goredis.Client
	prefix string
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger connects to Redis and verifies the connection
func NewRedisLedger(ctx context.Context, opts RedisOptions) (*RedisLedger, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultRedisKeyPrefix
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLedger{rdb: rdb, prefix: opts.KeyPrefix}, nil
}

func (l *RedisLedger) key(userID string) string {
	return l.prefix + userID
}

// Consume runs the decrement script atomically on the server
func (l *RedisLedger) Consume(ctx context.Context, userID string) (int64, error) {
	n, err := consumeScript.Run(ctx, l.rdb, []string{l.key(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to consume allowance: %w", err)
	}
	if n < 0 {
		return 0, ErrExhausted
	}
	return n, nil
}

// Refund adds one unit back to an existing entry
func (l *RedisLedger) Refund(ctx context.Context, userID string) error {
	n, err := refundScript.Run(ctx, l.rdb, []string{l.key(userID)}).Int64()
	if err != nil {
		return fmt.Errorf("failed to refund allowance: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("no allowance entry for user %q", userID)
	}
	return nil
}

// Grant tops up the balance
func (l *RedisLedger) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	n, err := l.rdb.IncrBy(ctx, l.key(userID), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to grant allowance: %w", err)
	}
	return n, nil
}

// Balance returns the current balance, zero for unknown users
func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	n, err := l.rdb.Get(ctx, l.key(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read allowance: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}
