// Copyright (c) 2026 John Earle
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

// Package dedup provides idempotent submission handling using Redis SETNX
// with a TTL. A client that retries a submit with the same Idempotency-Key
// gets the original submission back instead of a second ticket.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long an idempotency key is remembered.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "portal:idem:"
)

// Filter tracks which idempotency keys have already been used.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A ttl <= 0 uses
// DefaultTTL.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb: rdb,
		ttl: ttl,
	}
}

// Claim reserves key for submissionID. When the key was already claimed it
// returns false and the submission id stored by the first claim.
func (f *Filter) Claim(ctx context.Context, key, submissionID string) (bool, string, error) {
	k := keyPrefix + key

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, k, submissionID, f.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("dedup SETNX: %w", err)
	}
	if set {
		return true, submissionID, nil
	}

	existing, err := f.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may retry.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("dedup GET: %w", err)
	}
	return false, existing, nil
}

// Release forgets key so the same submission can be sent again, e.g.
// after it was rejected by validation.
func (f *Filter) Release(ctx context.Context, key string) error {
	if err := f.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
