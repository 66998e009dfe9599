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

package fieldcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/portal/internal/metrics"
	"github.com/bcem/portal/internal/models"
)

const redisKeyPrefix = "portal:custom_fields:"

// Redis shares cached definitions between portal instances. Redis
// failures never fail a build: the source is asked directly instead.
type Redis struct {
	rdb    *redis.Client
	source FieldSource
	ttl    time.Duration
}

// NewRedis creates a Redis backed cache in front of source. A ttl <= 0
// uses DefaultTTL.
func NewRedis(rdb *redis.Client, source FieldSource, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, source: source, ttl: ttl}
}

// CustomFields implements ticket.FieldSource.
func (r *Redis) CustomFields(ctx context.Context, mailboxID int) ([]models.ExternalCustomField, error) {
	mc := metrics.Get()
	key := fmt.Sprintf("%s%d", redisKeyPrefix, mailboxID)

	data, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var fields []models.ExternalCustomField
		if jsonErr := json.Unmarshal(data, &fields); jsonErr == nil {
			mc.FieldCache.WithLabelValues("redis", "hit").Inc()
			return fields, nil
		}
		slog.Warn("discarding unreadable cached custom fields", "mailbox_id", mailboxID)
		mc.FieldCache.WithLabelValues("redis", "miss").Inc()
	case errors.Is(err, redis.Nil):
		mc.FieldCache.WithLabelValues("redis", "miss").Inc()
	default:
		mc.FieldCache.WithLabelValues("redis", "error").Inc()
		slog.Warn("custom field cache unavailable, fetching directly",
			"mailbox_id", mailboxID,
			"error", err,
		)
		return r.source.CustomFields(ctx, mailboxID)
	}

	fields, err := r.source.CustomFields(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fields, nil
	}
	if err := r.rdb.Set(ctx, key, encoded, r.ttl).Err(); err != nil {
		slog.Warn("could not cache custom fields", "mailbox_id", mailboxID, "error", err)
	}
	return fields, nil
}

// Invalidate forgets one mailbox.
func (r *Redis) Invalidate(ctx context.Context, mailboxID int) error {
	key := fmt.Sprintf("%s%d", redisKeyPrefix, mailboxID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL: %w", err)
	}
	return nil
}
