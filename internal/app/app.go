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

// Package app wires configuration into the long-lived portal components
// shared by the server and the resubmit command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/portal/internal/config"
	"github.com/bcem/portal/internal/dedup"
	"github.com/bcem/portal/internal/fieldcache"
	"github.com/bcem/portal/internal/formschema"
	"github.com/bcem/portal/internal/helpdesk"
	"github.com/bcem/portal/internal/queue"
	"github.com/bcem/portal/internal/submission"
	"github.com/bcem/portal/internal/ticket"
)

// App holds the connected components.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Schema    *formschema.Schema
	Helpdesk  *helpdesk.Client
	Builder   *ticket.Builder
	Store     *submission.Store
	Publisher *queue.Publisher
	Processor *submission.Processor
}

// SetupLogging installs a JSON slog handler at the given level
// (debug, info, warn, error).
func SetupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

// TicketConfig converts loaded configuration into builder settings.
func TicketConfig(cfg *config.Config) *ticket.Config {
	return &ticket.Config{
		MailboxID:          cfg.Helpdesk.MailboxID,
		CustomFieldMapping: cfg.CustomFieldMapping,
		TagsByType:         cfg.TagsByType,
		SubjectTemplates:   cfg.SubjectTemplates,
		RequestTypeValues:  cfg.RequestTypeValues,
		BodyExcludedFields: cfg.BodyExcludedFields,
		DefaultEmailDomain: cfg.DefaultEmailDomain,
	}
}

// New connects to Postgres and Redis and builds the submission pipeline.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	schema, err := formschema.Load(cfg.FormSchemaPath)
	if err != nil {
		return nil, err
	}
	a.Schema = schema
	slog.Info("form schema loaded", "path", cfg.FormSchemaPath, "request_types", len(schema.Keys()))

	// --- Connect to PostgreSQL ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	a.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opt)

	a.Publisher = queue.NewPublisher(a.Redis, cfg.Redis.EventsQueue)
	if err := a.Publisher.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	slog.Info("connected to Redis")

	// --- Submission Store (Postgres) ---
	a.Store, err = submission.NewStore(ctx, pool)
	if err != nil {
		a.Close()
		return nil, err
	}

	// --- Helpdesk Client ---
	hc := helpdesk.Config{
		BaseURL:      cfg.Helpdesk.BaseURL,
		APIKey:       cfg.Helpdesk.APIKey,
		APIKeyHeader: cfg.Helpdesk.APIKeyHeader,
		Timeout:      cfg.Helpdesk.Timeout,
	}
	if cfg.Helpdesk.UsesOAuth() {
		hc.HTTPClient = helpdesk.OAuthHTTPClient(ctx, helpdesk.OAuthConfig{
			TokenURL:     cfg.Helpdesk.OAuth.TokenURL,
			ClientID:     cfg.Helpdesk.OAuth.ClientID,
			ClientSecret: cfg.Helpdesk.OAuth.ClientSecret,
			Scopes:       cfg.Helpdesk.OAuth.Scopes,
		})
	}
	a.Helpdesk = helpdesk.NewClient(hc)

	// --- Custom Field Source ---
	var fields ticket.FieldSource = fieldcache.NewDirect(a.Helpdesk)
	switch cfg.Redis.CustomFieldCache {
	case config.CacheMemory:
		fields = fieldcache.NewMemory(fields, cfg.Redis.CustomFieldTTL)
	case config.CacheRedis:
		fields = fieldcache.NewRedis(a.Redis, fields, cfg.Redis.CustomFieldTTL)
	}
	slog.Info("custom field source configured",
		"backend", cfg.Redis.CustomFieldCache,
		"ttl", cfg.Redis.CustomFieldTTL,
	)

	a.Builder = ticket.New(TicketConfig(cfg), a.Helpdesk, schema, fields)

	a.Processor = &submission.Processor{
		Builder:   a.Builder,
		Creator:   a.Helpdesk,
		Validator: schema,
		Store:     a.Store,
		Dedup:     dedup.NewFilter(a.Redis, cfg.Redis.DedupTTL),
		Events:    a.Publisher,
	}

	return a, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
