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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bcem/portal/internal/models"
)

// Custom field cache backends.
const (
	CacheDirect = "direct"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// OAuthConfig holds optional client-credentials settings for the helpdesk.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HelpdeskConfig holds the helpdesk API connection.
type HelpdeskConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string

	// MailboxID is zero when the mailbox should be discovered.
	MailboxID int
	Timeout   time.Duration
	OAuth     OAuthConfig
}

// UsesOAuth reports whether client credentials are configured.
func (h HelpdeskConfig) UsesOAuth() bool {
	return h.OAuth.TokenURL != "" && h.OAuth.ClientID != "" && h.OAuth.ClientSecret != ""
}

// RedisConfig holds the Redis connection and what the portal keeps there.
type RedisConfig struct {
	URL              string
	EventsQueue      string
	CustomFieldCache string
	CustomFieldTTL   time.Duration
	DedupTTL         time.Duration
}

// ResubmitConfig controls the background retry of failed submissions.
type ResubmitConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

// Config holds all configuration for the portal.
type Config struct {
	Helpdesk HelpdeskConfig

	FormSchemaPath     string
	CustomFieldMapping models.OrderedMap
	TagsByType         map[string][]string
	SubjectTemplates   map[string]string
	RequestTypeValues  map[string]string
	BodyExcludedFields []string
	DefaultEmailDomain string

	Redis       RedisConfig
	DatabaseURL string
	Resubmit    ResubmitConfig

	Port            int
	SubmitRateLimit int // submissions per minute per client IP
	LogLevel        string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Helpdesk struct {
		BaseURL      string `yaml:"base_url"`
		APIKey       string `yaml:"api_key"`
		APIKeyHeader string `yaml:"api_key_header"`
		MailboxID    string `yaml:"mailbox_id"`
		Timeout      string `yaml:"timeout"`
		OAuth        struct {
			TokenURL     string   `yaml:"token_url"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
	} `yaml:"helpdesk"`

	FormSchemaPath     string              `yaml:"form_schema_path"`
	CustomFieldMapping models.OrderedMap   `yaml:"custom_field_mapping"`
	TagsByType         map[string][]string `yaml:"tags_by_type"`
	SubjectTemplates   map[string]string   `yaml:"subject_templates"`
	RequestTypeValues  map[string]string   `yaml:"request_type_values"`
	BodyExcludedFields []string            `yaml:"body_excluded_fields"`
	DefaultEmailDomain string              `yaml:"default_email_domain"`

	Redis struct {
		URL              string `yaml:"url"`
		EventsQueue      string `yaml:"events_queue"`
		CustomFieldCache string `yaml:"custom_field_cache"`
		CustomFieldTTL   string `yaml:"custom_field_ttl"`
		DedupTTL         string `yaml:"dedup_ttl"`
	} `yaml:"redis"`

	DatabaseURL string `yaml:"database_url"`

	Resubmit struct {
		Interval    string `yaml:"interval"`
		MaxAttempts int    `yaml:"max_attempts"`
		BatchSize   int    `yaml:"batch_size"`
	} `yaml:"resubmit"`

	Port int `yaml:"port"`
}

// Load reads an optional .env file, then CONFIG_PATH (default
// /app/config/config.yaml).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for settings the file leaves empty.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	mailboxID, err := parseInt("helpdesk.mailbox_id", firstNonEmpty(raw.Helpdesk.MailboxID, os.Getenv("HELPDESK_MAILBOX_ID")))
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("helpdesk.timeout", raw.Helpdesk.Timeout, envOrDefaultDuration("HELPDESK_TIMEOUT", 30*time.Second))
	if err != nil {
		return nil, err
	}
	fieldTTL, err := parseDuration("redis.custom_field_ttl", raw.Redis.CustomFieldTTL, envOrDefaultDuration("CUSTOM_FIELD_TTL", 5*time.Minute))
	if err != nil {
		return nil, err
	}
	dedupTTL, err := parseDuration("redis.dedup_ttl", raw.Redis.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 24*time.Hour))
	if err != nil {
		return nil, err
	}
	resubmitInterval, err := parseDuration("resubmit.interval", raw.Resubmit.Interval, envOrDefaultDuration("RESUBMIT_INTERVAL", 5*time.Minute))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Helpdesk: HelpdeskConfig{
			BaseURL:      firstNonEmpty(raw.Helpdesk.BaseURL, os.Getenv("HELPDESK_BASE_URL")),
			APIKey:       firstNonEmpty(raw.Helpdesk.APIKey, os.Getenv("HELPDESK_API_KEY")),
			APIKeyHeader: firstNonEmpty(raw.Helpdesk.APIKeyHeader, envOrDefault("HELPDESK_API_KEY_HEADER", "X-FreeScout-API-Key")),
			MailboxID:    mailboxID,
			Timeout:      timeout,
			OAuth: OAuthConfig{
				TokenURL:     firstNonEmpty(raw.Helpdesk.OAuth.TokenURL, os.Getenv("HELPDESK_OAUTH_TOKEN_URL")),
				ClientID:     firstNonEmpty(raw.Helpdesk.OAuth.ClientID, os.Getenv("HELPDESK_OAUTH_CLIENT_ID")),
				ClientSecret: firstNonEmpty(raw.Helpdesk.OAuth.ClientSecret, os.Getenv("HELPDESK_OAUTH_CLIENT_SECRET")),
				Scopes:       raw.Helpdesk.OAuth.Scopes,
			},
		},

		FormSchemaPath:     firstNonEmpty(raw.FormSchemaPath, envOrDefault("FORM_SCHEMA_PATH", "/app/config/forms.yaml")),
		CustomFieldMapping: raw.CustomFieldMapping,
		TagsByType:         raw.TagsByType,
		SubjectTemplates:   raw.SubjectTemplates,
		RequestTypeValues:  raw.RequestTypeValues,
		BodyExcludedFields: raw.BodyExcludedFields,
		DefaultEmailDomain: firstNonEmpty(raw.DefaultEmailDomain, os.Getenv("DEFAULT_EMAIL_DOMAIN")),

		Redis: RedisConfig{
			URL:              firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
			EventsQueue:      firstNonEmpty(raw.Redis.EventsQueue, envOrDefault("EVENTS_QUEUE", "submission_events")),
			CustomFieldCache: strings.ToLower(firstNonEmpty(raw.Redis.CustomFieldCache, envOrDefault("CUSTOM_FIELD_CACHE", CacheDirect))),
			CustomFieldTTL:   fieldTTL,
			DedupTTL:         dedupTTL,
		},
		DatabaseURL: firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),

		Resubmit: ResubmitConfig{
			Interval:    resubmitInterval,
			MaxAttempts: firstPositive(raw.Resubmit.MaxAttempts, envOrDefaultInt("RESUBMIT_MAX_ATTEMPTS", 5)),
			BatchSize:   firstPositive(raw.Resubmit.BatchSize, envOrDefaultInt("RESUBMIT_BATCH_SIZE", 50)),
		},

		Port:            firstPositive(raw.Port, envOrDefaultInt("PORT", 8080)),
		SubmitRateLimit: envOrDefaultInt("SUBMIT_RATE_LIMIT", 30),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Helpdesk.BaseURL == "" {
		errs = append(errs, errors.New("helpdesk.base_url is required"))
	}
	if c.Helpdesk.APIKey == "" && !c.Helpdesk.UsesOAuth() {
		errs = append(errs, errors.New("helpdesk.api_key or helpdesk.oauth credentials are required"))
	}
	switch c.Redis.CustomFieldCache {
	case CacheDirect, CacheMemory, CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("redis.custom_field_cache must be %s, %s or %s, got %q",
			CacheDirect, CacheMemory, CacheRedis, c.Redis.CustomFieldCache))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if c.Resubmit.Interval <= 0 {
		errs = append(errs, fmt.Errorf("resubmit.interval must be positive, got %s", c.Resubmit.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func parseInt(name, v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: %q is not a valid id", name, v)
	}
	return n, nil
}

func parseDuration(name, v string, fallback time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
