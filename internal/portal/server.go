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

// Package portal serves the request portal's JSON API: request type
// discovery, submission intake, submission status and health checks.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcem/portal/internal/formschema"
	"github.com/bcem/portal/internal/models"
	"github.com/bcem/portal/internal/submission"
)

// DefaultMaxFileBytes caps a single uploaded attachment.
const DefaultMaxFileBytes = 10 << 20

// Submitter accepts new submissions.
type Submitter interface {
	Submit(ctx context.Context, form *models.FormSubmission, idemKey string) (*submission.Result, error)
}

// RecordGetter looks up stored submissions.
type RecordGetter interface {
	Get(ctx context.Context, id string) (*submission.Record, error)
}

// MailboxValidator checks the configured helpdesk mailbox.
type MailboxValidator interface {
	ValidateMailboxID(ctx context.Context) bool
}

// Pinger is a dependency reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the handler dependencies.
type Options struct {
	Schema    *formschema.Schema
	Submitter Submitter
	Records   RecordGetter
	Mailbox   MailboxValidator

	// Checks are pinged by /health, keyed by name.
	Checks map[string]Pinger

	MaxFileBytes int64
	// SubmitRateLimit is submissions per minute per client IP; 0 disables it.
	SubmitRateLimit int
}

// Handler serves the portal API.
type Handler struct {
	schema       *formschema.Schema
	submitter    Submitter
	records      RecordGetter
	mailbox      MailboxValidator
	checks       map[string]Pinger
	maxFileBytes int64
	rateLimit    int
}

// NewHandler creates a portal handler.
func NewHandler(opts Options) *Handler {
	maxFile := opts.MaxFileBytes
	if maxFile <= 0 {
		maxFile = DefaultMaxFileBytes
	}
	schema := opts.Schema
	if schema == nil {
		schema = &formschema.Schema{}
	}
	return &Handler{
		schema:       schema,
		submitter:    opts.Submitter,
		records:      opts.Records,
		mailbox:      opts.Mailbox,
		checks:       opts.Checks,
		maxFileBytes: maxFile,
		rateLimit:    opts.SubmitRateLimit,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.serveHealth)
	r.Get("/health/mailbox", h.serveMailboxHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/request-types", h.serveRequestTypes)

		r.Route("/requests", func(r chi.Router) {
			if h.rateLimit > 0 {
				r.With(httprate.LimitByIP(h.rateLimit, time.Minute)).Post("/", h.serveSubmit)
			} else {
				r.Post("/", h.serveSubmit)
			}
			r.Get("/{id}", h.serveSubmission)
		})
	})

	return r
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Serve starts the portal HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. Once ctx is cancelled the server
// drains in-flight requests for up to shutdownGrace and then closes stopped.
func Serve(ctx context.Context, port int, handler *Handler, shutdownGrace time.Duration) (ready, stopped <-chan struct{}, err error) {
	server := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind portal port %d: %w", port, err)
	}

	readyCh := make(chan struct{})
	stoppedCh := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("portal server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("portal server shutdown incomplete", "error", err)
			server.Close()
		}
		close(stoppedCh)
	}()

	go func() {
		slog.Info("portal server listening", "port", port)
		close(readyCh)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("portal server error", "error", err)
		}
	}()

	return readyCh, stoppedCh, nil
}
