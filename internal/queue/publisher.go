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

// Package queue publishes submission lifecycle events to a Redis list.
// Downstream consumers (notifications, reporting) BRPOP from the list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubmissionEvent describes a submission reaching a final state.
type SubmissionEvent struct {
	SubmissionID string
	RequestType  string
	Status       string
	TicketID     int
	Error        string
}

// envelope is the JSON document pushed to the queue.
type envelope struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	OccurredAt   string `json:"occurred_at"`
	SubmissionID string `json:"submission_id"`
	RequestType  string `json:"request_type"`
	Status       string `json:"status"`
	TicketID     int    `json:"ticket_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Publisher sends submission events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       time.Now,
	}
}

func (p *Publisher) encode(evt SubmissionEvent) (string, []byte, error) {
	id := uuid.New().String()
	data, err := json.Marshal(envelope{
		ID:           id,
		Type:         "submission." + evt.Status,
		OccurredAt:   p.now().UTC().Format(time.RFC3339),
		SubmissionID: evt.SubmissionID,
		RequestType:  evt.RequestType,
		Status:       evt.Status,
		TicketID:     evt.TicketID,
		Error:        evt.Error,
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal submission event: %w", err)
	}
	return id, data, nil
}

// PublishSubmissionEvent pushes evt onto the queue.
func (p *Publisher) PublishSubmissionEvent(ctx context.Context, evt SubmissionEvent) error {
	id, data, err := p.encode(evt)
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(data)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published submission event",
		"event_id", id,
		"submission_id", evt.SubmissionID,
		"status", evt.Status,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
