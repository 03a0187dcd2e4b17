// Package domain holds the aggregate and value types shared across the
// pipeline, grounded on the teacher's common/mmodel layout: one small file
// per aggregate, plain structs, JSON tags, enum files kept separate.
package domain

import "time"

// Envelope is the canonical broker message shape (spec §3, §6.2).
type Envelope struct {
	Schema         string         `json:"schema"`
	MessageID      string         `json:"message_id"`
	CorrelationID  string         `json:"correlation_id"`
	CausationID    string         `json:"causation_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Producer       string         `json:"producer"`
	Version        int            `json:"version"`
	TraceID        string         `json:"trace_id,omitempty"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Priority       int            `json:"priority,omitempty"`
	TTLMillis      int64          `json:"ttl,omitempty"`
	RetryCount     int            `json:"retry_count,omitempty"`
	Headers        map[string]any `json:"headers,omitempty"`
	Data           any            `json:"data"`
}
