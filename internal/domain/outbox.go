package domain

import "time"

// OutboxMessage is a row of outbox_messages (spec §3, §4.3).
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Exchange      string
	RoutingKey    string
	CorrelationID string
	AttemptCount  int
	NextRetryAt   *time.Time
	PublishedAt   *time.Time
	LastError     string
	CreatedAt     time.Time
}

// IdempotencyRecord is a row of the idempotency table (spec §3, §4.4).
type IdempotencyRecord struct {
	HandlerName string
	Key         string
	ResultState string // "in_flight" | "done"
	CreatedAt   time.Time
}

// PaymentEvent is a row of payment_events, the hash-chained per-payment
// audit log (spec §3, §4.4).
type PaymentEvent struct {
	EventID       string
	PaymentID     string
	Type          string
	Data          []byte
	CorrelationID string
	Timestamp     time.Time
	PrevEventHash string
	EventHash     string
}
