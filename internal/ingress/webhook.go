package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
)

// ProviderEvent is a parsed provider payload, still opaque at the ingress
// boundary: only enough is extracted here to build the routing key and the
// idempotency key, the rest rides through as Data.
type ProviderEvent struct {
	// EventID is the provider's own event identifier, used verbatim as the
	// outbound envelope's idempotency_key (spec §4.5).
	EventID string
	// Type distinguishes payment events from everything else a provider
	// sends through the same webhook (spec §4.5: "non-payment event types
	// are acknowledged as no-ops").
	Type      string
	IsPayment bool
	Data      any
}

// Provider parses and authenticates one payment provider's webhook shape.
type Provider interface {
	Name() string
	Secret() string
	ParseEvent(body []byte) (ProviderEvent, error)
}

// Handler verifies, parses, and forwards provider webhooks into the outbox
// (spec §4.5, C5).
type Handler struct {
	Factory *envelope.Factory
	Outbox  outboxAppender
	Now     func() time.Time
}

// outboxAppender is the minimal slice of outbox.Store this package needs,
// named locally to avoid a hard dependency on outbox's full Store surface.
type outboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

// HandleWebhook verifies the signature and timestamp, parses the body via
// provider, and — for payment events — appends an outbox row addressed to
// payments.topic with routing key payment.webhook.<provider>.<type>.
// Non-payment events return (nil, nil): the caller should ack with no
// further action.
func (h *Handler) HandleWebhook(ctx context.Context, provider Provider, timestamp string, rawBody []byte, signatureHex string) (*domain.Envelope, error) {
	if !VerifySignature(provider.Secret(), timestamp, rawBody, signatureHex) {
		return nil, loanerrors.ValidationError{Field: "signature", Reason: "mismatch", Message: "webhook signature verification failed"}
	}

	if err := CheckTimestamp(timestamp, h.Now()); err != nil {
		return nil, loanerrors.ValidationError{Field: "timestamp", Reason: "stale_or_future", Message: err.Error()}
	}

	event, err := provider.ParseEvent(rawBody)
	if err != nil {
		return nil, loanerrors.ValidationError{Field: "body", Reason: "unparseable", Message: err.Error()}
	}

	if !event.IsPayment {
		return nil, nil
	}

	env := h.Factory.Create("payment.webhook."+provider.Name()+"."+event.Type, event.Data,
		envelope.WithIdempotencyKey(event.EventID))

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook envelope: %w", err)
	}

	routingKey := "payment.webhook." + provider.Name() + "." + event.Type

	msg := domain.OutboxMessage{
		ID:            env.MessageID,
		AggregateType: "payment",
		AggregateID:   event.EventID,
		EventType:     env.Schema,
		Payload:       payload,
		Exchange:      broker.ExchangePaymentsTopic,
		RoutingKey:    routingKey,
		CorrelationID: env.CorrelationID,
		CreatedAt:     h.Now().UTC(),
	}

	if err := h.Outbox.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append webhook outbox row: %w", err)
	}

	return &env, nil
}
