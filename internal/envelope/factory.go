// Package envelope implements the message envelope & factory (spec §4.1,
// C1), grounded on the teacher's header/correlation propagation pattern
// visible in components/consumer's handlers (libCommons.NewHeaderIDFromContext,
// correlation carried via context) generalized into an explicit factory.
package envelope

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

const protocolVersion = 1

// Factory creates envelopes with fresh, monotonically sortable message IDs
// and a fixed producer identity ("name@version").
type Factory struct {
	Producer string
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
}

// NewFactory builds a Factory for the given producer ("service@semver").
func NewFactory(producer string) *Factory {
	return &Factory{
		Producer: producer,
		entropy:  ulid.Monotonic(ulidReader(), 0),
		now:      time.Now,
	}
}

// Option configures an envelope produced by Create/Reply/Batch.
type Option func(*domain.Envelope)

// WithIdempotencyKey attaches a business-meaningful idempotency key. Keys
// are always caller-supplied, never generated (spec §4.1).
func WithIdempotencyKey(key string) Option {
	return func(e *domain.Envelope) { e.IdempotencyKey = key }
}

// WithTenant attaches a tenant id.
func WithTenant(tenantID string) Option {
	return func(e *domain.Envelope) { e.TenantID = tenantID }
}

// WithTraceID attaches a trace id.
func WithTraceID(traceID string) Option {
	return func(e *domain.Envelope) { e.TraceID = traceID }
}

// WithPriority sets the 0-9 priority.
func WithPriority(p int) Option {
	return func(e *domain.Envelope) { e.Priority = p }
}

// WithHeaders merges arbitrary headers.
func WithHeaders(h map[string]any) Option {
	return func(e *domain.Envelope) {
		if e.Headers == nil {
			e.Headers = map[string]any{}
		}

		for k, v := range h {
			e.Headers[k] = v
		}
	}
}

// withCorrelationID is internal — callers get correlation via Create (fresh)
// or Reply/Batch (inherited), never directly.
func withCorrelationID(id string) Option {
	return func(e *domain.Envelope) { e.CorrelationID = id }
}

func withCausationID(id string) Option {
	return func(e *domain.Envelope) { e.CausationID = id }
}

// newID mints a fresh sortable unique id.
func (f *Factory) newID() string {
	return ulid.MustNew(ulid.Timestamp(f.now()), f.entropy).String()
}

// Create produces a fresh envelope with a new correlation_id (unless an
// Option supplies one via Reply/Batch).
func (f *Factory) Create(schema string, data any, opts ...Option) domain.Envelope {
	e := domain.Envelope{
		Schema:     schema,
		MessageID:  f.newID(),
		OccurredAt: f.now().UTC(),
		Producer:   f.Producer,
		Version:    protocolVersion,
		Data:       data,
	}

	if e.CorrelationID == "" {
		e.CorrelationID = f.newID()
	}

	for _, opt := range opts {
		opt(&e)
	}

	if e.CorrelationID == "" {
		e.CorrelationID = e.MessageID
	}

	return e
}

// Reply produces an envelope descending from parent: correlation_id is
// inherited, causation_id is set to parent's message_id (spec §4.1).
func (f *Factory) Reply(parent domain.Envelope, schema string, data any, opts ...Option) domain.Envelope {
	all := append([]Option{
		withCorrelationID(parent.CorrelationID),
		withCausationID(parent.MessageID),
	}, opts...)

	return f.Create(schema, data, all...)
}

// Batch produces len(items) envelopes sharing one fresh correlation_id
// (spec §4.1).
func (f *Factory) Batch(schema string, items []any, opts ...Option) []domain.Envelope {
	correlationID := f.newID()
	out := make([]domain.Envelope, 0, len(items))

	for _, item := range items {
		all := append([]Option{withCorrelationID(correlationID)}, opts...)
		out = append(out, f.Create(schema, item, all...))
	}

	return out
}
