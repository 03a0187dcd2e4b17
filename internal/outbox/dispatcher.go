package outbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// DefaultTick and DefaultBatchSize are the spec §4.3 defaults.
const (
	DefaultTick      = 5 * time.Second
	DefaultBatchSize = 500

	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
	jitterFrac  = 0.25
)

// Publisher is the broker-facing side of the dispatch loop.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

// ExceptionOpener lets the dispatcher escalate an exhausted row (spec
// §4.3: "route the payload to the appropriate DLX and open an exception
// case") without this package depending on internal/exception directly.
type ExceptionOpener interface {
	OpenCase(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, reason string) error
}

// Dispatcher runs the periodic outbox-to-broker publish loop (C3).
type Dispatcher struct {
	Store     Store
	Publisher Publisher
	Exception ExceptionOpener
	Logger    mlog.Logger

	Tick      time.Duration
	BatchSize int
}

// Run blocks, ticking every d.Tick, until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	tick := d.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.DispatchOnce(ctx); err != nil {
				d.Logger.Errorf("outbox dispatch tick failed: %v", err)
			}
		}
	}
}

// DispatchOnce performs one fetch-and-publish pass (spec §4.3). Rows are
// grouped by (aggregate_type, aggregate_id) and published sequentially
// within each group to preserve per-aggregate order; groups themselves are
// not ordered relative to each other.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	rows, err := d.Store.FetchBatch(ctx, batchSize)
	if err != nil {
		return err
	}

	groups := groupByAggregate(rows)

	for _, group := range groups {
		for _, msg := range group {
			if err := d.dispatchOne(ctx, msg); err != nil {
				// a failure stops this aggregate's remaining rows from
				// publishing out of order; they stay pending for the
				// next tick.
				break
			}
		}
	}

	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg domain.OutboxMessage) error {
	headers := amqp.Table{"x-outbox-id": msg.ID}

	err := d.Publisher.Publish(ctx, msg.Exchange, msg.RoutingKey, msg.Payload, headers)
	if err == nil {
		return d.Store.MarkPublished(ctx, msg.ID)
	}

	if msg.AttemptCount+1 >= MaxAttempts {
		d.Logger.Errorf("outbox row %s exhausted retries, routing to DLX: %v", msg.ID, err)

		if dlxErr := d.Publisher.Publish(ctx, dlxFor(msg.Exchange), msg.RoutingKey, msg.Payload, headers); dlxErr != nil {
			d.Logger.Errorf("failed to publish outbox row %s to DLX: %v", msg.ID, dlxErr)
		}

		if d.Exception != nil {
			reason := fmt.Sprintf("outbox delivery exhausted after %d attempts: %v", MaxAttempts, err)
			if excErr := d.Exception.OpenCase(ctx, string(domain.CategoryReconcileVariance), "outbox_exhausted", msg, reason); excErr != nil {
				d.Logger.Errorf("failed to open exception case for outbox row %s: %v", msg.ID, excErr)
			}
		}

		return d.Store.MarkFailed(ctx, msg.ID, time.Now().UTC().Add(backoffCap), err.Error())
	}

	next := backoffFor(msg.AttemptCount + 1)
	d.Logger.Warnf("outbox row %s publish failed, retrying in %s: %v", msg.ID, next, err)

	return d.Store.MarkFailed(ctx, msg.ID, time.Now().UTC().Add(next), err.Error())
}

// dlxFor maps an outbox row's origin exchange to the DLX it dead-letters
// into (spec §4.3: "route the payload to the appropriate DLX"). Anything
// off the CRM/email topic goes to the shared payments DLX.
func dlxFor(exchange string) string {
	if exchange == broker.ExchangeCRMEmailTopic {
		return broker.ExchangeCRMEmailDLX
	}

	return broker.ExchangePaymentsDLX
}

// backoffFor implements backoff = min(base·2^n, cap) ± jitter (spec §4.3).
func backoffFor(attempt int) time.Duration {
	shift := attempt
	if shift > 10 {
		shift = 10 // avoid overflow; cap already bounds the result
	}

	base := backoffBase * time.Duration(int64(1)<<uint(shift))
	if base > backoffCap {
		base = backoffCap
	}

	delta := float64(base) * jitterFrac
	offset := (rand.Float64()*2 - 1) * delta

	return time.Duration(float64(base) + offset)
}

func groupByAggregate(rows []domain.OutboxMessage) [][]domain.OutboxMessage {
	order := make([]string, 0, len(rows))
	byKey := make(map[string][]domain.OutboxMessage)

	for _, r := range rows {
		key := r.AggregateType + ":" + r.AggregateID

		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}

		byKey[key] = append(byKey[key], r)
	}

	groups := make([][]domain.OutboxMessage, 0, len(order))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}

	return groups
}
