// Package broker implements the broker topology & client (spec §4.2, C2),
// grounded on components/consumer/internal/adapters/rabbitmq/producer.rabbitmq.go
// (amqp091-go, publisher confirms) and common/mrabbitmq/rabbitmq.go (the
// connection-hub pattern: a struct holding the dial string, reconnecting
// lazily on first use).
package broker

import "time"

// Exchange names (spec §4.2). All are durable topic exchanges.
const (
	ExchangePaymentsTopic      = "payments.topic"
	ExchangePaymentsSaga       = "payments.saga"
	ExchangeNotificationsTopic = "notifications.topic"
	ExchangeCRMEmailTopic      = "crm.email.topic"
	ExchangeEventsTopic        = "events.topic"
	ExchangePaymentsDLX        = "payments.dlx"
	ExchangeCRMEmailDLX        = "crm.email.dlx"
)

// Queue names (spec §4.2).
const (
	QueueValidation     = "payments.validation"
	QueueClassification = "payments.classification"
	QueueAllocation     = "payments.allocation"
	QueueDistribution   = "payments.distribution"
	QueueReversal       = "payments.reversal"
	QueueReturned       = "payments.returned"
	QueueInvestorClawback = "investor.clawback"
	QueueCRMEmail       = "q.crm.email.v1"
)

// RetryQueue returns the paired retry lane for a primary queue name
// (spec §4.2: "<queue>.retry").
func RetryQueue(queue string) string { return queue + ".retry" }

// DLQ returns the dead-letter queue name for a primary queue name.
func DLQ(queue string) string { return queue + ".dlq" }

// QueueSpec describes one durable queue plus its retry/DLQ lane.
type QueueSpec struct {
	Name     string
	Exchange string
	// RoutingKeys this queue binds, e.g. "payment.*.received".
	RoutingKeys []string
	Prefetch    int
}

// Topology is the fixed set of queues this pipeline declares (spec §4.2,
// §5 prefetch table).
var Topology = []QueueSpec{
	{Name: QueueValidation, Exchange: ExchangePaymentsTopic, RoutingKeys: []string{"payment.*.received"}, Prefetch: 10},
	{Name: QueueClassification, Exchange: ExchangePaymentsTopic, RoutingKeys: []string{"payment.*.validated"}, Prefetch: 25},
	{Name: QueueAllocation, Exchange: ExchangePaymentsSaga, RoutingKeys: []string{"saga.payment.start"}, Prefetch: 15},
	{Name: QueueDistribution, Exchange: ExchangePaymentsTopic, RoutingKeys: []string{"payment.*.posted"}, Prefetch: 10},
	{Name: QueueReversal, Exchange: ExchangePaymentsSaga, RoutingKeys: []string{"saga.reversal.*"}, Prefetch: 5},
	{Name: QueueReturned, Exchange: ExchangePaymentsTopic, RoutingKeys: []string{"return.*"}, Prefetch: 10},
	{Name: QueueInvestorClawback, Exchange: ExchangePaymentsSaga, RoutingKeys: []string{"distribution.clawback"}, Prefetch: 10},
	{Name: QueueCRMEmail, Exchange: ExchangeCRMEmailTopic, RoutingKeys: []string{"notification.send"}, Prefetch: 5},
}

// BackoffCap is the fixed x-message-ttl of every *.retry queue: each retry
// waits this long, and the delay does not grow with the attempt count.
// BackoffJitter is applied only to the broker redial delay, not to retry
// queue delays.
const (
	BackoffCap    = 5 * time.Minute
	BackoffJitter = 0.25
)
