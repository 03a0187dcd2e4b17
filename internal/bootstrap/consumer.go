package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/config"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

// EnvelopeHandler is the shape every pipeline component's Handle method
// takes, grounded on components/consumer/internal/bootstrap's per-queue
// handler registration, generalized from a raw-bytes handler to one typed
// on the envelope this worker's components all share.
type EnvelopeHandler func(ctx context.Context, env domain.Envelope) error

// queueBinding pairs one queue's declared options with the handler that
// owns it.
type queueBinding struct {
	Options broker.ConsumeOptions
	Handler broker.Handler
}

// registerQueues resolves each handler's broker.Topology entry (for its
// prefetch) and wraps it as a broker.Handler that unmarshals the envelope
// before dispatching.
func (s *Service) registerQueues(cfg *config.Config, handlers map[string]EnvelopeHandler) {
	specByName := make(map[string]broker.QueueSpec, len(broker.Topology))
	for _, spec := range broker.Topology {
		specByName[spec.Name] = spec
	}

	for queue, handle := range handlers {
		spec, ok := specByName[queue]
		if !ok {
			s.Logger.Errorf("no topology entry for queue %s, skipping registration", queue)
			continue
		}

		s.queues = append(s.queues, queueBinding{
			Options: broker.ConsumeOptions{
				Queue:       spec.Name,
				Prefetch:    spec.Prefetch,
				ConsumerTag: spec.Name,
				Workers:     cfg.ConsumerWorkersPerQueue,
			},
			Handler: envelopeHandler(handle),
		})
	}
}

// envelopeHandler adapts an EnvelopeHandler to broker.Handler by
// unmarshaling the delivery body into a domain.Envelope first.
func envelopeHandler(handle EnvelopeHandler) broker.Handler {
	return func(ctx context.Context, body []byte, _ amqp.Table) error {
		var env domain.Envelope

		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("unmarshal envelope: %w", err)
		}

		return handle(ctx, env)
	}
}
