package outbox

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
)

// BrokerPublisher adapts broker.Connection to the Publisher interface,
// opening one channel and reusing it across dispatch ticks.
type BrokerPublisher struct {
	Conn *broker.Connection

	ch *amqp.Channel
}

func NewBrokerPublisher(conn *broker.Connection) *BrokerPublisher {
	return &BrokerPublisher{Conn: conn}
}

func (p *BrokerPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	if err := p.Conn.Publish(ctx, ch, exchange, routingKey, body, headers); err != nil {
		// the channel may have been invalidated by the failed publish;
		// drop it so the next call reopens one.
		p.ch = nil
		return fmt.Errorf("dispatch publish: %w", err)
	}

	return nil
}

func (p *BrokerPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.Conn.Channel(ctx)
	if err != nil {
		return nil, err
	}

	p.ch = ch

	return ch, nil
}
