package broker

import (
	"context"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Handler processes one delivery body and returns an error classified by
// loanerrors.Classify to decide ack/nack/retry/DLQ (spec §4.2).
type Handler func(ctx context.Context, body []byte, headers amqp.Table) error

// ConsumeOptions configures one consumer loop (spec §4.2, §5).
type ConsumeOptions struct {
	Queue          string
	Prefetch       int
	ConsumerTag    string
	Workers        int
	HandlerTimeout time.Duration
}

// Consume runs opts.Workers goroutines pulling from opts.Queue, each on its
// own channel (spec §4.2: "Channels are per-consumer; a channel error does
// not tear down others"). It blocks until ctx is cancelled.
func Consume(ctx context.Context, conn *Connection, logger mlog.Logger, opts ConsumeOptions, handler Handler) error {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func(worker int) {
			errCh <- runWorker(ctx, conn, logger, opts, handler, worker)
		}(i)
	}

	var firstErr error

	for i := 0; i < workers; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func runWorker(ctx context.Context, conn *Connection, logger mlog.Logger, opts ConsumeOptions, handler Handler, worker int) error {
	ch, err := conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(opts.Queue, consumerTag(opts.ConsumerTag, worker), false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			handleDelivery(ctx, ch, logger, opts, handler, d)
		}
	}
}

func handleDelivery(ctx context.Context, ch *amqp.Channel, logger mlog.Logger, opts ConsumeOptions, handler Handler, d amqp.Delivery) {
	timeout := opts.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handler(hctx, d.Body, d.Headers)

	switch loanerrors.Classify(err) {
	case loanerrors.DispositionTreatAsSuccess, loanerrors.DispositionDrop:
		_ = d.Ack(false)
	case loanerrors.DispositionRetry:
		logger.Warnf("retryable error on %s, requeuing to retry lane: %v", opts.Queue, err)

		pubErr := ch.PublishWithContext(ctx, "", RetryQueue(opts.Queue), false, false, amqp.Publishing{
			Headers:      d.Headers,
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
		})
		if pubErr != nil {
			logger.Errorf("republish to %s failed, requeuing on %s: %v", RetryQueue(opts.Queue), opts.Queue, pubErr)
			_ = d.Nack(false, true)

			return
		}

		_ = d.Ack(false)
	case loanerrors.DispositionTerminal, loanerrors.DispositionHalt:
		logger.Errorf("terminal error on %s, routing to dlq: %v", opts.Queue, err)
		_ = d.Nack(false, false)
	default:
		_ = d.Nack(false, false)
	}
}

func consumerTag(base string, worker int) string {
	if base == "" {
		base = "consumer"
	}

	return base + "-" + strconv.Itoa(worker)
}
