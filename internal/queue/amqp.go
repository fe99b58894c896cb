package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// AMQP publishes and consumes jobs on a durable RabbitMQ queue.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int

	mu sync.Mutex // guards publishes on ch
}

// DialAMQP connects to url and declares the durable queue name.
func DialAMQP(url, name string, prefetch int) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 16
	}
	return &AMQP{conn: conn, ch: ch, queue: q.Name, prefetch: prefetch}, nil
}

// Publish sends j as a persistent message.
func (a *AMQP) Publish(ctx context.Context, j Job) error {
	body, err := encode(j)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.Publish(
		"",      // default exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume delivers jobs to h until ctx is done or the channel closes.
// Deliveries are acked after h returns, whatever its result: a failed drain
// has already been recorded on the outbox row and is retried from there.
func (a *AMQP) Consume(ctx context.Context, h Handler) error {
	if err := a.ch.Qos(a.prefetch, 0, false); err != nil {
		return err
	}
	msgs, err := a.ch.Consume(
		a.queue,
		"",
		false, // autoAck
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			j, err := decode(d.Body)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("dropping malformed job")
				_ = d.Ack(false)
				continue
			}
			if err := h(ctx, j); err != nil {
				log.Ctx(ctx).Warn().Err(err).
					Str("workspace_id", j.WorkspaceID).
					Str("outbox_id", j.OutboxID).
					Msg("job handler failed")
			}
			_ = d.Ack(false)
		}
	}
}

// Close closes the channel and connection.
func (a *AMQP) Close() error {
	_ = a.ch.Close()
	return a.conn.Close()
}
