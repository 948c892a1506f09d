package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends activity events. Callers treat failures as non-fatal:
// the request that produced the event has already succeeded.
type Publisher interface {
	Publish(ctx context.Context, ev ActivityEvent) error
}

// Nop discards every event. It is used when AMQP_URL is unset.
type Nop struct{}

func (Nop) Publish(context.Context, ActivityEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to ActivityQueue over a
// lazily opened connection that is re-dialled after the broker drops it.
type AMQPPublisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for url. No connection is made until
// the first Publish.
func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPPublisher{url: url, log: log}
}

// channel returns an open channel, dialling and declaring the queue when
// needed. Must be called with p.mu held.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ActivityQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel unavailable", zap.Error(err))
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",            // default exchange
		ActivityQueue, // routing key = queue name
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
	return err
}

// Close releases the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
