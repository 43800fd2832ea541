package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lazla/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout    = 3 * time.Second
	redialCooldown = 10 * time.Second
)

var ErrBrokerCooldown = errors.New("rabbitmq: waiting before redial")

// AMQPPublisher writes persistent JSON messages to a durable queue. The
// connection is opened lazily and reopened after the broker drops it.
type AMQPPublisher struct {
	url   string
	queue string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	cooldown time.Duration
	failedAt time.Time
	now      func() time.Time
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	if queue == "" {
		queue = PaymentEventsQueue
	}
	return &AMQPPublisher{url: url, queue: queue, cooldown: redialCooldown, now: time.Now}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e *domain.PaymentEvent) error {
	body, err := json.Marshal(NewMessage(e))
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		if !errors.Is(err, ErrBrokerCooldown) {
			log.Printf("level=warn msg=\"rabbitmq unavailable\" err=%v", err)
		}
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		log.Printf("level=warn msg=\"rabbitmq publish failed\" event_id=%d err=%v", e.ID, err)
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// channel returns an open channel with the queue declared. Caller holds mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if !p.failedAt.IsZero() && p.now().Sub(p.failedAt) < p.cooldown {
		return nil, ErrBrokerCooldown
	}
	ch, err := p.dial()
	if err != nil {
		p.failedAt = p.now()
		return nil, err
	}
	p.failedAt = time.Time{}
	return ch, nil
}

func (p *AMQPPublisher) dial() (*amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
