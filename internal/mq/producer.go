package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher shares one channel between callers. amqp channels are not safe for
// concurrent publishing, so every publish holds the lock.
type Publisher struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := NewChannel(p.conn)
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) SendImmediateMessage(ctx context.Context, queueName string, message any) error {
	return p.publish(ctx, queueName, message, "")
}

// SendDelayedMessage publishes into a delay queue; the message is dead-lettered
// to the matching timeout queue once delay has passed.
func (p *Publisher) SendDelayedMessage(ctx context.Context, delayQueueName string, message any, delay time.Duration) error {
	ms := max(delay.Milliseconds(), 0)
	return p.publish(ctx, delayQueueName, message, strconv.FormatInt(ms, 10))
}

func (p *Publisher) publish(ctx context.Context, queueName string, message any, expiration string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			Expiration:   expiration,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message to queue %s: %w", queueName, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}
