package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// InitQueues declares the session expiry and notification topology. Pending messages are
// kept: expiry timers of sessions admitted before a restart must still fire.
func InitQueues(mqConn *amqp.Connection) error {
	ch, err := NewChannel(mqConn)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := SetupDelayQueue(ch, SessionExpiryDelayQueue, SessionExpiryTimeoutExchange,
		SessionExpiryTimeoutQueue, SessionExpiryRoutingKey); err != nil {
		return fmt.Errorf("declare session expiry queues: %w", err)
	}
	if err := SetupParkedQueue(ch, NotificationQueue, NotificationDeadQueue); err != nil {
		return fmt.Errorf("declare notification queues: %w", err)
	}

	return nil
}

func NewMQConn(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func NewChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Consume opens a dedicated channel with ConsumerPrefetch and starts a manual-ack consumer on queueName.
func Consume(conn *amqp.Connection, queueName string) (<-chan amqp.Delivery, error) {
	ch, err := NewChannel(conn)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(ConsumerPrefetch, 0, false); err != nil {
		ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return msgs, nil
}

// SetupParkedQueue declares queueName so that nacked messages move to deadQueueName
// through the default exchange instead of being dropped.
func SetupParkedQueue(ch *amqp.Channel, queueName, deadQueueName string) error {
	if _, err := ch.QueueDeclare(deadQueueName, true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadQueueName,
	}
	_, err := ch.QueueDeclare(queueName, true, false, false, false, args)
	return err
}

// the delay queue consists three part: delay queue, timeout exchange, timeout queue
// produce to the delay queue with a per-message expiration, and consume from the timeout queue.
// rabbitmq only expires messages at the head of a queue, so a long TTL delays the ones behind it
func SetupDelayQueue(ch *amqp.Channel, delayQueueName, timeoutExchangeName, timeoutQueueName string, timeoutRoutingKey string) error {
	delayArgs := amqp.Table{
		"x-dead-letter-exchange":    timeoutExchangeName,
		"x-dead-letter-routing-key": timeoutRoutingKey,
	}

	if _, err := ch.QueueDeclare(
		delayQueueName, true, false, false, false, delayArgs); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(timeoutExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(timeoutQueueName, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.QueueBind(timeoutQueueName, timeoutRoutingKey, timeoutExchangeName, false, nil)
}
