package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"Routinely/config"
)

// 交换机与队列拓扑
// scheduler.delayed 是 x-delayed-message 插件提供的延迟交换机，
// 所有 deliver/escalate 任务都经由它按 x-delay 投递。
const (
	ExchangeDelayed = "scheduler.delayed"
	ExchangeEvents  = "events.topic"

	QueueDeliver  = "scheduler.reminder.deliver"
	QueueEscalate = "scheduler.reminder.escalate"

	RoutingKeyDeliver  = "reminder.deliver"
	RoutingKeyEscalate = "reminder.escalate"
)

var (
	conn   *amqp.Connection
	connMu sync.RWMutex
)

func Init() error {
	url := config.Cfg.GetRabbitMQURL()

	c, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	return declareTopology()
}

func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	defer connMu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		conn = nil
		return err
	}
}

// declareTopology 声明交换机、队列和绑定，幂等
func declareTopology() error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open declare channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		ExchangeDelayed,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "topic"},
	)
	if err != nil {
		return fmt.Errorf("failed to declare delayed exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeEvents, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	queues := []struct {
		name       string
		routingKey string
	}{
		{QueueDeliver, RoutingKeyDeliver},
		{QueueEscalate, RoutingKeyEscalate},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.routingKey, ExchangeDelayed, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.name, err)
		}
	}

	return nil
}
