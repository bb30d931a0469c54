package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, queueName string, message interface{}) error
	Close()
}

type Handler func(ctx context.Context, body []byte) error

type Consumer interface {
	Consume(ctx context.Context, queueName string, handler Handler) error
	Close()
}

// session regroupe la connexion AMQP et son canal.
type session struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func dial(url string, queues []string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Les files sont durables : un message e-mail survit au redémarrage du broker
	for _, name := range queues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	return &session{conn: conn, channel: ch}, nil
}

func (s *session) Close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

type rabbitPublisher struct {
	*session
}

func NewRabbitPublisher(url string, queues ...string) (Publisher, error) {
	s, err := dial(url, queues)
	if err != nil {
		return nil, err
	}
	return &rabbitPublisher{session: s}, nil
}

func (p *rabbitPublisher) Publish(ctx context.Context, queueName string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

type rabbitConsumer struct {
	*session
	logger *zap.Logger
}

func NewRabbitConsumer(url string, logger *zap.Logger, queues ...string) (Consumer, error) {
	s, err := dial(url, queues)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &rabbitConsumer{session: s, logger: logger}, nil
}

func (c *rabbitConsumer) Consume(ctx context.Context, queueName string, handler Handler) error {
	msgs, err := c.channel.Consume(
		queueName,
		"",
		false, // acks manuels
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				if err := handler(ctx, d.Body); err != nil {
					c.logger.Warn("queue message rejected",
						zap.String("queue", queueName), zap.Error(err))
					// pas de requeue : un message malformé bouclerait indéfiniment
					d.Nack(false, false)
					continue
				}
				d.Ack(false)
			}
		}
	}()

	return nil
}
