package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const EmailQueue = "email"

// Email is the message the mail worker consumes from the email queue.
type Email struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	OrderNumber string `json:"orderNumber"`
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPMailer queues emails on RabbitMQ. Safe for concurrent use.
type AMQPMailer struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    publisher
	queue string
}

func DialMailer(url, queue string) (*AMQPMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQPMailer{conn: conn, ch: ch, queue: q.Name}, nil
}

func (m *AMQPMailer) Send(ctx context.Context, e Email) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	err = m.ch.PublishWithContext(ctx,
		"",      // exchange
		m.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.OrderNumber,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish email for order %s: %w", e.OrderNumber, err)
	}
	return nil
}

func (m *AMQPMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ch.Close()
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
