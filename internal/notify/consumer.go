// Package notify turns order events into customer emails.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cart "github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/pricing"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

const sendAttempts = 3

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  MessageReader
	mailer  Mailer
	log     *zap.Logger
	backoff time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(reader MessageReader, mailer Mailer, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, mailer: mailer, log: log, backoff: 500 * time.Millisecond}
}

// Run consumes until ctx ends. A failed fetch waits one backoff before the
// next attempt.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

// processMessage returns an error only when no message could be fetched.
func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		c.log.Error("error reading message", zap.Error(err))
		return err
	}

	if err := c.handle(ctx, m); err != nil {
		c.log.Error("order event dropped",
			zap.String("key", string(m.Key)),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Warn("failed to commit message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var ev domain.OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	if ev.Type != domain.EventOrderPlaced {
		return nil
	}

	email, err := BuildConfirmation(ev)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err = c.mailer.Send(ctx, email)
		if err == nil {
			c.log.Info("order confirmation queued", zap.String("order_number", ev.OrderNumber))
			return nil
		}
		if attempt == sendAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
}

// BuildConfirmation renders the confirmation email for an OrderPlaced event.
func BuildConfirmation(ev domain.OrderEvent) (Email, error) {
	o := ev.Order
	if o == nil {
		return Email{}, fmt.Errorf("order %s: event has no order", ev.OrderNumber)
	}
	if o.ShippingAddress.Email == "" {
		return Email{}, fmt.Errorf("order %s: no customer email", o.OrderNumber)
	}

	ship, err := cart.ShippingMethodFromLabel(o.ShippingMethod)
	if err != nil {
		return Email{}, fmt.Errorf("order %s: %w", o.OrderNumber, err)
	}
	items := make([]cart.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, cart.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
			SKU:       it.SKU,
			Weight:    it.Weight,
		})
	}

	receipt, err := checkout.FormatReceipt(cart.OrderSnapshot{
		OrderNumber:     o.OrderNumber,
		Items:           items,
		Subtotal:        pricing.Subtotal(items),
		Shipping:        o.ShippingCost,
		PaymentFee:      o.PaymentFee,
		Total:           o.TotalAmount,
		ShippingMethod:  ship,
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
	})
	if err != nil {
		return Email{}, fmt.Errorf("order %s: %w", o.OrderNumber, err)
	}

	return Email{
		To:          o.ShippingAddress.Email,
		Subject:     fmt.Sprintf("Order #%s received", o.OrderNumber),
		Body:        receipt,
		OrderNumber: o.OrderNumber,
	}, nil
}
