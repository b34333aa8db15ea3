package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"

	cart "github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
)

type MockReader struct {
	mu        sync.Mutex
	Messages  []kafkaGo.Message
	Committed []int64
}

func (r *MockReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return kafkaGo.Message{}, context.Canceled
	}
	m := r.Messages[0]
	r.Messages = r.Messages[1:]
	return m, nil
}

func (r *MockReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.Committed = append(r.Committed, m.Offset)
	}
	return nil
}

func (r *MockReader) Close() error { return nil }

// brokenReader fails every fetch.
type brokenReader struct {
	fetches atomic.Int32
}

func (r *brokenReader) FetchMessage(context.Context) (kafkaGo.Message, error) {
	r.fetches.Add(1)
	return kafkaGo.Message{}, errors.New("dial tcp: connection refused")
}

func (r *brokenReader) CommitMessages(context.Context, ...kafkaGo.Message) error { return nil }
func (r *brokenReader) Close() error                                             { return nil }

type MockMailer struct {
	mu       sync.Mutex
	Sent     []Email
	FailNext int
	Calls    int
}

func (m *MockMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.FailNext > 0 {
		m.FailNext--
		return errors.New("channel closed")
	}
	m.Sent = append(m.Sent, e)
	return nil
}

func (m *MockMailer) sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.Sent...)
}

func placedOrder() *domain.Order {
	return &domain.Order{
		ID:             1,
		OrderNumber:    "2000",
		UserID:         1,
		TotalAmount:    decimal.RequireFromString("156.00"),
		ShippingMethod: "Standard Shipping",
		ShippingCost:   decimal.RequireFromString("50.00"),
		PaymentMethod:  cart.PaymentCashApp,
		PaymentFee:     decimal.RequireFromString("6.00"),
		ShippingAddress: cart.ShippingInfo{
			FirstName: "Jane", LastName: "Doe", Address1: "1 Main St",
			City: "Denver", State: "CO", ZipCode: "80202", Country: "US",
			Email: "jane@example.com", TelegramHandle: "@janedoe",
		},
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: 1, Name: "Blue Dream", Price: decimal.RequireFromString("100.00"), Quantity: 1, SKU: "BD-1", Weight: "1 lb"},
		},
	}
}

func eventMessage(t *testing.T, offset int64, ev domain.OrderEvent) kafkaGo.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafkaGo.Message{Key: []byte(ev.OrderNumber), Value: payload, Offset: offset}
}

func TestBuildConfirmation(t *testing.T) {
	email, err := BuildConfirmation(domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000", Order: placedOrder()})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", email.To)
	assert.Equal(t, "Order #2000 received", email.Subject)
	assert.Contains(t, email.Body, "1-Blue Dream (1 lb) [SKU: BD-1] [$100.00]=$100.00\n")
	assert.Contains(t, email.Body, "Subtotal: $100.00\n")
	assert.Contains(t, email.Body, "Total due = $156.00\n")
	assert.Contains(t, email.Body, "Order Number: #2000")
}

func TestBuildConfirmation_Invalid(t *testing.T) {
	_, err := BuildConfirmation(domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000"})
	assert.Error(t, err)

	o := placedOrder()
	o.ShippingMethod = "Drone"
	_, err = BuildConfirmation(domain.OrderEvent{Type: domain.EventOrderPlaced, Order: o})
	assert.ErrorIs(t, err, cart.ErrUnknownShippingMethod)
}

func TestConsumer_SendsOnlyForPlacedOrders(t *testing.T) {
	reader := &MockReader{Messages: []kafkaGo.Message{
		eventMessage(t, 1, domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000", Order: placedOrder()}),
		eventMessage(t, 2, domain.OrderEvent{Type: domain.EventOrderStatusChanged, OrderNumber: "2000", Status: domain.OrderStatusShipped}),
		{Value: []byte("not json"), Offset: 3},
	}}
	mailer := &MockMailer{}
	c := NewConsumer(reader, mailer, nil)

	for i := 0; i < 3; i++ {
		c.processMessage(context.Background())
	}

	sent := mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "2000", sent[0].OrderNumber)
	assert.Equal(t, []int64{1, 2, 3}, reader.Committed)
}

func TestConsumer_BacksOffWhenFetchFails(t *testing.T) {
	reader := &brokenReader{}
	c := NewConsumer(reader, &MockMailer{}, nil)
	c.backoff = 40 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	n := reader.fetches.Load()
	assert.GreaterOrEqual(t, n, int32(2))
	assert.LessOrEqual(t, n, int32(4))
}

func TestConsumer_RetriesMailer(t *testing.T) {
	reader := &MockReader{Messages: []kafkaGo.Message{
		eventMessage(t, 1, domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000", Order: placedOrder()}),
	}}
	mailer := &MockMailer{FailNext: 2}
	c := NewConsumer(reader, mailer, nil)
	c.backoff = time.Millisecond

	c.processMessage(context.Background())

	assert.Equal(t, 3, mailer.Calls)
	assert.Len(t, mailer.sent(), 1)
}

func TestConsumer_GivesUpAfterAttempts(t *testing.T) {
	reader := &MockReader{Messages: []kafkaGo.Message{
		eventMessage(t, 1, domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000", Order: placedOrder()}),
	}}
	mailer := &MockMailer{FailNext: 10}
	c := NewConsumer(reader, mailer, nil)
	c.backoff = time.Millisecond

	c.processMessage(context.Background())

	assert.Equal(t, sendAttempts, mailer.Calls)
	assert.Empty(t, mailer.sent())
	assert.Equal(t, []int64{1}, reader.Committed)
}

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}
	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestConsumer_ReadsFromKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "order-events"
	createTopic(t, brokerAddr, topic)
	time.Sleep(5 * time.Second)

	payload, err := json.Marshal(domain.OrderEvent{Type: domain.EventOrderPlaced, OrderNumber: "2000", Order: placedOrder()})
	require.NoError(t, err)
	w := &kafkaGo.Writer{Addr: kafkaGo.TCP(brokerAddr), Topic: topic, Balancer: &kafkaGo.Hash{}}
	require.NoError(t, w.WriteMessages(context.Background(), kafkaGo.Message{Key: []byte("2000"), Value: payload}))
	require.NoError(t, w.Close())

	mailer := &MockMailer{}
	c := NewConsumer(NewKafkaReader(topic, "notify-test", brokerAddr), mailer, nil)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool { return len(mailer.sent()) == 1 }, 25*time.Second, 200*time.Millisecond)
	assert.Equal(t, "jane@example.com", mailer.sent()[0].To)
}
