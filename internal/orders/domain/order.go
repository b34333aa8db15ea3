package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	cart "github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

var ErrInvalidStatus = errors.New("invalid order status")

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func ParseStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type OrderItem struct {
	ID        int64           `json:"id,omitempty"`
	OrderID   int64           `json:"orderId,omitempty"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	SKU       string          `json:"sku"`
	Weight    string          `json:"weight"`
}

type Order struct {
	ID              int64              `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          int64              `json:"userId"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	ShippingMethod  string             `json:"shippingMethod"`
	ShippingCost    decimal.Decimal    `json:"shippingCost"`
	PaymentMethod   cart.PaymentMethod `json:"paymentMethod"`
	PaymentFee      decimal.Decimal    `json:"paymentFee"`
	ShippingAddress cart.ShippingInfo  `json:"shippingAddress"`
	Status          OrderStatus        `json:"status"`
	Items           []OrderItem        `json:"items"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// CreateOrderRequest is the order placement payload. ShippingMethod carries
// the display label, "Standard Shipping" or "Overnight Shipping".
type CreateOrderRequest struct {
	UserID          int64              `json:"userId"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	ShippingMethod  string             `json:"shippingMethod"`
	ShippingCost    decimal.Decimal    `json:"shippingCost"`
	PaymentMethod   cart.PaymentMethod `json:"paymentMethod"`
	PaymentFee      decimal.Decimal    `json:"paymentFee"`
	ShippingAddress cart.ShippingInfo  `json:"shippingAddress"`
	Items           []OrderItem        `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// OrderEvent is the payload written to the outbox and published to kafka.
type OrderEvent struct {
	Type        string      `json:"type"`
	OrderNumber string      `json:"orderNumber"`
	Status      OrderStatus `json:"status"`
	Order       *Order      `json:"order,omitempty"`
	OccurredAt  time.Time   `json:"occurredAt"`
}
