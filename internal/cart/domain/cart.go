package domain

import (
	"github.com/shopspring/decimal"
)

const DefaultWeight = "1 lb"

type LineItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	SKU       string          `json:"sku"`
	Weight    string          `json:"weight"`
	ImageURL  string          `json:"image,omitempty"`
}

func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingInfo doubles as the order's shipping address. Address2 is optional.
type ShippingInfo struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2,omitempty"`
	City           string `json:"city"`
	State          string `json:"state"`
	ZipCode        string `json:"zipCode"`
	Country        string `json:"country"`
	Email          string `json:"email"`
	TelegramHandle string `json:"telegramHandle"`
}

// OrderSnapshot is captured once an order is accepted and never changes after.
type OrderSnapshot struct {
	OrderNumber     string          `json:"orderNumber"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	PaymentFee      decimal.Decimal `json:"paymentFee"`
	Total           decimal.Decimal `json:"total"`
	ShippingMethod  ShippingMethod  `json:"shippingMethod"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	ShippingAddress ShippingInfo    `json:"shippingAddress"`
}

type CartState struct {
	Items                 []LineItem     `json:"items"`
	ShippingMethod        ShippingMethod `json:"shippingMethod"`
	PaymentMethod         PaymentMethod  `json:"paymentMethod"`
	ShippingInfo          *ShippingInfo  `json:"shippingInfo,omitempty"`
	IsOpen                bool           `json:"isOpen"`
	CheckoutOpen          bool           `json:"checkoutOpen"`
	OrderConfirmationOpen bool           `json:"orderConfirmationOpen"`
	CurrentOrder          *OrderSnapshot `json:"currentOrder"`
}

func NewCartState() CartState {
	return CartState{
		Items:          []LineItem{},
		ShippingMethod: ShippingStandard,
		PaymentMethod:  PaymentCashApp,
	}
}

func (s CartState) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func (s CartState) Clone() CartState {
	out := s
	out.Items = append([]LineItem{}, s.Items...)
	if s.ShippingInfo != nil {
		info := *s.ShippingInfo
		out.ShippingInfo = &info
	}
	if s.CurrentOrder != nil {
		o := s.CurrentOrder.Clone()
		out.CurrentOrder = &o
	}
	return out
}

func (o OrderSnapshot) Clone() OrderSnapshot {
	out := o
	out.Items = append([]LineItem{}, o.Items...)
	return out
}
