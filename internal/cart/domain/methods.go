package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
)

type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingOvernight ShippingMethod = "overnight"
)

// ShippingMethods lists every method in display order. Each entry must have a
// row in shippingTable.
var ShippingMethods = []ShippingMethod{ShippingStandard, ShippingOvernight}

type shippingRow struct {
	cost  decimal.Decimal
	label string
}

var shippingTable = map[ShippingMethod]shippingRow{
	ShippingStandard:  {cost: decimal.NewFromInt(50), label: "Standard Shipping"},
	ShippingOvernight: {cost: decimal.NewFromInt(100), label: "Overnight Shipping"},
}

func (m ShippingMethod) Valid() bool {
	_, ok := shippingTable[m]
	return ok
}

func (m ShippingMethod) Cost() (decimal.Decimal, error) {
	row, ok := shippingTable[m]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownShippingMethod, string(m))
	}
	return row.cost, nil
}

func (m ShippingMethod) Label() (string, error) {
	row, ok := shippingTable[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownShippingMethod, string(m))
	}
	return row.label, nil
}

// ShippingMethodFromLabel maps "Standard Shipping" back to ShippingStandard.
func ShippingMethodFromLabel(label string) (ShippingMethod, error) {
	for m, row := range shippingTable {
		if row.label == label {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: label %q", ErrUnknownShippingMethod, label)
}

type PaymentMethod string

const (
	PaymentZelle   PaymentMethod = "zelle"
	PaymentCashApp PaymentMethod = "cashapp"
	PaymentChime   PaymentMethod = "chime"
	PaymentBTC     PaymentMethod = "btc"
	PaymentUSDT    PaymentMethod = "usdt"
	PaymentVenmo   PaymentMethod = "venmo"
)

var PaymentMethods = []PaymentMethod{
	PaymentZelle, PaymentCashApp, PaymentChime, PaymentBTC, PaymentUSDT, PaymentVenmo,
}

type paymentRow struct {
	// percent of subtotal
	feePercent int64
	label      string
}

var paymentTable = map[PaymentMethod]paymentRow{
	PaymentZelle:   {feePercent: 5, label: "Zelle"},
	PaymentCashApp: {feePercent: 6, label: "Cash App"},
	PaymentChime:   {feePercent: 5, label: "Chime"},
	PaymentBTC:     {feePercent: 2, label: "Bitcoin"},
	PaymentUSDT:    {feePercent: 0, label: "USDT"},
	PaymentVenmo:   {feePercent: 5, label: "Venmo"},
}

func (m PaymentMethod) Valid() bool {
	_, ok := paymentTable[m]
	return ok
}

// FeeRate returns the surcharge as a fraction, 0.06 for cashapp.
func (m PaymentMethod) FeeRate() (decimal.Decimal, error) {
	row, ok := paymentTable[m]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, string(m))
	}
	return decimal.New(row.feePercent, -2), nil
}

func (m PaymentMethod) FeePercent() (int64, error) {
	row, ok := paymentTable[m]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, string(m))
	}
	return row.feePercent, nil
}

func (m PaymentMethod) Label() (string, error) {
	row, ok := paymentTable[m]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, string(m))
	}
	return row.label, nil
}
