// Package pricing turns cart contents plus shipping and payment selections
// into money amounts. Every component is rounded to cents before it is added
// to the total, so the parts shown to the customer always sum to the total.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	PaymentFee decimal.Decimal `json:"paymentFee"`
	Total      decimal.Decimal `json:"total"`
}

func Calculate(items []domain.LineItem, ship domain.ShippingMethod, pay domain.PaymentMethod) (Totals, error) {
	shipping, err := ship.Cost()
	if err != nil {
		return Totals{}, err
	}
	rate, err := pay.FeeRate()
	if err != nil {
		return Totals{}, err
	}

	subtotal := Subtotal(items)
	fee := subtotal.Mul(rate).Round(2)

	return Totals{
		Subtotal:   subtotal,
		Shipping:   shipping.Round(2),
		PaymentFee: fee,
		Total:      subtotal.Add(shipping).Add(fee).Round(2),
	}, nil
}

func Subtotal(items []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum.Round(2)
}

// Equal compares two totals to the cent.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.Shipping.Equal(o.Shipping) &&
		t.PaymentFee.Equal(o.PaymentFee) &&
		t.Total.Equal(o.Total)
}
