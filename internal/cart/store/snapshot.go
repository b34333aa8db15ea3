package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")

// Snapshot is the durable part of a cart. UI flags and the current order are
// never stored.
type Snapshot struct {
	Items          []domain.LineItem     `json:"items"`
	ShippingMethod domain.ShippingMethod `json:"shippingMethod"`
	PaymentMethod  domain.PaymentMethod  `json:"paymentMethod"`
	ShippingInfo   *domain.ShippingInfo  `json:"shippingInfo,omitempty"`
}

func SnapshotOf(s domain.CartState) Snapshot {
	snap := Snapshot{
		Items:          append([]domain.LineItem{}, s.Items...),
		ShippingMethod: s.ShippingMethod,
		PaymentMethod:  s.PaymentMethod,
	}
	if s.ShippingInfo != nil {
		info := *s.ShippingInfo
		snap.ShippingInfo = &info
	}
	return snap
}

func Encode(s domain.CartState) ([]byte, error) {
	return json.Marshal(SnapshotOf(s))
}

// Decode parses a stored snapshot. Empty input yields the defaults. Missing
// method fields fall back to the defaults. Method values that are present
// are kept even when unknown, pricing refuses them later. Any error comes
// with the default snapshot, never a partial one.
func Decode(raw []byte) (Snapshot, error) {
	if len(raw) == 0 {
		return defaultSnapshot(), nil
	}

	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return defaultSnapshot(), fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	items := make([]domain.LineItem, 0, len(decoded.Items))
	seen := make(map[int64]bool, len(decoded.Items))
	for _, it := range decoded.Items {
		if it.ProductID <= 0 || it.Quantity < 1 {
			return defaultSnapshot(), fmt.Errorf("%w: invalid line item for product %d", ErrCorruptSnapshot, it.ProductID)
		}
		if seen[it.ProductID] {
			return defaultSnapshot(), fmt.Errorf("%w: duplicate product %d", ErrCorruptSnapshot, it.ProductID)
		}
		seen[it.ProductID] = true
		if it.Weight == "" {
			it.Weight = domain.DefaultWeight
		}
		items = append(items, it)
	}

	snap := defaultSnapshot()
	snap.Items = items
	if decoded.ShippingMethod != "" {
		snap.ShippingMethod = decoded.ShippingMethod
	}
	if decoded.PaymentMethod != "" {
		snap.PaymentMethod = decoded.PaymentMethod
	}
	snap.ShippingInfo = decoded.ShippingInfo
	return snap, nil
}

func defaultSnapshot() Snapshot {
	def := domain.NewCartState()
	return Snapshot{
		Items:          []domain.LineItem{},
		ShippingMethod: def.ShippingMethod,
		PaymentMethod:  def.PaymentMethod,
	}
}
