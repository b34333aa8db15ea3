package store

import (
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

type Action interface {
	// persists reports whether the action touches the durable part of the state.
	persists() bool
}

type AddItem struct{ Item domain.LineItem }
type RemoveItem struct{ ProductID int64 }
type UpdateQuantity struct {
	ProductID int64
	Quantity  int
}
type ClearCart struct{}
type SetShippingMethod struct{ Method domain.ShippingMethod }
type SetPaymentMethod struct{ Method domain.PaymentMethod }
type SetShippingInfo struct{ Info domain.ShippingInfo }

// Open nil flips the flag.
type ToggleCart struct{ Open *bool }
type ToggleCheckout struct{ Open *bool }
type ToggleOrderConfirmation struct{ Open *bool }

type SetCurrentOrder struct{ Order *domain.OrderSnapshot }

// CompleteOrder takes the ordered quantities out of the cart, forgets the
// current order and closes the confirmation. Lines added after the order stay.
type CompleteOrder struct{}

// Hydrate replaces the durable part of the state with a decoded snapshot.
type Hydrate struct{ Snapshot Snapshot }

func (AddItem) persists() bool                 { return true }
func (RemoveItem) persists() bool              { return true }
func (UpdateQuantity) persists() bool          { return true }
func (ClearCart) persists() bool               { return true }
func (SetShippingMethod) persists() bool       { return true }
func (SetPaymentMethod) persists() bool        { return true }
func (SetShippingInfo) persists() bool         { return true }
func (ToggleCart) persists() bool              { return false }
func (ToggleCheckout) persists() bool          { return false }
func (ToggleOrderConfirmation) persists() bool { return false }
func (SetCurrentOrder) persists() bool         { return false }
func (CompleteOrder) persists() bool           { return true }
func (Hydrate) persists() bool                 { return false }

// Reduce is the only place a CartState changes. It never mutates s.
func Reduce(s domain.CartState, a Action) domain.CartState {
	next := s.Clone()

	switch a := a.(type) {
	case AddItem:
		merged := false
		for i := range next.Items {
			if next.Items[i].ProductID == a.Item.ProductID {
				next.Items[i].Quantity += a.Item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			next.Items = append(next.Items, a.Item)
		}
		openOnly(&next, &next.IsOpen)

	case RemoveItem:
		items := next.Items[:0]
		for _, it := range next.Items {
			if it.ProductID != a.ProductID {
				items = append(items, it)
			}
		}
		next.Items = items

	case UpdateQuantity:
		if a.Quantity < 1 {
			return s
		}
		for i := range next.Items {
			if next.Items[i].ProductID == a.ProductID {
				next.Items[i].Quantity = a.Quantity
			}
		}

	case ClearCart:
		next.Items = []domain.LineItem{}

	case SetShippingMethod:
		next.ShippingMethod = a.Method

	case SetPaymentMethod:
		next.PaymentMethod = a.Method

	case SetShippingInfo:
		info := a.Info
		next.ShippingInfo = &info

	case ToggleCart:
		toggle(&next, &next.IsOpen, a.Open)

	case ToggleCheckout:
		toggle(&next, &next.CheckoutOpen, a.Open)

	case ToggleOrderConfirmation:
		toggle(&next, &next.OrderConfirmationOpen, a.Open)

	case SetCurrentOrder:
		if a.Order == nil {
			next.CurrentOrder = nil
		} else {
			o := a.Order.Clone()
			next.CurrentOrder = &o
		}

	case CompleteOrder:
		if next.CurrentOrder != nil {
			ordered := make(map[int64]int, len(next.CurrentOrder.Items))
			for _, it := range next.CurrentOrder.Items {
				ordered[it.ProductID] += it.Quantity
			}
			items := make([]domain.LineItem, 0, len(next.Items))
			for _, it := range next.Items {
				it.Quantity -= ordered[it.ProductID]
				if it.Quantity > 0 {
					items = append(items, it)
				}
			}
			next.Items = items
		}
		next.CurrentOrder = nil
		next.OrderConfirmationOpen = false

	case Hydrate:
		next.Items = append([]domain.LineItem{}, a.Snapshot.Items...)
		next.ShippingMethod = a.Snapshot.ShippingMethod
		next.PaymentMethod = a.Snapshot.PaymentMethod
		next.ShippingInfo = nil
		if a.Snapshot.ShippingInfo != nil {
			info := *a.Snapshot.ShippingInfo
			next.ShippingInfo = &info
		}

	default:
		return s
	}

	return next
}

// toggle sets or flips flag. A flag that ends up open closes the other two.
func toggle(s *domain.CartState, flag *bool, open *bool) {
	v := !*flag
	if open != nil {
		v = *open
	}
	if v {
		openOnly(s, flag)
		return
	}
	*flag = false
}

func openOnly(s *domain.CartState, flag *bool) {
	s.IsOpen = false
	s.CheckoutOpen = false
	s.OrderConfirmationOpen = false
	*flag = true
}
