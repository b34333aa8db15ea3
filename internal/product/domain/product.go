package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	CategoryID  *int64          `json:"categoryId"`
	SKU         string          `json:"sku"`
	Inventory   int             `json:"inventory"`
	Weight      string          `json:"weight"`
	// Sale is the best sale running now, if any.
	Sale *Sale `json:"sale,omitempty"`
}

// EffectivePrice is the price a cart line is charged.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.Sale == nil {
		return p.Price
	}
	return p.Sale.Apply(p.Price)
}

// FirstImage returns "" when the product has no images.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Sale struct {
	ID                 int64      `json:"id"`
	ProductID          int64      `json:"productId"`
	DiscountPercentage int        `json:"discountPercentage"`
	Active             bool       `json:"active"`
	StartDate          time.Time  `json:"startDate"`
	EndDate            *time.Time `json:"endDate,omitempty"`
}

// RunningAt reports whether the sale applies at t. A missing end date means
// the sale runs until it is deactivated.
func (s *Sale) RunningAt(t time.Time) bool {
	if !s.Active || s.DiscountPercentage <= 0 || t.Before(s.StartDate) {
		return false
	}
	return s.EndDate == nil || !t.After(*s.EndDate)
}

// Apply returns price less the discount, rounded to cents.
func (s *Sale) Apply(price decimal.Decimal) decimal.Decimal {
	pct := s.DiscountPercentage
	if pct > 100 {
		pct = 100
	}
	return price.Mul(decimal.NewFromInt(int64(100 - pct))).Div(decimal.NewFromInt(100)).Round(2)
}

// BestSale picks the largest discount among sales running at t.
func BestSale(sales []Sale, t time.Time) *Sale {
	var best *Sale
	for i := range sales {
		s := &sales[i]
		if !s.RunningAt(t) {
			continue
		}
		if best == nil || s.DiscountPercentage > best.DiscountPercentage {
			best = s
		}
	}
	return best
}
