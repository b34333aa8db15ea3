// Package service holds the orders-service business rules: order placement
// with server side repricing, idempotent retries and owner/admin access.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	cart "github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/pricing"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/orders/repository"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

type OrderService struct {
	repo repository.OrderRepository
	log  *zap.Logger
}

func NewOrderService(repo repository.OrderRepository, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{repo: repo, log: log}
}

// CreateOrder places an order for user. created is false when key matched an
// order placed earlier, which is then returned unchanged.
func (s *OrderService) CreateOrder(ctx context.Context, user *auth.User, req domain.CreateOrderRequest, key string) (order *domain.Order, created bool, err error) {
	log := logger.FromContext(ctx, s.log)

	if req.UserID == 0 {
		req.UserID = user.ID
	}
	if req.UserID != user.ID && !user.IsAdmin {
		return nil, false, ErrForbidden
	}

	if key != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			return s.replay(existing, req.UserID)
		case !errors.Is(err, repository.ErrOrderNotFound):
			return nil, false, err
		}
	}

	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	order = &domain.Order{
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		ShippingMethod:  req.ShippingMethod,
		ShippingCost:    req.ShippingCost,
		PaymentMethod:   req.PaymentMethod,
		PaymentFee:      req.PaymentFee,
		ShippingAddress: req.ShippingAddress,
		Items:           append([]domain.OrderItem{}, req.Items...),
	}
	for i := range order.Items {
		if order.Items[i].Weight == "" {
			order.Items[i].Weight = cart.DefaultWeight
		}
	}

	err = s.repo.CreateOrder(ctx, order, key)
	if errors.Is(err, repository.ErrDuplicateOrder) {
		// lost a race with a concurrent retry
		existing, gerr := s.repo.GetOrderByIdempotencyKey(ctx, key)
		if gerr != nil {
			return nil, false, gerr
		}
		return s.replay(existing, req.UserID)
	}
	if err != nil {
		return nil, false, err
	}

	log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	return order, true, nil
}

func (s *OrderService) replay(existing *domain.Order, userID int64) (*domain.Order, bool, error) {
	if existing.UserID != userID {
		return nil, false, ErrForbidden
	}
	return existing, false, nil
}

// validateRequest checks the request shape and reprices it. The client's
// totals must match to the cent.
func validateRequest(req domain.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}

	lines := make([]cart.LineItem, 0, len(req.Items))
	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID <= 0 || it.Quantity < 1 || it.Price.IsNegative() {
			return fmt.Errorf("%w: bad item for product %d", ErrInvalidOrder, it.ProductID)
		}
		if seen[it.ProductID] {
			return fmt.Errorf("%w: product %d listed twice", ErrInvalidOrder, it.ProductID)
		}
		seen[it.ProductID] = true
		lines = append(lines, cart.LineItem{ProductID: it.ProductID, UnitPrice: it.Price, Quantity: it.Quantity})
	}

	ship, err := cart.ShippingMethodFromLabel(req.ShippingMethod)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidOrder, cart.ErrUnknownPaymentMethod, string(req.PaymentMethod))
	}
	if err := checkout.ValidateAddress(req.ShippingAddress); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	want, err := pricing.Calculate(lines, ship, req.PaymentMethod)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if !want.Shipping.Equal(req.ShippingCost) || !want.PaymentFee.Equal(req.PaymentFee) || !want.Total.Equal(req.TotalAmount) {
		return fmt.Errorf("%w: expected total %s (shipping %s, fee %s), got %s",
			ErrTotalsMismatch,
			want.Total.StringFixed(2), want.Shipping.StringFixed(2), want.PaymentFee.StringFixed(2),
			req.TotalAmount.StringFixed(2))
	}
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, user *auth.User, id int64) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID && !user.IsAdmin {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders returns every order for admins and the caller's own otherwise,
// newest first.
func (s *OrderService) ListOrders(ctx context.Context, user *auth.User) ([]*domain.Order, error) {
	if user.IsAdmin {
		return s.repo.ListAllOrders(ctx)
	}
	return s.repo.ListOrders(ctx, user.ID)
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, user *auth.User, id int64, status string) (*domain.Order, error) {
	if !user.IsAdmin {
		return nil, ErrForbidden
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.UpdateOrderStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.log).Info("order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(st)))
	return order, nil
}

func (s *OrderService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
