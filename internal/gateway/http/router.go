package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

// ReadinessCheck returns nil when a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	Verifier       *auth.Verifier
	Cart           *CartHandler
	Checkout       *CheckoutHandler
	Products       *ProductHandler
	Orders         *OrdersHandler
	Readiness      map[string]ReadinessCheck
	RequestTimeout time.Duration
	SecureCookies  bool
	// AccessLog turns on chi's request logger.
	AccessLog bool
	Log       *zap.Logger
}

func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Readiness, cfg.Log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Verifier.Optional)

		r.Get("/products", cfg.Products.List)
		r.Get("/products/{id}", cfg.Products.Get)
		r.Get("/categories", cfg.Products.Categories)
		r.Get("/categories/{slug}/products", cfg.Products.ByCategory)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.SecureCookies))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.GetCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Post("/items", cfg.Cart.AddItem)
				r.Put("/items/{productId}", cfg.Cart.UpdateQuantity)
				r.Delete("/items/{productId}", cfg.Cart.RemoveItem)
				r.Put("/shipping-method", cfg.Cart.SetShippingMethod)
				r.Put("/payment-method", cfg.Cart.SetPaymentMethod)
				r.Put("/shipping-info", cfg.Cart.SetShippingInfo)
				r.Post("/toggle", cfg.Cart.Toggle)
				r.Get("/notices", cfg.Cart.Notices)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", cfg.Checkout.GetState)
				// open answers anonymous callers itself so the drawer and
				// the login notice still reach the cart
				r.Post("/open", cfg.Checkout.Open)
				r.Post("/close", cfg.Checkout.Close)
				r.With(cfg.Verifier.Required).Post("/submit", cfg.Checkout.Submit)
				r.Get("/receipt", cfg.Checkout.Receipt)
				r.Post("/dismiss", cfg.Checkout.Dismiss)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(cfg.Verifier.Required)
			r.Get("/", cfg.Orders.List)
			r.Get("/{id}", cfg.Orders.Get)
		})
	})

	return r
}

func readyHandler(checks map[string]ReadinessCheck, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.FromContext(r.Context(), log).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		respondJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
