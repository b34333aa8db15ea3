package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	product "github.com/CrispyPorkGang/boxpacks/internal/product/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/product/repository"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

// Catalog is implemented by *repository.Repository.
type Catalog interface {
	GetAllProducts(ctx context.Context) ([]*product.Product, error)
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	GetProductsByCategory(ctx context.Context, slug string) ([]*product.Product, error)
	GetCategories(ctx context.Context) ([]*product.Category, error)
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(catalog Catalog, timeout time.Duration, log *zap.Logger) *ProductHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductHandler{catalog: catalog, timeout: timeout, log: log}
}

// ProductResponse adds the price a cart line would be charged.
type ProductResponse struct {
	*product.Product
	EffectivePrice string `json:"effectivePrice"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

type CategoriesResponse struct {
	Categories []*product.Category `json:"categories"`
}

func toProductResponse(p *product.Product) ProductResponse {
	return ProductResponse{Product: p, EffectivePrice: p.EffectivePrice().StringFixed(2)}
}

func toProductsResponse(list []*product.Product) *ProductsResponse {
	products := make([]ProductResponse, len(list))
	for i, p := range list {
		products[i] = toProductResponse(p)
	}
	return &ProductsResponse{Products: products}
}

func (h *ProductHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, repository.ErrCategoryNotFound):
		respondError(w, http.StatusNotFound, "category_not_found", "category not found")
	default:
		logger.FromContext(r.Context(), h.log).Error("catalog query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	list, err := h.catalog.GetAllProducts(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductsResponse(list))
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must be a positive integer")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	p, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

// GET /api/v1/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	list, err := h.catalog.GetCategories(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &CategoriesResponse{Categories: list})
}

// GET /api/v1/categories/{slug}/products
func (h *ProductHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	list, err := h.catalog.GetProductsByCategory(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductsResponse(list))
}
