package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/CrispyPorkGang/boxpacks/internal/product/domain"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{
		MigrationsTable: "catalog_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const productColumns = `p.id, p.name, p.description, p.price, p.images, p.category_id, p.sku, p.inventory, p.weight`

func (r *Repository) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.id`)
}

func (r *Repository) GetProductsByCategory(ctx context.Context, slug string) ([]*domain.Product, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE slug = ?`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return r.queryProducts(ctx, `SELECT `+productColumns+` FROM products p WHERE p.category_id = ? ORDER BY p.id`, id)
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := r.queryProducts(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return products[0], nil
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		var (
			p        domain.Product
			price    string
			images   string
			category sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &images, &category, &p.SKU, &p.Inventory, &p.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %d has bad price %q: %w", p.ID, price, err)
		}
		if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
			return nil, fmt.Errorf("product %d has bad images: %w", p.ID, err)
		}
		if p.Images == nil {
			p.Images = []string{}
		}
		if category.Valid {
			c := category.Int64
			p.CategoryID = &c
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if err := r.attachSales(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// attachSales sets the best running sale on each product.
func (r *Repository) attachSales(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Product, len(products))
	args := make([]any, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		args = append(args, p.ID)
	}

	query := `SELECT id, product_id, discount_percentage, active, start_date, end_date
		FROM sales WHERE active = 1 AND product_id IN (?` + strings.Repeat(",?", len(args)-1) + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sales := map[int64][]domain.Sale{}
	for rows.Next() {
		var (
			s          domain.Sale
			start      string
			end        sql.NullString
			activeFlag int
		)
		if err := rows.Scan(&s.ID, &s.ProductID, &s.DiscountPercentage, &activeFlag, &start, &end); err != nil {
			return fmt.Errorf("failed to scan sale: %w", err)
		}
		s.Active = activeFlag != 0
		if s.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
			return fmt.Errorf("sale %d has bad start date: %w", s.ID, err)
		}
		if end.Valid && end.String != "" {
			t, err := time.Parse(time.RFC3339, end.String)
			if err != nil {
				return fmt.Errorf("sale %d has bad end date: %w", s.ID, err)
			}
			s.EndDate = &t
		}
		sales[s.ProductID] = append(sales[s.ProductID], s)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	now := r.now()
	for id, list := range sales {
		if best := domain.BestSale(list, now); best != nil {
			byID[id].Sale = best
		}
	}
	return nil
}

func (r *Repository) GetCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		c := &domain.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
