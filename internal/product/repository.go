package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const columns = `id, title, description, brand, price::text, discount_percent::text, stock, created_at, updated_at`

// PostgresRepository is the product store. It keeps no connection of its own:
// every call runs on the handle it is given (pool or transaction).
type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) Create(ctx context.Context, q db.Querier, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Derive()

	err := q.QueryRow(ctx, `
		INSERT INTO products (id, title, description, brand, price, discount_percent, new_price, stock, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, p.ID, p.Title, p.Description, p.Brand,
		p.Price.StringFixed(2), p.DiscountPercent.StringFixed(2), p.NewPrice.StringFixed(2),
		p.Stock, p.Available,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, q db.Querier, id string) (Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product %s: %w", id, err)
	}
	return p, nil
}

// FindByIDs returns the products that exist among ids, keyed by id.
func (r *PostgresRepository) FindByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	return r.queryMany(ctx, q, `SELECT `+columns+` FROM products WHERE id = ANY($1::uuid[])`, ids)
}

// LockByIDs is FindByIDs taking row locks in id order, so concurrent
// checkouts touching the same products cannot deadlock on lock order.
func (r *PostgresRepository) LockByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	return r.queryMany(ctx, q, `
		SELECT `+columns+`
		FROM products
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, ids)
}

// DecrementStock subtracts qty only if enough stock is left. qty must be
// positive.
func (r *PostgresRepository) DecrementStock(ctx context.Context, q db.Querier, id string, qty int) (Product, error) {
	if qty < 1 || qty > MaxStock {
		return Product{}, fmt.Errorf("%w: decrement of %d for product %s", ErrInvalidInput, qty, id)
	}
	p, err := scanProduct(q.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $2, available = (stock - $2) > 0, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING `+columns, id, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrInsufficientStock
		}
		return Product{}, fmt.Errorf("decrement stock %s: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) SetStock(ctx context.Context, q db.Querier, id string, stock int) (Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `
		UPDATE products
		SET stock = $2, available = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+columns, id, stock, IsAvailable(stock)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("set stock %s: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, q db.Querier, sql string, ids []string) (map[string]Product, error) {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p               Product
		price, discount string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Brand, &price, &discount, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}

	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("parse price: %w", err)
	}
	if p.DiscountPercent, err = decimal.NewFromString(discount); err != nil {
		return Product{}, fmt.Errorf("parse discount: %w", err)
	}
	p.Derive()
	return p, nil
}
