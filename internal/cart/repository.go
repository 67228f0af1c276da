package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
)

const oneActivePerUser = "carts_one_active_per_user"

// Store persists carts. Every call runs on the handle it is given, so the
// same store serves plain requests (pool) and checkout (transaction).
type Store interface {
	FindActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error)
	LockActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error)
	Create(ctx context.Context, q db.Querier, userID string, status Status) (Cart, error)
	Save(ctx context.Context, q db.Querier, c *Cart) error
	FindByUserAndStatus(ctx context.Context, q db.Querier, userID string, status Status) ([]Cart, error)
}

type storedItem struct {
	ProductID    string          `json:"productId"`
	Quantity     int             `json:"quantity"`
	PriceAtAdded decimal.Decimal `json:"priceAtAdded"`
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const cartColumns = `id, user_id, status, items, version, created_at, updated_at`

func (r *PostgresRepository) FindActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error) {
	return r.findOne(ctx, q, `SELECT `+cartColumns+` FROM carts WHERE user_id=$1 AND status='active'`, userID)
}

// LockActiveByUser is FindActiveByUser holding a row lock until the
// surrounding transaction ends.
func (r *PostgresRepository) LockActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error) {
	return r.findOne(ctx, q, `SELECT `+cartColumns+` FROM carts WHERE user_id=$1 AND status='active' FOR UPDATE`, userID)
}

func (r *PostgresRepository) findOne(ctx context.Context, q db.Querier, sql, userID string) (Cart, error) {
	c, err := scanCart(q.QueryRow(ctx, sql, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, fmt.Errorf("select cart for user %s: %w", userID, err)
	}
	return c, nil
}

// Create inserts an empty cart. A second active cart for the same user is
// rejected by the partial unique index and reported as ErrActiveCartExists.
func (r *PostgresRepository) Create(ctx context.Context, q db.Querier, userID string, status Status) (Cart, error) {
	c := Cart{
		ID:      uuid.NewString(),
		UserID:  userID,
		Items:   []Item{},
		Status:  status,
		Version: 1,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, status, items, version)
		VALUES ($1, $2, $3, '[]'::jsonb, 1)
		RETURNING created_at, updated_at
	`, c.ID, c.UserID, string(c.Status)).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, oneActivePerUser) {
			return Cart{}, ErrActiveCartExists
		}
		return Cart{}, fmt.Errorf("insert cart: %w", err)
	}
	c.Recalculate()
	return c, nil
}

// Save writes items and status if the stored row still has c.Version and is
// still active. On success c.Version is bumped; otherwise ErrConflict.
func (r *PostgresRepository) Save(ctx context.Context, q db.Querier, c *Cart) error {
	items, err := encodeItems(c.Items)
	if err != nil {
		return err
	}

	err = q.QueryRow(ctx, `
		UPDATE carts
		SET items = $3, status = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND status = 'active'
		RETURNING version, updated_at
	`, c.ID, c.Version, items, string(c.Status)).Scan(&c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("update cart %s: %w", c.ID, err)
	}
	c.Recalculate()
	return nil
}

func (r *PostgresRepository) FindByUserAndStatus(ctx context.Context, q db.Querier, userID string, status Status) ([]Cart, error) {
	rows, err := q.Query(ctx, `
		SELECT `+cartColumns+`
		FROM carts
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("select carts: %w", err)
	}
	defer rows.Close()

	var out []Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c      Cart
		status string
		items  []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &status, &items, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Cart{}, err
	}
	c.Status = Status(status)
	if !c.Status.Valid() {
		return Cart{}, fmt.Errorf("cart %s has unknown status %q", c.ID, status)
	}

	var err error
	if c.Items, err = decodeItems(items); err != nil {
		return Cart{}, err
	}
	c.Recalculate()
	return c, nil
}

func encodeItems(items []Item) ([]byte, error) {
	stored := make([]storedItem, 0, len(items))
	for _, it := range items {
		stored = append(stored, storedItem{ProductID: it.ProductID, Quantity: it.Quantity, PriceAtAdded: it.PriceAtAdded})
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal cart items: %w", err)
	}
	return b, nil
}

func decodeItems(b []byte) ([]Item, error) {
	items := []Item{}
	if len(b) == 0 {
		return items, nil
	}
	var stored []storedItem
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal cart items: %w", err)
	}
	for _, s := range stored {
		items = append(items, Item{ProductID: s.ProductID, Quantity: s.Quantity, PriceAtAdded: s.PriceAtAdded})
	}
	return items, nil
}
