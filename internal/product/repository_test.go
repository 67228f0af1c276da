package product

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var productColumns = []string{"id", "title", "description", "brand", "price", "discount_percent", "stock", "created_at", "updated_at"}

const (
	p1 = "2f1d8c43-6d7e-4c53-9a55-3a2b1f0e9d01"
	p2 = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func productRow(rows *pgxmock.Rows, id, price, discount string, stock int) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "Trail shoe", "waterproof", "acme", price, discount, stock, now, now)
}

func TestPostgresRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	repo := NewPostgresRepository()

	mock.ExpectQuery(`SELECT (.+) FROM products WHERE id=\$1`).
		WithArgs(p1).
		WillReturnRows(productRow(mock.NewRows(productColumns), p1, "120.00", "10.00", 7))

	p, err := repo.FindByID(ctx, mock, p1)
	require.NoError(t, err)
	require.Equal(t, p1, p.ID)
	require.Equal(t, 7, p.Stock)
	require.True(t, p.Available)
	require.True(t, decimal.RequireFromString("108").Equal(p.NewPrice))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByIDMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository()

	mock.ExpectQuery(`SELECT (.+) FROM products WHERE id=\$1`).
		WithArgs(p2).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByID(context.Background(), mock, p2)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository()

	t.Run("returns existing products keyed by id", func(t *testing.T) {
		mock := newMock(t)
		rows := mock.NewRows(productColumns)
		productRow(rows, p1, "10.00", "0.00", 1)
		productRow(rows, p2, "20.00", "50.00", 0)

		mock.ExpectQuery(`SELECT (.+) FROM products WHERE id = ANY`).
			WithArgs([]string{p1, p2, "missing"}).
			WillReturnRows(rows)

		got, err := repo.FindByIDs(ctx, mock, []string{p1, p2, "missing"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.False(t, got[p2].Available)
		require.True(t, decimal.RequireFromString("10").Equal(got[p2].NewPrice))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty input does not query", func(t *testing.T) {
		mock := newMock(t)
		got, err := repo.FindByIDs(ctx, mock, nil)
		require.NoError(t, err)
		require.Empty(t, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error surfaces", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM products`).
			WithArgs([]string{p1}).
			WillReturnError(errors.New("conn reset"))

		_, err := repo.FindByIDs(ctx, mock, []string{p1})
		require.Error(t, err)
	})
}

func TestPostgresRepository_LockByIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository()

	mock.ExpectQuery(`ORDER BY id\s+FOR UPDATE`).
		WithArgs([]string{p1}).
		WillReturnRows(productRow(mock.NewRows(productColumns), p1, "5.00", "0.00", 3))

	got, err := repo.LockByIDs(context.Background(), mock, []string{p1})
	require.NoError(t, err)
	require.Equal(t, 3, got[p1].Stock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DecrementStock(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository()

	t.Run("decrements and derives availability", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE products\s+SET stock = stock - \$2`).
			WithArgs(p1, 2).
			WillReturnRows(productRow(mock.NewRows(productColumns), p1, "5.00", "0.00", 0))

		p, err := repo.DecrementStock(ctx, mock, p1, 2)
		require.NoError(t, err)
		require.Equal(t, 0, p.Stock)
		require.False(t, p.Available)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row means insufficient stock", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE products`).
			WithArgs(p1, 9).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.DecrementStock(ctx, mock, p1, 9)
		require.ErrorIs(t, err, ErrInsufficientStock)
	})

	for _, qty := range []int{0, -2} {
		t.Run(fmt.Sprintf("rejects qty %d without a query", qty), func(t *testing.T) {
			mock := newMock(t)

			_, err := repo.DecrementStock(ctx, mock, p1, qty)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_SetStock(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository()

	t.Run("updates stock and availability", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE products\s+SET stock = \$2, available = \$3`).
			WithArgs(p1, 4, true).
			WillReturnRows(productRow(mock.NewRows(productColumns), p1, "5.00", "0.00", 4))

		p, err := repo.SetStock(ctx, mock, p1, 4)
		require.NoError(t, err)
		require.Equal(t, 4, p.Stock)
		require.True(t, p.Available)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE products`).
			WithArgs(p2, 0, false).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.SetStock(ctx, mock, p2, 0)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := &Product{
		ID:              p1,
		Title:           "Trail shoe",
		Price:           decimal.RequireFromString("100"),
		DiscountPercent: decimal.RequireFromString("20"),
		Stock:           5,
	}

	mock.ExpectQuery(`INSERT INTO products`).
		WithArgs(p1, "Trail shoe", "", "", "100.00", "20.00", "80.00", 5, true).
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), mock, p))
	require.True(t, p.Available)
	require.Equal(t, now, p.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
