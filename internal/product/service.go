package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
)

var ErrInvalidInput = errors.New("invalid input")

// Service exposes stock administration on top of the repository.
type Service struct {
	pool db.Querier
	repo *PostgresRepository
}

func NewService(pool db.Querier, repo *PostgresRepository) *Service {
	return &Service{pool: pool, repo: repo}
}

func (s *Service) GetStock(ctx context.Context, productID string) (StockItem, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return StockItem{}, fmt.Errorf("%w: product id %q", ErrInvalidInput, productID)
	}
	p, err := s.repo.FindByID(ctx, s.pool, productID)
	if err != nil {
		return StockItem{}, err
	}
	return p.StockItem(), nil
}

func (s *Service) SetStock(ctx context.Context, productID string, stock int) (StockItem, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return StockItem{}, fmt.Errorf("%w: product id %q", ErrInvalidInput, productID)
	}
	if stock < 0 || stock > MaxStock {
		return StockItem{}, fmt.Errorf("%w: stock must be between 0 and %d", ErrInvalidInput, MaxStock)
	}
	p, err := s.repo.SetStock(ctx, s.pool, productID, stock)
	if err != nil {
		return StockItem{}, err
	}
	return p.StockItem(), nil
}
