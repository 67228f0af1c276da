package product

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MaxStock is the largest value the INTEGER stock column holds.
const MaxStock = math.MaxInt32

type Product struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Brand           string          `json:"brand,omitempty"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	NewPrice        decimal.Decimal `json:"newPrice"`
	Stock           int             `json:"stock"`
	Available       bool            `json:"available"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Derive recomputes NewPrice and Available. It must run after every read or
// mutation of Price, DiscountPercent or Stock.
func (p *Product) Derive() {
	p.NewPrice = DiscountedPrice(p.Price, p.DiscountPercent)
	p.Available = IsAvailable(p.Stock)
}

// DiscountedPrice applies a percentage discount, rounded to cents.
func DiscountedPrice(price, discountPercent decimal.Decimal) decimal.Decimal {
	if !discountPercent.IsPositive() {
		return price
	}
	return price.Sub(price.Mul(discountPercent).Div(hundred)).Round(2)
}

func IsAvailable(stock int) bool {
	return stock > 0
}

type StockItem struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

func (p Product) StockItem() StockItem {
	return StockItem{ProductID: p.ID, Stock: p.Stock, Available: p.Available}
}
