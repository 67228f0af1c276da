package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type Status string

// MaxLineQuantity bounds a line's quantity to what the stock column can hold.
const MaxLineQuantity = product.MaxStock

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusPending:
		return true
	}
	return false
}

type Item struct {
	ProductID    string          `json:"productId"`
	Quantity     int             `json:"quantity"`
	PriceAtAdded decimal.Decimal `json:"priceAtAdded"`
	// Product is filled on reads and never persisted.
	Product *product.Product `json:"product,omitempty"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.PriceAtAdded.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Cart struct {
	ID        string          `json:"cartId"`
	UserID    string          `json:"userId"`
	Items     []Item          `json:"items"`
	Status    Status          `json:"status"`
	Version   int             `json:"version"`
	Total     decimal.Decimal `json:"totalAmount"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Recalculate refreshes Total from the price snapshots.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	c.Total = total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) indexOf(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) Item(productID string) (Item, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return Item{}, false
}

// addItem merges qty into an existing line or appends a new one priced at price.
// It reports false, leaving the cart unchanged, when the merged quantity would
// exceed MaxLineQuantity. qty must be in [1, MaxLineQuantity].
func (c *Cart) addItem(productID string, qty int, price decimal.Decimal) bool {
	if i := c.indexOf(productID); i >= 0 {
		if c.Items[i].Quantity > MaxLineQuantity-qty {
			return false
		}
		c.Items[i].Quantity += qty
		return true
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty, PriceAtAdded: price})
	return true
}

// setQuantity overwrites a line's quantity, removing it when qty is 0.
// It reports false when the product is not in the cart.
func (c *Cart) setQuantity(productID string, qty int) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	if qty == 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	}
	c.Items[i].Quantity = qty
	return true
}

func (c *Cart) removeItem(productID string) bool {
	return c.setQuantity(productID, 0)
}

// Quantities sums quantities per product.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

func (c Cart) clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// CheckoutResult holds the cart that became an order and the fresh active cart.
type CheckoutResult struct {
	Previous Cart `json:"previousCart"`
	New      Cart `json:"newCart"`
}
