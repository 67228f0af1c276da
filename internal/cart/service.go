package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

const (
	DefaultMaxRetries      = 5
	DefaultCheckoutTimeout = 5 * time.Second
)

// ProductStore is the product capability the engine consumes.
type ProductStore interface {
	FindByID(ctx context.Context, q db.Querier, id string) (product.Product, error)
	FindByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]product.Product, error)
	LockByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]product.Product, error)
	DecrementStock(ctx context.Context, q db.Querier, id string, qty int) (product.Product, error)
}

// CheckoutPublisher is notified after a checkout has committed.
type CheckoutPublisher interface {
	PublishCartCheckedOut(ctx context.Context, c Cart) error
}

type Options struct {
	Publisher       CheckoutPublisher
	Logger          *log.Logger
	MaxRetries      int
	CheckoutTimeout time.Duration
}

type Service struct {
	pool            db.Pool
	carts           Store
	products        ProductStore
	publisher       CheckoutPublisher
	logger          *log.Logger
	maxRetries      int
	checkoutTimeout time.Duration
}

func NewService(pool db.Pool, carts Store, products ProductStore, opts Options) *Service {
	s := &Service{
		pool:            pool,
		carts:           carts,
		products:        products,
		publisher:       opts.Publisher,
		logger:          opts.Logger,
		maxRetries:      opts.MaxRetries,
		checkoutTimeout: opts.CheckoutTimeout,
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[cart] ", log.LstdFlags|log.Lshortfile)
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.checkoutTimeout <= 0 {
		s.checkoutTimeout = DefaultCheckoutTimeout
	}
	return s
}

// GetActiveCart returns the user's active cart, creating an empty one if the
// user has none.
func (s *Service) GetActiveCart(ctx context.Context, userID string) (Cart, error) {
	if err := validateID("user id", userID); err != nil {
		return Cart{}, err
	}
	c, err := s.getOrCreate(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if err := s.resolve(ctx, &c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// AddItem adds qty of a product, merging with an existing line. The price
// snapshot is taken on the first add only. Stock is not checked here.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	if qty < 1 || qty > MaxLineQuantity {
		return Cart{}, invalidArgument(fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity))
	}

	p, err := s.products.FindByID(ctx, s.pool, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return Cart{}, notFound(userID, productID, "product not found")
		}
		return Cart{}, fmt.Errorf("find product: %w", err)
	}

	return s.mutate(ctx, userID, true, func(c *Cart) (bool, error) {
		if !c.addItem(productID, qty, p.NewPrice) {
			return false, invalidArgument(fmt.Sprintf("quantity for product %s would exceed %d", productID, MaxLineQuantity))
		}
		return true, nil
	})
}

// UpdateItemQty overwrites a line's quantity. A quantity of 0 removes it.
func (s *Service) UpdateItemQty(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	if qty < 0 || qty > MaxLineQuantity {
		return Cart{}, invalidArgument(fmt.Sprintf("quantity must be between 0 and %d", MaxLineQuantity))
	}

	return s.mutate(ctx, userID, false, func(c *Cart) (bool, error) {
		if !c.setQuantity(productID, qty) {
			return false, notFound(userID, productID, "product not in cart")
		}
		return true, nil
	})
}

// RemoveItem drops a product from the active cart. Removing a product that
// is not in the cart is not an error.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (Cart, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, userID, false, func(c *Cart) (bool, error) {
		return c.removeItem(productID), nil
	})
}

func (s *Service) ClearCart(ctx context.Context, userID string) (Cart, error) {
	if err := validateID("user id", userID); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, userID, false, func(c *Cart) (bool, error) {
		if c.IsEmpty() {
			return false, nil
		}
		c.Items = []Item{}
		return true, nil
	})
}

// GetCartItem reports whether productID is a line of the user's active cart.
// It never creates a cart.
func (s *Service) GetCartItem(ctx context.Context, userID, productID string) (Item, bool, error) {
	if err := validateIDs(userID, productID); err != nil {
		return Item{}, false, err
	}
	c, err := s.carts.FindActiveByUser(ctx, s.pool, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return Item{}, false, nil
		}
		return Item{}, false, fmt.Errorf("find cart: %w", err)
	}
	it, ok := c.Item(productID)
	if !ok {
		return Item{}, false, nil
	}
	p, err := s.products.FindByID(ctx, s.pool, productID)
	switch {
	case err == nil:
		it.Product = &p
	case !errors.Is(err, product.ErrNotFound):
		return Item{}, false, fmt.Errorf("find product: %w", err)
	}
	return it, true, nil
}

// Checkout turns the active cart into a completed order and decrements stock
// for every line, all or nothing, then opens a fresh active cart.
func (s *Service) Checkout(ctx context.Context, userID string) (CheckoutResult, error) {
	if err := validateID("user id", userID); err != nil {
		return CheckoutResult{}, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.checkoutTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return CheckoutResult{}, txFailed(userID, "begin transaction", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(txCtx)
	}()

	res, err := s.checkoutTx(txCtx, tx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return CheckoutResult{}, txFailed(userID, "commit", err)
	}

	s.logger.Printf("checkout user=%s cart=%s items=%d total=%s", userID, res.Previous.ID, len(res.Previous.Items), res.Previous.Total.StringFixed(2))
	s.publishCheckedOut(ctx, res.Previous)
	return res, nil
}

func (s *Service) checkoutTx(ctx context.Context, tx pgx.Tx, userID string) (CheckoutResult, error) {
	c, err := s.carts.LockActiveByUser(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return CheckoutResult{}, invalidState(userID, "cart empty")
		}
		return CheckoutResult{}, s.storeFault(userID, "lock cart", err)
	}
	if c.IsEmpty() {
		return CheckoutResult{}, invalidState(userID, "cart empty")
	}

	want := c.Quantities()
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	locked, err := s.products.LockByIDs(ctx, tx, ids)
	if err != nil {
		return CheckoutResult{}, s.storeFault(userID, "lock products", err)
	}

	// Validate everything before touching stock. A product that no longer
	// exists has nothing to sell.
	for _, id := range ids {
		if have := locked[id].Stock; have < want[id] {
			return CheckoutResult{}, insufficientStock(userID, id, want[id], have)
		}
	}

	updated := make(map[string]product.Product, len(ids))
	for _, id := range ids {
		p, err := s.products.DecrementStock(ctx, tx, id, want[id])
		if err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return CheckoutResult{}, insufficientStock(userID, id, want[id], locked[id].Stock)
			}
			return CheckoutResult{}, s.storeFault(userID, "decrement stock", err)
		}
		updated[id] = p
	}

	completed := c.clone()
	completed.Status = StatusCompleted
	if err := s.carts.Save(ctx, tx, &completed); err != nil {
		return CheckoutResult{}, s.storeFault(userID, "complete cart", err)
	}

	next, err := s.carts.Create(ctx, tx, userID, StatusActive)
	if err != nil {
		return CheckoutResult{}, s.storeFault(userID, "create cart", err)
	}

	attach(&completed, updated)
	return CheckoutResult{Previous: completed, New: next}, nil
}

func (s *Service) storeFault(userID, step string, err error) error {
	if db.IsTxConflict(err) {
		s.logger.Printf("checkout user=%s aborted by concurrent transaction at %s: %v", userID, step, err)
	}
	return txFailed(userID, step, err)
}

func (s *Service) publishCheckedOut(ctx context.Context, c Cart) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCartCheckedOut(ctx, c); err != nil {
		s.logger.Printf("publish CartCheckedOut failed cart=%s user=%s: %v", c.ID, c.UserID, err)
	}
}

// ListCompletedOrders returns the user's completed carts oldest first.
func (s *Service) ListCompletedOrders(ctx context.Context, userID string) ([]Cart, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}
	orders, err := s.carts.FindByUserAndStatus(ctx, s.pool, userID, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []Cart{}
	}
	ptrs := make([]*Cart, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.resolve(ctx, ptrs...); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) getOrCreate(ctx context.Context, userID string) (Cart, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		c, err := s.carts.FindActiveByUser(ctx, s.pool, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCartNotFound) {
			return Cart{}, fmt.Errorf("find cart: %w", err)
		}

		c, err = s.carts.Create(ctx, s.pool, userID, StatusActive)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrActiveCartExists) {
			return Cart{}, fmt.Errorf("create cart: %w", err)
		}
		// Someone else created it first; read theirs.
	}
	return Cart{}, txFailed(userID, "active cart kept changing", ErrActiveCartExists)
}

// mutate loads the active cart, applies fn and saves it with a version check,
// starting over when a concurrent write wins. When create is false a missing
// active cart is NotFound.
func (s *Service) mutate(ctx context.Context, userID string, create bool, fn func(c *Cart) (bool, error)) (Cart, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		c, err := s.loadForUpdate(ctx, userID, create)
		if err != nil {
			return Cart{}, err
		}

		changed, err := fn(&c)
		if err != nil {
			return Cart{}, err
		}
		if changed {
			err = s.carts.Save(ctx, s.pool, &c)
			if errors.Is(err, ErrConflict) {
				s.logger.Printf("cart=%s user=%s changed concurrently, retrying (attempt %d)", c.ID, userID, attempt+1)
				continue
			}
			if err != nil {
				return Cart{}, fmt.Errorf("save cart: %w", err)
			}
		}

		if err := s.resolve(ctx, &c); err != nil {
			return Cart{}, err
		}
		return c, nil
	}
	return Cart{}, txFailed(userID, "too many concurrent cart updates", ErrConflict)
}

func (s *Service) loadForUpdate(ctx context.Context, userID string, create bool) (Cart, error) {
	if create {
		return s.getOrCreate(ctx, userID)
	}
	c, err := s.carts.FindActiveByUser(ctx, s.pool, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return Cart{}, notFound(userID, "", "no active cart")
		}
		return Cart{}, fmt.Errorf("find cart: %w", err)
	}
	return c, nil
}

// resolve attaches current product snapshots to every line. Lines whose
// product is gone keep a nil Product.
func (s *Service) resolve(ctx context.Context, carts ...*Cart) error {
	seen := map[string]struct{}{}
	var ids []string
	for _, c := range carts {
		for _, it := range c.Items {
			if _, ok := seen[it.ProductID]; !ok {
				seen[it.ProductID] = struct{}{}
				ids = append(ids, it.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	found, err := s.products.FindByIDs(ctx, s.pool, ids)
	if err != nil {
		return fmt.Errorf("resolve products: %w", err)
	}
	for _, c := range carts {
		attach(c, found)
	}
	return nil
}

func attach(c *Cart, products map[string]product.Product) {
	for i := range c.Items {
		if p, ok := products[c.Items[i].ProductID]; ok {
			c.Items[i].Product = &p
		}
	}
}

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalidArgument(fmt.Sprintf("%s %q is not a valid uuid", field, id))
	}
	return nil
}

func validateIDs(userID, productID string) error {
	if err := validateID("user id", userID); err != nil {
		return err
	}
	return validateID("product id", productID)
}
