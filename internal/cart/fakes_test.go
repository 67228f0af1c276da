package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

// memState is the whole in-memory database.
type memState struct {
	carts    map[string]Cart
	products map[string]product.Product
	clock    int
}

func (s *memState) clone() *memState {
	out := &memState{
		carts:    make(map[string]Cart, len(s.carts)),
		products: make(map[string]product.Product, len(s.products)),
		clock:    s.clock,
	}
	for id, c := range s.carts {
		out.carts[id] = c.clone()
	}
	for id, p := range s.products {
		out.products[id] = p
	}
	return out
}

func (s *memState) now() time.Time {
	s.clock++
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.clock) * time.Second)
}

// memDB stands in for the pool. Writes outside a transaction are applied
// immediately; a transaction works on a private copy and publishes it on
// commit. Transactions and plain calls are serialized, which is the
// strongest isolation Postgres could give and keeps the fake simple.
type memDB struct {
	db.Querier

	lock  sync.Mutex // held for a whole transaction or a single plain call
	state *memState

	// fail, when set, is consulted before every store operation.
	fail       func(op string) error
	commitErr  error
	beginCount int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{carts: map[string]Cart{}, products: map[string]product.Product{}}}
}

func (m *memDB) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	m.lock.Lock()
	m.beginCount++
	return &memTx{db: m, state: m.state.clone()}, nil
}

// view returns the state q operates on and a func releasing it.
func (m *memDB) view(q db.Querier, op string) (*memState, func(), error) {
	if tx, ok := q.(*memTx); ok {
		if tx.done {
			return nil, nil, pgx.ErrTxClosed
		}
		if err := m.check(op); err != nil {
			return nil, nil, err
		}
		return tx.state, func() {}, nil
	}
	m.lock.Lock()
	if err := m.check(op); err != nil {
		m.lock.Unlock()
		return nil, nil, err
	}
	return m.state, m.lock.Unlock, nil
}

func (m *memDB) check(op string) error {
	if m.fail == nil {
		return nil
	}
	return m.fail(op)
}

func (m *memDB) addProduct(stock int, price string) product.Product {
	m.lock.Lock()
	defer m.lock.Unlock()
	p := product.Product{ID: uuid.NewString(), Title: "item", Stock: stock}
	p.Price = mustDecimal(price)
	p.Derive()
	m.state.products[p.ID] = p
	return p
}

func (m *memDB) product(id string) product.Product {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state.products[id]
}

func (m *memDB) cartsOf(userID string) []Cart {
	m.lock.Lock()
	defer m.lock.Unlock()
	var out []Cart
	for _, c := range m.state.carts {
		if c.UserID == userID {
			out = append(out, c.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memTx struct {
	pgx.Tx
	db    *memDB
	state *memState
	done  bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.db.lock.Unlock()
	if t.db.commitErr != nil {
		return t.db.commitErr
	}
	t.db.state = t.state
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.lock.Unlock()
	return nil
}

// memCarts implements Store on memDB.
type memCarts struct{ db *memDB }

func (r memCarts) findActive(st *memState, userID string) (Cart, error) {
	for _, c := range st.carts {
		if c.UserID == userID && c.Status == StatusActive {
			out := c.clone()
			out.Recalculate()
			return out, nil
		}
	}
	return Cart{}, ErrCartNotFound
}

func (r memCarts) FindActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error) {
	st, release, err := r.db.view(q, "FindActiveByUser")
	if err != nil {
		return Cart{}, err
	}
	defer release()
	return r.findActive(st, userID)
}

func (r memCarts) LockActiveByUser(ctx context.Context, q db.Querier, userID string) (Cart, error) {
	st, release, err := r.db.view(q, "LockActiveByUser")
	if err != nil {
		return Cart{}, err
	}
	defer release()
	return r.findActive(st, userID)
}

func (r memCarts) Create(ctx context.Context, q db.Querier, userID string, status Status) (Cart, error) {
	st, release, err := r.db.view(q, "Create")
	if err != nil {
		return Cart{}, err
	}
	defer release()
	if status == StatusActive {
		if _, err := r.findActive(st, userID); err == nil {
			return Cart{}, ErrActiveCartExists
		}
	}
	now := st.now()
	c := Cart{ID: uuid.NewString(), UserID: userID, Items: []Item{}, Status: status, Version: 1, CreatedAt: now, UpdatedAt: now}
	st.carts[c.ID] = c.clone()
	return c, nil
}

func (r memCarts) Save(ctx context.Context, q db.Querier, c *Cart) error {
	st, release, err := r.db.view(q, "Save")
	if err != nil {
		return err
	}
	defer release()
	cur, ok := st.carts[c.ID]
	if !ok || cur.Version != c.Version || cur.Status != StatusActive {
		return ErrConflict
	}
	saved := c.clone()
	for i := range saved.Items {
		saved.Items[i].Product = nil
	}
	saved.Version++
	saved.UpdatedAt = st.now()
	st.carts[c.ID] = saved
	c.Version = saved.Version
	c.UpdatedAt = saved.UpdatedAt
	c.Recalculate()
	return nil
}

func (r memCarts) FindByUserAndStatus(ctx context.Context, q db.Querier, userID string, status Status) ([]Cart, error) {
	st, release, err := r.db.view(q, "FindByUserAndStatus")
	if err != nil {
		return nil, err
	}
	defer release()
	var out []Cart
	for _, c := range st.carts {
		if c.UserID == userID && c.Status == status {
			cc := c.clone()
			cc.Recalculate()
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// memProducts implements ProductStore on memDB.
type memProducts struct{ db *memDB }

func (r memProducts) FindByID(ctx context.Context, q db.Querier, id string) (product.Product, error) {
	st, release, err := r.db.view(q, "FindByID")
	if err != nil {
		return product.Product{}, err
	}
	defer release()
	p, ok := st.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (r memProducts) FindByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]product.Product, error) {
	st, release, err := r.db.view(q, "FindByIDs")
	if err != nil {
		return nil, err
	}
	defer release()
	out := map[string]product.Product{}
	for _, id := range ids {
		if p, ok := st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r memProducts) LockByIDs(ctx context.Context, q db.Querier, ids []string) (map[string]product.Product, error) {
	if _, ok := q.(*memTx); !ok {
		return nil, errors.New("LockByIDs outside a transaction")
	}
	return r.FindByIDs(ctx, q, ids)
}

func (r memProducts) DecrementStock(ctx context.Context, q db.Querier, id string, qty int) (product.Product, error) {
	if qty < 1 {
		return product.Product{}, product.ErrInvalidInput
	}
	st, release, err := r.db.view(q, "DecrementStock")
	if err != nil {
		return product.Product{}, err
	}
	defer release()
	p, ok := st.products[id]
	if !ok || p.Stock < qty {
		return product.Product{}, product.ErrInsufficientStock
	}
	p.Stock -= qty
	p.Derive()
	st.products[id] = p
	return p, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	carts []Cart
	err   error
}

func (p *recordingPublisher) PublishCartCheckedOut(ctx context.Context, c Cart) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.carts = append(p.carts, c)
	return p.err
}

func (p *recordingPublisher) published() []Cart {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Cart(nil), p.carts...)
}
