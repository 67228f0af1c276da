package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
)

// CartService is what the cart endpoints need from the engine.
type CartService interface {
	GetActiveCart(ctx context.Context, userID string) (cart.Cart, error)
	AddItem(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	UpdateItemQty(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (cart.Cart, error)
	ClearCart(ctx context.Context, userID string) (cart.Cart, error)
	GetCartItem(ctx context.Context, userID, productID string) (cart.Item, bool, error)
	Checkout(ctx context.Context, userID string) (cart.CheckoutResult, error)
	ListCompletedOrders(ctx context.Context, userID string) ([]cart.Cart, error)
}

type CartHandler struct {
	svc     CartService
	logger  *log.Logger
	timeout time.Duration
}

func NewCartHandler(svc CartService, logger *log.Logger, timeout time.Duration) *CartHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[http] ", log.LstdFlags)
	}
	return &CartHandler{svc: svc, logger: logger, timeout: timeout}
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Qty       *int   `json:"qty"`
}

type cartItemResponse struct {
	Found bool       `json:"found"`
	Item  *cart.Item `json:"item,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.svc.GetActiveCart(ctx, GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.svc.ClearCart(ctx, GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var body itemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	qty := 1
	if body.Qty != nil {
		qty = *body.Qty
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.svc.AddItem(ctx, GetUserID(r.Context()), body.ProductID, qty)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var body itemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Qty == nil {
		writeError(w, http.StatusBadRequest, "qty is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.svc.UpdateItemQty(ctx, GetUserID(r.Context()), body.ProductID, *body.Qty)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.svc.RemoveItem(ctx, GetUserID(r.Context()), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) GetCartItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, found, err := h.svc.GetCartItem(ctx, GetUserID(r.Context()), r.URL.Query().Get("productId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	resp := cartItemResponse{Found: found}
	if found {
		resp.Item = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

// Checkout has its own deadline inside the engine; the request timeout is
// not applied so a slow commit is not cut short here.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Checkout(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CartHandler) ListCompletedOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.svc.ListCompletedOrders(ctx, GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
