package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type StockService interface {
	GetStock(ctx context.Context, productID string) (product.StockItem, error)
	SetStock(ctx context.Context, productID string, stock int) (product.StockItem, error)
}

type StockHandler struct {
	svc     StockService
	logger  *log.Logger
	timeout time.Duration
}

func NewStockHandler(svc StockService, logger *log.Logger, timeout time.Duration) *StockHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[http] ", log.LstdFlags)
	}
	return &StockHandler{svc: svc, logger: logger, timeout: timeout}
}

func (h *StockHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.svc.GetStock(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type setStockRequest struct {
	ProductID string `json:"productId"`
	Stock     *int   `json:"stock"`
}

func (h *StockHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.ProductID == "" || req.Stock == nil {
		writeError(w, http.StatusBadRequest, "productId and stock are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.svc.SetStock(ctx, req.ProductID, *req.Stock)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
