package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(carts *CartHandler, stock *StockHandler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(CORS(corsOrigins))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", health)

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(RequireUserID)

		r.Get("/", carts.GetCart)
		r.Delete("/", carts.ClearCart)
		r.Get("/completed-orders", carts.ListCompletedOrders)
		r.Get("/product", carts.GetCartItem)
		r.Post("/items", carts.AddItem)
		r.Put("/items", carts.UpdateItem)
		r.Delete("/items/{productId}", carts.RemoveItem)
		r.Post("/checkout", carts.Checkout)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/{productId}/stock", stock.GetStock)
		r.Post("/stock", stock.SetStock)
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "shop-service"})
}
