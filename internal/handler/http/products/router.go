package products

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"catalog/internal/app/catalog"
)

func RegisterRoutes(r chi.Router, s catalog.ProductService, l *zap.Logger) {
	handler := NewProductHandler(s, l.With(zap.String("component", "ProductHTTPHandler")))

	r.Route("/products", func(r chi.Router) {
		r.Post("/", handler.CreateProduct)
		r.Get("/", handler.ListProducts)
		r.Get("/{productId}", handler.GetProduct)
	})
}
