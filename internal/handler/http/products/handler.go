package products

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"catalog/internal/app/catalog"
	"catalog/internal/domain"
	"catalog/internal/handler/http/response"
	"catalog/internal/metrics"
)

const maxBodyBytes = 1 << 20

type ProductHandler struct {
	service catalog.ProductService
	logger  *zap.Logger
}

func NewProductHandler(s catalog.ProductService, l *zap.Logger) *ProductHandler {
	return &ProductHandler{service: s, logger: l}
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid request body for CreateProduct", zap.Error(err))
		response.JSON(w, http.StatusBadRequest, response.Message{Message: "Invalid request body"})
		return
	}
	if raw == nil {
		raw = map[string]any{}
	}

	in, err := catalog.Sanitize(raw)
	if err != nil {
		h.logger.Warn("Malformed product payload", zap.Error(err))
		response.JSON(w, http.StatusBadRequest, response.Message{Message: "Invalid product data", Errors: []string{err.Error()}})
		return
	}

	product, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	metrics.ProductsCreated.WithLabelValues("http").Inc()
	response.JSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) writeCreateError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.logger.Info("Product validation failed", zap.Strings("errors", vErr.Messages()))
		response.JSON(w, http.StatusBadRequest, response.Message{Message: "Invalid product data", Errors: vErr.Messages()})
	case errors.Is(err, domain.ErrDuplicateID):
		response.JSON(w, http.StatusConflict, response.Message{Message: "Product with this ID already exists or transaction conflict occurred"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		response.JSON(w, http.StatusServiceUnavailable, response.Message{Message: "Service temporarily unavailable. Please try again later."})
	case errors.Is(err, domain.ErrConfiguration):
		h.logger.Error("Product store misconfigured", zap.Error(err))
		response.JSON(w, http.StatusInternalServerError, response.Message{Message: "Database configuration error"})
	default:
		h.logger.Error("Error creating product", zap.Error(err))
		response.JSON(w, http.StatusInternalServerError, response.Message{Message: "Internal Server Error"})
	}
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		h.logger.Warn("Product ID is missing in GetProduct request")
		response.JSON(w, http.StatusBadRequest, response.Message{Message: "Missing productId"})
		return
	}

	product, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			response.JSON(w, http.StatusNotFound, response.Message{Message: "Product not found"})
			return
		}
		h.logger.Error("Error getting product", zap.String("product_id", productID), zap.Error(err))
		response.JSON(w, http.StatusInternalServerError, response.Message{Message: "Internal server error"})
		return
	}

	response.JSON(w, http.StatusOK, product)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("Error listing products", zap.Error(err))
		response.JSON(w, http.StatusInternalServerError, response.Message{Message: "Internal Server Error"})
		return
	}

	response.JSON(w, http.StatusOK, products)
}
