package domain

import "time"

// ProductsCreatedEvent is published once per batch that created at least one product.
type ProductsCreatedEvent struct {
	Products  []Product `json:"products"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProductsCreatedEvent(products []Product, at time.Time) ProductsCreatedEvent {
	return ProductsCreatedEvent{
		Products:  products,
		Total:     len(products),
		Timestamp: at.UTC(),
	}
}
