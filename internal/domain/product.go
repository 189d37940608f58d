package domain

// RawProduct is an untrusted, loosely typed product document as it arrives from
// a CSV row, a queue message or an HTTP body. Only catalog.Sanitize reads it.
type RawProduct map[string]any

// ProductInput is a sanitized product candidate. Count stays a float64 until
// validation has proven it is a finite non-negative integer.
type ProductInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       float64 `json:"count"`
	Image       string  `json:"image,omitempty"`
}

// Raw converts the input back into its boundary representation.
func (in ProductInput) Raw() RawProduct {
	raw := RawProduct{
		"title":       in.Title,
		"description": in.Description,
		"price":       in.Price,
		"count":       in.Count,
	}
	if in.Image != "" {
		raw["image"] = in.Image
	}
	return raw
}

// CatalogRecord is the descriptive half of a product, keyed by ID.
type CatalogRecord struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Image       string  `json:"image,omitempty"`
}

// StockRecord is the quantity-on-hand half of a product, keyed by ProductID.
type StockRecord struct {
	ProductID string `json:"product_id"`
	Count     int64  `json:"count"`
}

// Product is the joined view of a catalog record and its stock count.
type Product struct {
	CatalogRecord
	Count int64 `json:"count"`
}

func NewProduct(record CatalogRecord, stock StockRecord) Product {
	return Product{CatalogRecord: record, Count: stock.Count}
}
