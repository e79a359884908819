// Package product searches the shop catalogue so chat answers can recommend items.
package product

import "context"

// Product is a catalogue entry surfaced in chat responses.
type Product struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Source finds products matching a free-text query.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]Product, error)
}
