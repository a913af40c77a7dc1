// Package products serves the store catalogue.
package products

import "strings"

const table = "products"

// Product is a row of products.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	InStock     bool    `json:"in_stock"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// ProductInput is the create and full-replace payload.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	InStock     *bool   `json:"in_stock"`
}

func (in *ProductInput) validate() string {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "name is required"
	case strings.TrimSpace(in.Category) == "":
		return "category is required"
	case in.Price < 0:
		return "price must not be negative"
	}
	return ""
}

// record is the column set written on create and update.
func (in *ProductInput) record() map[string]interface{} {
	inStock := true
	if in.InStock != nil {
		inStock = *in.InStock
	}
	return map[string]interface{}{
		"name":        in.Name,
		"description": in.Description,
		"price":       in.Price,
		"category":    in.Category,
		"image":       in.Image,
		"in_stock":    inStock,
	}
}
