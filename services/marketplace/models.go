// Package marketplace serves seller designs, seller profiles and design
// purchases.
package marketplace

import "strings"

const (
	designsTable   = "marketplace_designs"
	sellersTable   = "marketplace_sellers"
	purchasesTable = "marketplace_purchases"
)

// Design statuses.
const (
	DesignActive  = "active"
	DesignDeleted = "deleted"
)

// Design is a row of marketplace_designs.
type Design struct {
	ID             string                 `json:"id"`
	SellerID       string                 `json:"seller_id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Price          float64                `json:"price"`
	Category       string                 `json:"category"`
	Images         []string               `json:"images"`
	Specifications map[string]interface{} `json:"specifications"`
	Status         string                 `json:"status"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

// DesignInput is the create and full-replace payload for a design.
type DesignInput struct {
	SellerID       string                 `json:"seller_id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Price          float64                `json:"price"`
	Category       string                 `json:"category"`
	Images         []string               `json:"images"`
	Specifications map[string]interface{} `json:"specifications"`
}

func (in *DesignInput) validate(create bool) string {
	switch {
	case create && strings.TrimSpace(in.SellerID) == "":
		return "seller_id is required"
	case strings.TrimSpace(in.Title) == "":
		return "title is required"
	case strings.TrimSpace(in.Category) == "":
		return "category is required"
	case in.Price < 0:
		return "price must not be negative"
	}
	return ""
}

// fields is the editable column set of a design.
func (in *DesignInput) fields() map[string]interface{} {
	images := in.Images
	if images == nil {
		images = []string{}
	}
	specs := in.Specifications
	if specs == nil {
		specs = map[string]interface{}{}
	}
	return map[string]interface{}{
		"title":          in.Title,
		"description":    in.Description,
		"price":          in.Price,
		"category":       in.Category,
		"images":         images,
		"specifications": specs,
	}
}

// DesignFilter narrows GET /marketplace/designs.
type DesignFilter struct {
	Category string
	SellerID string
	MinPrice *float64
	MaxPrice *float64
}

// Seller is a row of marketplace_sellers.
type Seller struct {
	ID           string   `json:"id,omitempty"`
	UserID       string   `json:"user_id"`
	CompanyName  string   `json:"company_name"`
	Description  string   `json:"description"`
	PortfolioURL *string  `json:"portfolio_url"`
	Rating       *float64 `json:"rating"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

func (s *Seller) validate() string {
	switch {
	case strings.TrimSpace(s.UserID) == "":
		return "user_id is required"
	case strings.TrimSpace(s.CompanyName) == "":
		return "company_name is required"
	case s.Rating != nil && (*s.Rating < 0 || *s.Rating > 5):
		return "rating must be between 0 and 5"
	}
	return ""
}

// Purchase is a row of marketplace_purchases.
type Purchase struct {
	ID             string                 `json:"id"`
	BuyerID        string                 `json:"buyer_id"`
	DesignID       string                 `json:"design_id"`
	Quantity       int                    `json:"quantity"`
	TotalPrice     float64                `json:"total_price"`
	Status         string                 `json:"status"`
	PaymentStatus  string                 `json:"payment_status,omitempty"`
	Customizations map[string]interface{} `json:"customizations"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

// PurchaseInput is the body of POST /marketplace/purchases.
type PurchaseInput struct {
	BuyerID        string                 `json:"buyer_id"`
	DesignID       string                 `json:"design_id"`
	Quantity       int                    `json:"quantity"`
	Customizations map[string]interface{} `json:"customizations"`
}

func (in *PurchaseInput) validate() string {
	switch {
	case strings.TrimSpace(in.BuyerID) == "":
		return "buyer_id is required"
	case strings.TrimSpace(in.DesignID) == "":
		return "design_id is required"
	case in.Quantity <= 0:
		return "quantity must be positive"
	}
	return ""
}

// TotalPrice is the unit price times the quantity.
func TotalPrice(unit float64, quantity int) float64 {
	return unit * float64(quantity)
}
