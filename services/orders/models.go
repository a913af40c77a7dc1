// Package orders serves store orders and their line items.
package orders

import "strings"

const (
	ordersTable = "orders"
	itemsTable  = "order_items"
)

// Order statuses accepted by PUT /orders/{id}/status.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

// ValidStatus reports whether s is an order status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// Order is a row of orders.
type Order struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Total           float64                `json:"total"`
	Status          string                 `json:"status"`
	PaymentMethod   string                 `json:"payment_method"`
	PaymentStatus   string                 `json:"payment_status"`
	ShippingAddress map[string]interface{} `json:"shipping_address"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

// Item is a row of order_items.
type Item struct {
	ID        string  `json:"id,omitempty"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// ItemInput is one line of a new order.
type ItemInput struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderInput is the body of POST /orders.
type OrderInput struct {
	UserID          string                 `json:"user_id"`
	Items           []ItemInput            `json:"items"`
	Total           float64                `json:"total"`
	PaymentMethod   string                 `json:"payment_method"`
	ShippingAddress map[string]interface{} `json:"shipping_address"`
}

func (in *OrderInput) validate() string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case len(in.Items) == 0:
		return "items must not be empty"
	case in.Total < 0:
		return "total must not be negative"
	case strings.TrimSpace(in.PaymentMethod) == "":
		return "payment_method is required"
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price < 0 {
			return "each item needs a product_id, a positive quantity and a price"
		}
	}
	return ""
}
