package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

// OrderRecord is a row of orders.
type OrderRecord struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	Total           float64        `db:"total"`
	Status          string         `db:"status"`
	PaymentMethod   string         `db:"payment_method"`
	PaymentStatus   string         `db:"payment_status"`
	ShippingAddress types.JSONText `db:"shipping_address"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// OrderItemRecord is a row of order_items.
type OrderItemRecord struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	ProductID string    `db:"product_id"`
	Quantity  int       `db:"quantity"`
	Price     float64   `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

const insertOrderSQL = `
	INSERT INTO orders (id, user_id, total, status, payment_method, payment_status, shipping_address, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	RETURNING id, user_id, total, status, payment_method, payment_status, shipping_address, created_at, updated_at`

const insertOrderItemSQL = `
	INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, order_id, product_id, quantity, price, created_at`

// CreateOrder inserts an order and its items in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order OrderRecord, items []OrderItemRecord) (*OrderRecord, []OrderItemRecord, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if len(order.ShippingAddress) == 0 {
		order.ShippingAddress = types.JSONText("{}")
	}
	now := s.now()

	var (
		created      OrderRecord
		createdItems = make([]OrderItemRecord, 0, len(items))
	)
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, insertOrderSQL,
			order.ID, order.UserID, order.Total, order.Status, order.PaymentMethod,
			order.PaymentStatus, order.ShippingAddress, now,
		).StructScan(&created); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range items {
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			var row OrderItemRecord
			if err := tx.QueryRowxContext(ctx, insertOrderItemSQL,
				item.ID, created.ID, item.ProductID, item.Quantity, item.Price, now,
			).StructScan(&row); err != nil {
				return fmt.Errorf("insert order item %d: %w", i, err)
			}
			createdItems = append(createdItems, row)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &created, createdItems, nil
}
