package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/database"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/saga"
)

// Repository is the orders data access surface.
type Repository interface {
	Create(ctx context.Context, in *OrderInput) (*Order, error)
	List(ctx context.Context, userID string) ([]Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*Order, error)
	Items(ctx context.Context, orderID string) ([]Item, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores orders in the hosted store. Creation runs as a
// saga unless a transactional store is attached.
type SupabaseRepository struct {
	client   *supabase.Client
	tx       *database.Store
	recorder saga.Recorder
	logger   *logging.Logger
}

// Option configures a SupabaseRepository.
type Option func(*SupabaseRepository)

// WithTxStore writes new orders and their items in one SQL transaction.
func WithTxStore(store *database.Store) Option {
	return func(r *SupabaseRepository) { r.tx = store }
}

// WithSagaRecorder counts saga compensations.
func WithSagaRecorder(rec saga.Recorder) Option {
	return func(r *SupabaseRepository) { r.recorder = rec }
}

// WithLogger sets the repository logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *SupabaseRepository) { r.logger = l }
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client, opts ...Option) *SupabaseRepository {
	r := &SupabaseRepository{client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewDefault("orders")
	}
	return r
}

func (r *SupabaseRepository) Create(ctx context.Context, in *OrderInput) (*Order, error) {
	if r.tx != nil {
		return r.createTx(ctx, in)
	}

	var order *Order
	run := saga.New("create_order", r.logger, r.recorder).
		Step("insert_order", func(ctx context.Context) error {
			created, err := supabase.First[Order](ctx, r.client.From(ordersTable).Insert(map[string]interface{}{
				"user_id":          in.UserID,
				"total":            in.Total,
				"payment_method":   in.PaymentMethod,
				"shipping_address": shippingAddress(in.ShippingAddress),
				"status":           StatusPending,
				"payment_status":   StatusPending,
			}))
			if err != nil {
				return err
			}
			order = created
			return nil
		}, func(ctx context.Context) error {
			if _, err := r.client.From(itemsTable).Delete().Eq("order_id", order.ID).Execute(ctx); err != nil {
				return err
			}
			_, err := r.client.From(ordersTable).Delete().Eq("id", order.ID).Execute(ctx)
			return err
		}).
		Step("insert_items", func(ctx context.Context) error {
			items := make([]Item, 0, len(in.Items))
			for _, it := range in.Items {
				items = append(items, Item{OrderID: order.ID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
			}
			_, err := r.client.From(itemsTable).Insert(items).Execute(ctx)
			return err
		}, nil)

	if err := run.Run(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *SupabaseRepository) createTx(ctx context.Context, in *OrderInput) (*Order, error) {
	addr, err := json.Marshal(shippingAddress(in.ShippingAddress))
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}

	items := make([]database.OrderItemRecord, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, database.OrderItemRecord{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}

	rec, _, err := r.tx.CreateOrder(ctx, database.OrderRecord{
		UserID:          in.UserID,
		Total:           in.Total,
		Status:          StatusPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   StatusPending,
		ShippingAddress: types.JSONText(addr),
	}, items)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

func (r *SupabaseRepository) List(ctx context.Context, userID string) ([]Order, error) {
	q := r.client.From(ordersTable).Select("*")
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	return supabase.List[Order](ctx, q.Order("created_at", supabase.OrderDesc))
}

func (r *SupabaseRepository) Get(ctx context.Context, id string) (*Order, error) {
	return supabase.One[Order](ctx, r.client.From(ordersTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	return supabase.First[Order](ctx, r.client.From(ordersTable).Update(map[string]string{"status": status}).Eq("id", id))
}

func (r *SupabaseRepository) Items(ctx context.Context, orderID string) ([]Item, error) {
	return supabase.List[Item](ctx, r.client.From(itemsTable).Select("*").Eq("order_id", orderID))
}

func shippingAddress(addr map[string]interface{}) map[string]interface{} {
	if addr == nil {
		return map[string]interface{}{}
	}
	return addr
}

func fromRecord(rec *database.OrderRecord) (*Order, error) {
	var addr map[string]interface{}
	if err := rec.ShippingAddress.Unmarshal(&addr); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &Order{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Total:           rec.Total,
		Status:          rec.Status,
		PaymentMethod:   rec.PaymentMethod,
		PaymentStatus:   rec.PaymentStatus,
		ShippingAddress: addr,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
	}, nil
}
