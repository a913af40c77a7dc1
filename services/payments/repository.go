package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
)

// Repository is the payments data access surface.
type Repository interface {
	Initiate(ctx context.Context, in *InitiateInput) (*Payment, error)
	SetStatus(ctx context.Context, id, status string) (*Payment, error)
	SetStatusByIntent(ctx context.Context, intentID, status string) ([]Payment, error)
	List(ctx context.Context, f Filter, page httputil.Page) ([]Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	Fulfill(ctx context.Context, p *Payment) error

	CreateRefund(ctx context.Context, paymentID string, amount float64, reason string) (*Refund, error)
	ListRefunds(ctx context.Context, f Filter, page httputil.Page) ([]Refund, error)
	SetRefundStatus(ctx context.Context, id, status string) (*Refund, error)

	CreateChargeback(ctx context.Context, cb Chargeback) error
	Revenue(ctx context.Context) (*Revenue, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores payments in the hosted store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

func (r *SupabaseRepository) Initiate(ctx context.Context, in *InitiateInput) (*Payment, error) {
	return supabase.First[Payment](ctx, r.client.From(paymentsTable).Insert(map[string]interface{}{
		"user_id":           in.UserID,
		"amount":            in.Amount,
		"currency":          in.Currency,
		"payment_method":    in.PaymentMethod,
		"payment_intent_id": newProviderID("pi_"),
		"description":       in.Description,
		"metadata":          in.Metadata,
		"status":            StatusPending,
	}))
}

func (r *SupabaseRepository) SetStatus(ctx context.Context, id, status string) (*Payment, error) {
	return supabase.First[Payment](ctx, r.client.From(paymentsTable).Update(map[string]string{"status": status}).Eq("id", id))
}

func (r *SupabaseRepository) SetStatusByIntent(ctx context.Context, intentID, status string) ([]Payment, error) {
	return supabase.List[Payment](ctx, r.client.From(paymentsTable).Update(map[string]string{"status": status}).Eq("payment_intent_id", intentID))
}

func (r *SupabaseRepository) List(ctx context.Context, f Filter, page httputil.Page) ([]Payment, error) {
	q := r.client.From(paymentsTable).Select("*")
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	if f.PaymentMethod != "" {
		q = q.Eq("payment_method", f.PaymentMethod)
	}
	return supabase.List[Payment](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) Get(ctx context.Context, id string) (*Payment, error) {
	return supabase.One[Payment](ctx, r.client.From(paymentsTable).Select("*").Eq("id", id))
}

// Fulfill confirms every order, booking and marketplace purchase named in the
// payment's metadata. Each target is attempted; the failures are joined.
func (r *SupabaseRepository) Fulfill(ctx context.Context, p *Payment) error {
	var errs []error
	for _, target := range fulfillmentTargets {
		id, _ := p.Metadata[target.key].(string)
		if id == "" {
			continue
		}
		_, err := r.client.From(target.table).Update(map[string]string{
			"status":         "confirmed",
			"payment_status": StatusCompleted,
		}).Eq("id", id).Execute(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("confirm %s %s: %w", target.table, id, err))
		}
	}
	return errors.Join(errs...)
}

func (r *SupabaseRepository) CreateRefund(ctx context.Context, paymentID string, amount float64, reason string) (*Refund, error) {
	return supabase.First[Refund](ctx, r.client.From(refundsTable).Insert(map[string]interface{}{
		"payment_id": paymentID,
		"amount":     amount,
		"reason":     reason,
		"refund_id":  newProviderID("re_"),
		"status":     RefundPending,
	}))
}

func (r *SupabaseRepository) ListRefunds(ctx context.Context, f Filter, page httputil.Page) ([]Refund, error) {
	q := r.client.From(refundsTable).Select("*")
	if f.PaymentID != "" {
		q = q.Eq("payment_id", f.PaymentID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	return supabase.List[Refund](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) SetRefundStatus(ctx context.Context, id, status string) (*Refund, error) {
	return supabase.First[Refund](ctx, r.client.From(refundsTable).Update(map[string]string{"status": status}).Eq("id", id))
}

func (r *SupabaseRepository) CreateChargeback(ctx context.Context, cb Chargeback) error {
	_, err := r.client.From(chargebacksTable).Insert(cb).Execute(ctx)
	return err
}

func (r *SupabaseRepository) Revenue(ctx context.Context) (*Revenue, error) {
	payments, err := supabase.List[Payment](ctx, r.client.From(paymentsTable).Select("*").Eq("status", StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("load completed payments: %w", err)
	}
	refunds, err := supabase.List[Refund](ctx, r.client.From(refundsTable).Select("*").Eq("status", RefundCompleted))
	if err != nil {
		return nil, fmt.Errorf("load completed refunds: %w", err)
	}
	rev := Summarize(payments, refunds)
	return &rev, nil
}
