package users

import (
	"context"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/services/bookings"
	"github.com/zavolah/marketplace/services/orders"
)

// Repository is the users data access surface.
type Repository interface {
	List(ctx context.Context, role string, page httputil.Page) ([]User, error)
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, id string, changes map[string]interface{}) (*User, error)
	Delete(ctx context.Context, id string) error
	DeleteIdentity(ctx context.Context, id string) error
	Referred(ctx context.Context, referrerID string) ([]User, error)
	Orders(ctx context.Context, userID string, page httputil.Page) ([]orders.Order, error)
	Bookings(ctx context.Context, userID string, page httputil.Page) ([]bookings.Booking, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository reads and writes profiles in the hosted store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

func (r *SupabaseRepository) List(ctx context.Context, role string, page httputil.Page) ([]User, error) {
	q := r.client.From(table).Select("*")
	if role != "" {
		q = q.Eq("role", role)
	}
	return supabase.List[User](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) Get(ctx context.Context, id string) (*User, error) {
	return supabase.One[User](ctx, r.client.From(table).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*User, error) {
	return supabase.First[User](ctx, r.client.From(table).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) Delete(ctx context.Context, id string) error {
	_, err := supabase.First[User](ctx, r.client.From(table).Delete().Eq("id", id))
	return err
}

// DeleteIdentity removes the identity-provider account behind the profile.
func (r *SupabaseRepository) DeleteIdentity(ctx context.Context, id string) error {
	return r.client.Auth().AdminDeleteUser(ctx, id)
}

func (r *SupabaseRepository) Referred(ctx context.Context, referrerID string) ([]User, error) {
	return supabase.List[User](ctx, r.client.From(table).Select("*").Eq("referred_by", referrerID))
}

func (r *SupabaseRepository) Orders(ctx context.Context, userID string, page httputil.Page) ([]orders.Order, error) {
	return supabase.List[orders.Order](ctx, r.client.From("orders").Select("*").
		Eq("user_id", userID).
		Order("created_at", supabase.OrderDesc).
		Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) Bookings(ctx context.Context, userID string, page httputil.Page) ([]bookings.Booking, error) {
	return supabase.List[bookings.Booking](ctx, r.client.From("bookings").Select("*").
		Eq("user_id", userID).
		Order("created_at", supabase.OrderDesc).
		Page(page.Limit, page.Offset))
}
