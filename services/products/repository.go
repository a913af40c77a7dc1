package products

import (
	"context"

	"github.com/zavolah/marketplace/infra/supabase"
)

// Repository is the products data access surface.
type Repository interface {
	List(ctx context.Context, category string) ([]Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, in *ProductInput) (*Product, error)
	Update(ctx context.Context, id string, in *ProductInput) (*Product, error)
	Delete(ctx context.Context, id string) error
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores products in the hosted store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

func (r *SupabaseRepository) List(ctx context.Context, category string) ([]Product, error) {
	q := r.client.From(table).Select("*")
	if category != "" {
		q = q.Eq("category", category)
	}
	return supabase.List[Product](ctx, q)
}

func (r *SupabaseRepository) Get(ctx context.Context, id string) (*Product, error) {
	return supabase.One[Product](ctx, r.client.From(table).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) Create(ctx context.Context, in *ProductInput) (*Product, error) {
	return supabase.First[Product](ctx, r.client.From(table).Insert(in.record()))
}

func (r *SupabaseRepository) Update(ctx context.Context, id string, in *ProductInput) (*Product, error) {
	return supabase.First[Product](ctx, r.client.From(table).Update(in.record()).Eq("id", id))
}

func (r *SupabaseRepository) Delete(ctx context.Context, id string) error {
	_, err := supabase.First[Product](ctx, r.client.From(table).Delete().Eq("id", id))
	return err
}
