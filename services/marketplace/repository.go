package marketplace

import (
	"context"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
)

// Repository is the marketplace data access surface.
type Repository interface {
	ListDesigns(ctx context.Context, f DesignFilter, page httputil.Page) ([]Design, error)
	GetDesign(ctx context.Context, id string) (*Design, error)
	CreateDesign(ctx context.Context, in *DesignInput) (*Design, error)
	UpdateDesign(ctx context.Context, id string, fields map[string]interface{}) (*Design, error)
	Categories(ctx context.Context) ([]string, error)

	ListSellers(ctx context.Context, page httputil.Page) ([]Seller, error)
	GetSeller(ctx context.Context, userID string) (*Seller, error)
	CreateSeller(ctx context.Context, s *Seller) (*Seller, error)

	CreatePurchase(ctx context.Context, p map[string]interface{}) (*Purchase, error)
	ListPurchases(ctx context.Context, buyerID, sellerID string, page httputil.Page) ([]Purchase, error)
	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id, status string) (*Purchase, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores marketplace rows in the hosted store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

// =============================================================================
// Designs
// =============================================================================

func (r *SupabaseRepository) ListDesigns(ctx context.Context, f DesignFilter, page httputil.Page) ([]Design, error) {
	q := r.client.From(designsTable).Select("*").Eq("status", DesignActive)
	if f.Category != "" {
		q = q.Eq("category", f.Category)
	}
	if f.SellerID != "" {
		q = q.Eq("seller_id", f.SellerID)
	}
	if f.MinPrice != nil {
		q = q.Gte("price", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Lte("price", *f.MaxPrice)
	}
	return supabase.List[Design](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetDesign(ctx context.Context, id string) (*Design, error) {
	return supabase.One[Design](ctx, r.client.From(designsTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateDesign(ctx context.Context, in *DesignInput) (*Design, error) {
	row := in.fields()
	row["seller_id"] = in.SellerID
	row["status"] = DesignActive
	return supabase.First[Design](ctx, r.client.From(designsTable).Insert(row))
}

func (r *SupabaseRepository) UpdateDesign(ctx context.Context, id string, fields map[string]interface{}) (*Design, error) {
	return supabase.First[Design](ctx, r.client.From(designsTable).Update(fields).Eq("id", id))
}

func (r *SupabaseRepository) Categories(ctx context.Context) ([]string, error) {
	return supabase.Distinct(ctx, r.client.From(designsTable), "category")
}

// =============================================================================
// Sellers
// =============================================================================

func (r *SupabaseRepository) ListSellers(ctx context.Context, page httputil.Page) ([]Seller, error) {
	return supabase.List[Seller](ctx, r.client.From(sellersTable).Select("*").
		Order("created_at", supabase.OrderDesc).
		Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetSeller(ctx context.Context, userID string) (*Seller, error) {
	return supabase.One[Seller](ctx, r.client.From(sellersTable).Select("*").Eq("user_id", userID))
}

func (r *SupabaseRepository) CreateSeller(ctx context.Context, s *Seller) (*Seller, error) {
	return supabase.First[Seller](ctx, r.client.From(sellersTable).Insert(map[string]interface{}{
		"user_id":       s.UserID,
		"company_name":  s.CompanyName,
		"description":   s.Description,
		"portfolio_url": s.PortfolioURL,
		"rating":        s.Rating,
	}))
}

// =============================================================================
// Purchases
// =============================================================================

func (r *SupabaseRepository) CreatePurchase(ctx context.Context, p map[string]interface{}) (*Purchase, error) {
	return supabase.First[Purchase](ctx, r.client.From(purchasesTable).Insert(p))
}

// ListPurchases filters by buyer and by the seller owning the purchased
// design. The seller filter resolves the seller's design ids first.
func (r *SupabaseRepository) ListPurchases(ctx context.Context, buyerID, sellerID string, page httputil.Page) ([]Purchase, error) {
	q := r.client.From(purchasesTable).Select("*")
	if buyerID != "" {
		q = q.Eq("buyer_id", buyerID)
	}
	if sellerID != "" {
		designIDs, err := supabase.Distinct(ctx, r.client.From(designsTable).Eq("seller_id", sellerID), "id")
		if err != nil {
			return nil, err
		}
		if len(designIDs) == 0 {
			return []Purchase{}, nil
		}
		q = q.In("design_id", designIDs)
	}
	return supabase.List[Purchase](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	return supabase.One[Purchase](ctx, r.client.From(purchasesTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) UpdatePurchaseStatus(ctx context.Context, id, status string) (*Purchase, error) {
	return supabase.First[Purchase](ctx, r.client.From(purchasesTable).Update(map[string]string{"status": status}).Eq("id", id))
}
