package bookings

import (
	"context"
	"time"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
)

// Repository is the bookings data access surface.
type Repository interface {
	ListServices(ctx context.Context, category string, active *bool, page httputil.Page) ([]Service, error)
	GetService(ctx context.Context, id string) (*Service, error)
	CreateService(ctx context.Context, in *ServiceInput) (*Service, error)
	UpdateService(ctx context.Context, id string, changes map[string]interface{}) (*Service, error)
	Categories(ctx context.Context) ([]string, error)

	ListBookings(ctx context.Context, f BookingFilter, page httputil.Page) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (*Booking, error)
	CreateBooking(ctx context.Context, in *BookingInput) (*Booking, error)
	UpdateBooking(ctx context.Context, id string, changes map[string]interface{}) (*Booking, error)
	UserBookings(ctx context.Context, userID string) ([]Booking, error)
	StaffBookings(ctx context.Context, staffID string) ([]Booking, error)
	ServiceBookings(ctx context.Context, serviceID string) ([]Booking, error)
	BookingsOn(ctx context.Context, serviceID string, date time.Time) ([]Booking, error)

	CreateReview(ctx context.Context, in *ReviewInput) (*Review, error)
	GetReview(ctx context.Context, id string) (*Review, error)
	ServiceReviews(ctx context.Context, serviceID string) ([]Review, error)
	UserReviews(ctx context.Context, userID string) ([]Review, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores services, bookings and reviews in the hosted
// store.
type SupabaseRepository struct {
	client *supabase.Client
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client) *SupabaseRepository {
	return &SupabaseRepository{client: client}
}

// =============================================================================
// Services
// =============================================================================

func (r *SupabaseRepository) ListServices(ctx context.Context, category string, active *bool, page httputil.Page) ([]Service, error) {
	q := r.client.From(servicesTable).Select("*")
	if category != "" {
		q = q.Eq("category", category)
	}
	if active != nil {
		q = q.Eq("is_active", *active)
	}
	return supabase.List[Service](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetService(ctx context.Context, id string) (*Service, error) {
	return supabase.One[Service](ctx, r.client.From(servicesTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateService(ctx context.Context, in *ServiceInput) (*Service, error) {
	row := in.fields()
	row["is_active"] = true
	return supabase.First[Service](ctx, r.client.From(servicesTable).Insert(row))
}

func (r *SupabaseRepository) UpdateService(ctx context.Context, id string, changes map[string]interface{}) (*Service, error) {
	return supabase.First[Service](ctx, r.client.From(servicesTable).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) Categories(ctx context.Context) ([]string, error) {
	return supabase.Distinct(ctx, r.client.From(servicesTable).Eq("is_active", true), "category")
}

// =============================================================================
// Bookings
// =============================================================================

func (r *SupabaseRepository) ListBookings(ctx context.Context, f BookingFilter, page httputil.Page) ([]Booking, error) {
	q := r.client.From(bookingsTable).Select("*")
	for col, v := range map[string]string{
		"user_id":        f.UserID,
		"service_id":     f.ServiceID,
		"status":         f.Status,
		"assigned_staff": f.AssignedStaff,
	} {
		if v != "" {
			q = q.Eq(col, v)
		}
	}
	return supabase.List[Booking](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetBooking(ctx context.Context, id string) (*Booking, error) {
	return supabase.One[Booking](ctx, r.client.From(bookingsTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateBooking(ctx context.Context, in *BookingInput) (*Booking, error) {
	return supabase.First[Booking](ctx, r.client.From(bookingsTable).Insert(map[string]interface{}{
		"user_id":        in.UserID,
		"service_id":     in.ServiceID,
		"preferred_date": in.PreferredDate,
		"preferred_time": in.PreferredTime,
		"notes":          in.Notes,
		"contact_info":   in.ContactInfo,
		"status":         StatusPending,
		"payment_status": PaymentPending,
	}))
}

func (r *SupabaseRepository) UpdateBooking(ctx context.Context, id string, changes map[string]interface{}) (*Booking, error) {
	return supabase.First[Booking](ctx, r.client.From(bookingsTable).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) UserBookings(ctx context.Context, userID string) ([]Booking, error) {
	return supabase.List[Booking](ctx, r.client.From(bookingsTable).Select("*").
		Eq("user_id", userID).Order("created_at", supabase.OrderDesc))
}

func (r *SupabaseRepository) StaffBookings(ctx context.Context, staffID string) ([]Booking, error) {
	return supabase.List[Booking](ctx, r.client.From(bookingsTable).Select("*").
		Eq("assigned_staff", staffID).Order("actual_date", supabase.OrderDesc))
}

func (r *SupabaseRepository) ServiceBookings(ctx context.Context, serviceID string) ([]Booking, error) {
	return supabase.List[Booking](ctx, r.client.From(bookingsTable).Select("*").Eq("service_id", serviceID))
}

// BookingsOn returns the non-cancelled bookings of a service requested or
// confirmed for date.
func (r *SupabaseRepository) BookingsOn(ctx context.Context, serviceID string, date time.Time) ([]Booking, error) {
	day := date.Format(time.DateOnly)
	return supabase.List[Booking](ctx, r.client.From(bookingsTable).Select("*").
		Eq("service_id", serviceID).
		Or("preferred_date.eq."+day+",actual_date.eq."+day).
		Neq("status", StatusCancelled))
}

// =============================================================================
// Reviews
// =============================================================================

func (r *SupabaseRepository) CreateReview(ctx context.Context, in *ReviewInput) (*Review, error) {
	return supabase.First[Review](ctx, r.client.From(reviewsTable).Insert(map[string]interface{}{
		"booking_id": in.BookingID,
		"user_id":    in.UserID,
		"rating":     in.Rating,
		"comment":    in.Comment,
	}))
}

func (r *SupabaseRepository) GetReview(ctx context.Context, id string) (*Review, error) {
	return supabase.One[Review](ctx, r.client.From(reviewsTable).Select("*").Eq("id", id))
}

// ServiceReviews resolves the service's booking ids first since reviews
// reference bookings rather than services.
func (r *SupabaseRepository) ServiceReviews(ctx context.Context, serviceID string) ([]Review, error) {
	ids, err := supabase.Distinct(ctx, r.client.From(bookingsTable).Eq("service_id", serviceID), "id")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Review{}, nil
	}
	return supabase.List[Review](ctx, r.client.From(reviewsTable).Select("*").
		In("booking_id", ids).Order("created_at", supabase.OrderDesc))
}

func (r *SupabaseRepository) UserReviews(ctx context.Context, userID string) ([]Review, error) {
	return supabase.List[Review](ctx, r.client.From(reviewsTable).Select("*").
		Eq("user_id", userID).Order("created_at", supabase.OrderDesc))
}
