package referrals

import (
	"context"
	"fmt"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/database"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/saga"
)

// maxCodeAttempts bounds retries when a generated code collides with an
// existing one.
const maxCodeAttempts = 3

// Repository is the referrals data access surface.
type Repository interface {
	List(ctx context.Context, f Filter, page httputil.Page) ([]Referral, error)
	Get(ctx context.Context, id string) (*Referral, error)
	ByCode(ctx context.Context, code string) (*Referral, error)
	Create(ctx context.Context, in *ReferralInput) (*Referral, error)
	Approve(ctx context.Context, id, referredUserID string) (*Referral, error)
	Complete(ctx context.Context, id string, amount float64) (float64, error)
	ProcessSignup(ctx context.Context, code, newUserID string) (*Referral, error)

	ListEarnings(ctx context.Context, f Filter, page httputil.Page) ([]Earning, error)
	GetEarning(ctx context.Context, id string) (*Earning, error)
	CreateEarning(ctx context.Context, in *EarningInput) (*Earning, error)
	PayEarning(ctx context.Context, id string) (*Earning, error)

	Stats(ctx context.Context, userID string) (*Stats, error)
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores referrals in the hosted store. Completing a
// referral runs as a saga unless a transactional store is attached.
type SupabaseRepository struct {
	client   *supabase.Client
	tx       *database.Store
	recorder saga.Recorder
	logger   *logging.Logger
	newCode  func() string
}

// Option configures a SupabaseRepository.
type Option func(*SupabaseRepository)

// WithTxStore completes referrals in one SQL transaction.
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

// WithCodeGenerator replaces NewCode.
func WithCodeGenerator(fn func() string) Option {
	return func(r *SupabaseRepository) { r.newCode = fn }
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client, opts ...Option) *SupabaseRepository {
	r := &SupabaseRepository{client: client, newCode: NewCode}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewDefault("referrals")
	}
	return r
}

// =============================================================================
// Referrals
// =============================================================================

func (r *SupabaseRepository) List(ctx context.Context, f Filter, page httputil.Page) ([]Referral, error) {
	q := r.client.From(referralsTable).Select("*")
	if f.ReferrerID != "" {
		q = q.Eq("referrer_id", f.ReferrerID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	if f.ReferralType != "" {
		q = q.Eq("referral_type", f.ReferralType)
	}
	return supabase.List[Referral](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) Get(ctx context.Context, id string) (*Referral, error) {
	return supabase.One[Referral](ctx, r.client.From(referralsTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) ByCode(ctx context.Context, code string) (*Referral, error) {
	return supabase.One[Referral](ctx, r.client.From(referralsTable).Select("*").Eq("referral_code", code))
}

func (r *SupabaseRepository) Create(ctx context.Context, in *ReferralInput) (*Referral, error) {
	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		var created *Referral
		created, err = supabase.First[Referral](ctx, r.client.From(referralsTable).Insert(map[string]interface{}{
			"referrer_id":       in.ReferrerID,
			"referred_email":    in.ReferredEmail,
			"referral_code":     r.newCode(),
			"referral_type":     in.ReferralType,
			"commission_rate":   in.CommissionRate,
			"status":            StatusPending,
			"commission_earned": 0,
		}))
		if !supabase.IsConflict(err) {
			return created, err
		}
		r.logger.WithContext(ctx).WithField("attempt", attempt+1).Warn("referral code collision, regenerating")
	}
	return nil, fmt.Errorf("generate unique referral code: %w", err)
}

func (r *SupabaseRepository) Approve(ctx context.Context, id, referredUserID string) (*Referral, error) {
	return supabase.First[Referral](ctx, r.client.From(referralsTable).Update(map[string]interface{}{
		"referred_user_id": referredUserID,
		"status":           StatusActive,
	}).Eq("id", id))
}

// Complete marks the referral completed and records the referrer's earning.
// It returns the commission earned on amount.
func (r *SupabaseRepository) Complete(ctx context.Context, id string, amount float64) (float64, error) {
	ref, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	earned := Commission(amount, ref.CommissionRate)

	if r.tx != nil {
		_, err := r.tx.CompleteReferral(ctx, database.ReferralCompletion{
			ReferralID:       ref.ID,
			CommissionEarned: earned,
			Earning: database.EarningRecord{
				UserID:      ref.ReferrerID,
				Amount:      earned,
				Source:      SourceCommission,
				Description: commissionDescription(ref.ReferralCode),
				Status:      EarningPending,
			},
		})
		return earned, err
	}

	run := saga.New("complete_referral", r.logger, r.recorder).
		Step("mark_completed", func(ctx context.Context) error {
			_, err := supabase.First[Referral](ctx, r.client.From(referralsTable).Update(map[string]interface{}{
				"status":            StatusCompleted,
				"commission_earned": earned,
			}).Eq("id", ref.ID))
			return err
		}, func(ctx context.Context) error {
			_, err := r.client.From(referralsTable).Update(map[string]interface{}{
				"status":            ref.Status,
				"commission_earned": ref.CommissionEarned,
			}).Eq("id", ref.ID).Execute(ctx)
			return err
		}).
		Step("insert_earning", func(ctx context.Context) error {
			_, err := r.client.From(earningsTable).Insert(map[string]interface{}{
				"user_id":     ref.ReferrerID,
				"referral_id": ref.ID,
				"amount":      earned,
				"source":      SourceCommission,
				"description": commissionDescription(ref.ReferralCode),
				"status":      EarningPending,
			}).Execute(ctx)
			return err
		}, nil)

	if err := run.Run(ctx); err != nil {
		return 0, err
	}
	return earned, nil
}

// ProcessSignup links a newly registered user to the referral behind code
// and records the referrer on the user's profile.
func (r *SupabaseRepository) ProcessSignup(ctx context.Context, code, newUserID string) (*Referral, error) {
	ref, err := r.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var activated *Referral
	run := saga.New("process_referral_signup", r.logger, r.recorder).
		Step("activate_referral", func(ctx context.Context) error {
			activated, err = supabase.First[Referral](ctx, r.client.From(referralsTable).Update(map[string]interface{}{
				"referred_user_id": newUserID,
				"status":           StatusActive,
			}).Eq("id", ref.ID))
			return err
		}, func(ctx context.Context) error {
			_, err := r.client.From(referralsTable).Update(map[string]interface{}{
				"referred_user_id": ref.ReferredUserID,
				"status":           ref.Status,
			}).Eq("id", ref.ID).Execute(ctx)
			return err
		}).
		Step("set_referred_by", func(ctx context.Context) error {
			_, err := supabase.First[map[string]interface{}](ctx, r.client.From(usersTable).Update(map[string]interface{}{
				"referred_by": ref.ReferrerID,
			}).Eq("id", newUserID))
			return err
		}, nil)

	if err := run.Run(ctx); err != nil {
		return nil, err
	}
	return activated, nil
}

// =============================================================================
// Earnings
// =============================================================================

func (r *SupabaseRepository) ListEarnings(ctx context.Context, f Filter, page httputil.Page) ([]Earning, error) {
	q := r.client.From(earningsTable).Select("*")
	if f.UserID != "" {
		q = q.Eq("user_id", f.UserID)
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	if f.Source != "" {
		q = q.Eq("source", f.Source)
	}
	return supabase.List[Earning](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetEarning(ctx context.Context, id string) (*Earning, error) {
	return supabase.One[Earning](ctx, r.client.From(earningsTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) CreateEarning(ctx context.Context, in *EarningInput) (*Earning, error) {
	return supabase.First[Earning](ctx, r.client.From(earningsTable).Insert(map[string]interface{}{
		"user_id":     in.UserID,
		"referral_id": in.ReferralID,
		"amount":      in.Amount,
		"source":      in.Source,
		"description": in.Description,
		"status":      EarningPending,
	}))
}

func (r *SupabaseRepository) PayEarning(ctx context.Context, id string) (*Earning, error) {
	return supabase.First[Earning](ctx, r.client.From(earningsTable).Update(map[string]interface{}{
		"status": EarningPaid,
	}).Eq("id", id))
}

func (r *SupabaseRepository) Stats(ctx context.Context, userID string) (*Stats, error) {
	refs, err := supabase.List[Referral](ctx, r.client.From(referralsTable).Select("*").Eq("referrer_id", userID))
	if err != nil {
		return nil, fmt.Errorf("load referrals: %w", err)
	}
	earnings, err := supabase.List[Earning](ctx, r.client.From(earningsTable).Select("*").Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("load earnings: %w", err)
	}
	s := Summarize(refs, earnings)
	return &s, nil
}
