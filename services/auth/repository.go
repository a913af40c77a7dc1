package auth

import (
	"context"

	"github.com/zavolah/marketplace/infra/supabase"
)

// Identity is the identity-provider surface used by the handlers.
type Identity interface {
	SignUp(ctx context.Context, req supabase.SignUpRequest) (*supabase.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	AdminDeleteUser(ctx context.Context, userID string) error
}

var _ Identity = (*supabase.AuthClient)(nil)

// Profiles reads and writes the users row that accompanies an identity.
type Profiles interface {
	Get(ctx context.Context, id string) (*Profile, error)
	Create(ctx context.Context, p *Profile) (*Profile, error)
}

var _ Profiles = (*SupabaseProfiles)(nil)

// SupabaseProfiles stores profiles in the hosted store.
type SupabaseProfiles struct {
	client *supabase.Client
}

// NewSupabaseProfiles creates a profile store over client.
func NewSupabaseProfiles(client *supabase.Client) *SupabaseProfiles {
	return &SupabaseProfiles{client: client}
}

func (s *SupabaseProfiles) Get(ctx context.Context, id string) (*Profile, error) {
	return supabase.One[Profile](ctx, s.client.From(profileTable).Select("*").Eq("id", id))
}

func (s *SupabaseProfiles) Create(ctx context.Context, p *Profile) (*Profile, error) {
	return supabase.First[Profile](ctx, s.client.From(profileTable).Insert(p))
}
