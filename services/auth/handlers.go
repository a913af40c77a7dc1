package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/middleware"
	"github.com/zavolah/marketplace/internal/saga"
)

// Handler serves /auth.
type Handler struct {
	identity Identity
	profiles Profiles
	recorder saga.Recorder
	logger   *logging.Logger
}

// NewHandler creates an auth handler. recorder may be nil.
func NewHandler(identity Identity, profiles Profiles, recorder saga.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("auth")
	}
	return &Handler{identity: identity, profiles: profiles, recorder: recorder, logger: logger}
}

// RegisterRoutes mounts the auth routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/auth").Subrouter()
	s.HandleFunc("/login", h.wrap(h.handleLogin)).Methods(http.MethodPost)
	s.HandleFunc("/register", h.wrap(h.handleRegister)).Methods(http.MethodPost)
	s.HandleFunc("/logout", h.wrap(h.handleLogout)).Methods(http.MethodPost)
	s.HandleFunc("/me", h.wrap(h.handleMe)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := httputil.Decode(r, &req); err != nil {
		return err
	}
	if msg := req.validate(); msg != "" {
		return errors.Validation(msg)
	}

	session, err := h.identity.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			h.logger.LogSecurityEvent(r.Context(), "login_failed", map[string]interface{}{"email": req.Email})
			return errors.Unauthorized("Invalid credentials")
		}
		return errors.Upstream("sign in", err)
	}
	if session.User == nil || session.AccessToken == "" {
		return errors.Unauthorized("Invalid credentials")
	}

	profile, err := h.profile(r.Context(), session.User.ID)
	if err != nil {
		return err
	}

	httputil.WriteJSON(w, http.StatusOK, Response{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		User:        userInfo(session.User.ID, session.User.Email, profile),
	})
	return nil
}

// handleRegister creates the identity and then its profile row. A failed
// profile insert deletes the identity again.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req RegisterRequest
	if err := httputil.Decode(r, &req); err != nil {
		return err
	}
	if msg := req.validate(); msg != "" {
		return errors.Validation(msg)
	}

	var session *supabase.Session
	run := saga.New("register", h.logger, h.recorder).
		Step("sign_up", func(ctx context.Context) error {
			s, err := h.identity.SignUp(ctx, supabase.SignUpRequest{Email: req.Email, Password: req.Password})
			if err != nil {
				return err
			}
			if s.User == nil || s.User.ID == "" {
				return errors.New("identity provider returned no user")
			}
			session = s
			return nil
		}, func(ctx context.Context) error {
			return h.identity.AdminDeleteUser(ctx, session.User.ID)
		}).
		Step("create_profile", func(ctx context.Context) error {
			_, err := h.profiles.Create(ctx, &Profile{
				ID:        session.User.ID,
				Email:     req.Email,
				Name:      req.Name,
				Role:      req.Role,
				StaffCode: req.StaffCode,
			})
			return err
		}, nil)

	if err := run.Run(r.Context()); err != nil {
		se := errors.Validation("Registration failed")
		var sbErr *supabase.Error
		if errors.As(err, &sbErr) && sbErr.StatusCode < 500 {
			se = se.WithDetails("reason", sbErr.Message)
		}
		se.Err = err
		return se
	}

	httputil.WriteJSON(w, http.StatusOK, Response{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		User: UserInfo{
			ID:        session.User.ID,
			Email:     req.Email,
			Name:      req.Name,
			Role:      req.Role,
			StaffCode: req.StaffCode,
		},
	})
	return nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) error {
	token := bearerToken(r)
	if token == "" {
		return errors.Unauthorized("Not authenticated")
	}
	if err := h.identity.SignOut(r.Context(), token); err != nil {
		return errors.Validation("Logout failed")
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	return nil
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) error {
	token := bearerToken(r)
	if token == "" {
		return errors.Unauthorized("Not authenticated")
	}

	user, err := h.identity.GetUser(r.Context(), token)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			return errors.InvalidToken(err)
		}
		return errors.Upstream("get identity user", err)
	}

	profile, err := h.profile(r.Context(), user.ID)
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, userInfo(user.ID, user.Email, profile))
	return nil
}

// profile loads the users row for id. A missing row is not an error; the
// caller falls back to defaults.
func (h *Handler) profile(ctx context.Context, id string) (*Profile, error) {
	p, err := h.profiles.Get(ctx, id)
	if err != nil {
		if supabase.IsNotFound(err) {
			h.logger.WithContext(ctx).WithField("profile_id", id).Warn("identity has no profile row")
			return nil, nil
		}
		return nil, errors.Upstream("get profile", err)
	}
	return p, nil
}

func bearerToken(r *http.Request) string {
	if token := middleware.GetAccessToken(r.Context()); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
