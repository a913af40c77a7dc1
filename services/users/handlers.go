package users

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Per-user order and booking listings page in tens.
const historyLimit = 10

// Handler serves /users.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a users handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("users")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the user routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/users").Subrouter()
	s.HandleFunc("", h.wrap(h.handleList)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleGet)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleUpdate)).Methods(http.MethodPut)
	s.HandleFunc("/{id}", h.wrap(h.handleDelete)).Methods(http.MethodDelete)
	s.HandleFunc("/{id}/referrals", h.wrap(h.handleReferrals)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/orders", h.wrap(h.handleOrders)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/bookings", h.wrap(h.handleBookings)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/deactivate", h.wrap(h.setActive(false))).Methods(http.MethodPost)
	s.HandleFunc("/{id}/activate", h.wrap(h.setActive(true))).Methods(http.MethodPost)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	users, err := h.repo.List(r.Context(), httputil.Query(r, "role"), page)
	if err != nil {
		return errors.Upstream("list users", err)
	}
	httputil.WriteJSON(w, http.StatusOK, users)
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	u, err := h.repo.Get(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("user", "get user", err)
	}
	httputil.WriteJSON(w, http.StatusOK, u)
	return nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	var in UserUpdate
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	changes := in.changes()
	if len(changes) == 0 {
		return errors.Validation("no fields to update")
	}

	u, err := h.repo.Update(r.Context(), httputil.PathParam(r, "id"), changes)
	if err != nil {
		return errors.FromStore("user", "update user", err)
	}
	httputil.WriteJSON(w, http.StatusOK, u)
	return nil
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) error {
	id := httputil.PathParam(r, "id")

	// A profile may outlive its identity account; carry on to the row delete.
	if err := h.repo.DeleteIdentity(r.Context(), id); err != nil && !supabase.IsNotFound(err) {
		return errors.Upstream("delete identity user", err)
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		return errors.FromStore("user", "delete user", err)
	}

	h.logger.WithContext(r.Context()).WithField("deleted_user_id", id).Info("user deleted")
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
	return nil
}

func (h *Handler) handleReferrals(w http.ResponseWriter, r *http.Request) error {
	users, err := h.repo.Referred(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.Upstream("list referred users", err)
	}
	httputil.WriteJSON(w, http.StatusOK, users)
	return nil
}

func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, historyLimit)
	if err != nil {
		return err
	}
	list, err := h.repo.Orders(r.Context(), httputil.PathParam(r, "id"), page)
	if err != nil {
		return errors.Upstream("list user orders", err)
	}
	httputil.WriteJSON(w, http.StatusOK, list)
	return nil
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, historyLimit)
	if err != nil {
		return err
	}
	list, err := h.repo.Bookings(r.Context(), httputil.PathParam(r, "id"), page)
	if err != nil {
		return errors.Upstream("list user bookings", err)
	}
	httputil.WriteJSON(w, http.StatusOK, list)
	return nil
}

func (h *Handler) setActive(active bool) httputil.HandlerFunc {
	message := "User deactivated successfully"
	if active {
		message = "User activated successfully"
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		_, err := h.repo.Update(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"is_active": active})
		if err != nil {
			return errors.FromStore("user", "update user status", err)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": message})
		return nil
	}
}
