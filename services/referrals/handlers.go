package referrals

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/saga"
)

// Handler serves /referrals.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a referrals handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("referrals")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the referral routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/referrals").Subrouter()

	s.HandleFunc("/earnings", h.wrap(h.handleListEarnings)).Methods(http.MethodGet)
	s.HandleFunc("/earnings", h.wrap(h.handleCreateEarning)).Methods(http.MethodPost)
	s.HandleFunc("/earnings/{id}", h.wrap(h.handleGetEarning)).Methods(http.MethodGet)
	s.HandleFunc("/earnings/{id}/pay", h.wrap(h.handlePayEarning)).Methods(http.MethodPut)
	s.HandleFunc("/stats/{user_id}", h.wrap(h.handleStats)).Methods(http.MethodGet)
	s.HandleFunc("/code/{code}", h.wrap(h.handleByCode)).Methods(http.MethodGet)
	s.HandleFunc("/process-signup", h.wrap(h.handleProcessSignup)).Methods(http.MethodPost)

	s.HandleFunc("", h.wrap(h.handleList)).Methods(http.MethodGet)
	s.HandleFunc("", h.wrap(h.handleCreate)).Methods(http.MethodPost)
	s.HandleFunc("/{id}", h.wrap(h.handleGet)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/approve", h.wrap(h.handleApprove)).Methods(http.MethodPut)
	s.HandleFunc("/{id}/complete", h.wrap(h.handleComplete)).Methods(http.MethodPut)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// Referrals
// =============================================================================

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	refs, err := h.repo.List(r.Context(), Filter{
		ReferrerID:   httputil.Query(r, "referrer_id"),
		Status:       httputil.Query(r, "status"),
		ReferralType: httputil.Query(r, "referral_type"),
	}, page)
	if err != nil {
		return errors.Upstream("list referrals", err)
	}
	httputil.WriteJSON(w, http.StatusOK, refs)
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	ref, err := h.repo.Get(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("referral", "get referral", err)
	}
	httputil.WriteJSON(w, http.StatusOK, ref)
	return nil
}

func (h *Handler) handleByCode(w http.ResponseWriter, r *http.Request) error {
	ref, err := h.repo.ByCode(r.Context(), httputil.PathParam(r, "code"))
	if err != nil {
		return errors.FromStore("referral code", "get referral by code", err)
	}
	httputil.WriteJSON(w, http.StatusOK, ref)
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var in ReferralInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	ref, err := h.repo.Create(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create referral", err)
	}
	h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"referral_id": ref.ID,
		"referrer_id": ref.ReferrerID,
	}).Info("referral created")
	httputil.WriteJSON(w, http.StatusOK, ref)
	return nil
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) error {
	userID, err := httputil.RequiredQuery(r, "referred_user_id")
	if err != nil {
		return err
	}
	if _, err := h.repo.Approve(r.Context(), httputil.PathParam(r, "id"), userID); err != nil {
		return errors.FromStore("referral", "approve referral", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Referral approved successfully"})
	return nil
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) error {
	amount, err := httputil.QueryFloat(r, "commission_amount")
	if err != nil {
		return err
	}
	if amount == nil {
		return errors.Validation("commission_amount is required")
	}
	if *amount < 0 {
		return errors.Validation("commission_amount must not be negative")
	}

	earned, err := h.repo.Complete(r.Context(), httputil.PathParam(r, "id"), *amount)
	if err != nil {
		return errors.FromStore("referral", "complete referral", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "Referral completed successfully",
		"commission_earned": earned,
	})
	return nil
}

func (h *Handler) handleProcessSignup(w http.ResponseWriter, r *http.Request) error {
	code, err := httputil.RequiredQuery(r, "referral_code")
	if err != nil {
		return err
	}
	userID, err := httputil.RequiredQuery(r, "new_user_id")
	if err != nil {
		return err
	}

	if _, err := h.repo.ProcessSignup(r.Context(), code, userID); err != nil {
		var se *saga.Error
		if errors.As(err, &se) {
			return errors.FromStore("user", "process referral signup", err)
		}
		return errors.FromStore("referral code", "process referral signup", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Referral processed successfully"})
	return nil
}

// =============================================================================
// Earnings
// =============================================================================

func (h *Handler) handleListEarnings(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	earnings, err := h.repo.ListEarnings(r.Context(), Filter{
		UserID: httputil.Query(r, "user_id"),
		Status: httputil.Query(r, "status"),
		Source: httputil.Query(r, "source"),
	}, page)
	if err != nil {
		return errors.Upstream("list earnings", err)
	}
	httputil.WriteJSON(w, http.StatusOK, earnings)
	return nil
}

func (h *Handler) handleGetEarning(w http.ResponseWriter, r *http.Request) error {
	e, err := h.repo.GetEarning(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("earning", "get earning", err)
	}
	httputil.WriteJSON(w, http.StatusOK, e)
	return nil
}

func (h *Handler) handleCreateEarning(w http.ResponseWriter, r *http.Request) error {
	var in EarningInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	e, err := h.repo.CreateEarning(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create earning", err)
	}
	httputil.WriteJSON(w, http.StatusOK, e)
	return nil
}

func (h *Handler) handlePayEarning(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.repo.PayEarning(r.Context(), httputil.PathParam(r, "id")); err != nil {
		return errors.FromStore("earning", "pay earning", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Earning marked as paid"})
	return nil
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.repo.Stats(r.Context(), httputil.PathParam(r, "user_id"))
	if err != nil {
		return errors.Upstream("referral stats", err)
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
	return nil
}
