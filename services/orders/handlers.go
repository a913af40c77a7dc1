package orders

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Handler serves /orders.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates an orders handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("orders")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the order routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/orders").Subrouter()
	s.HandleFunc("", h.wrap(h.handleCreate)).Methods(http.MethodPost)
	s.HandleFunc("", h.wrap(h.handleList)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleGet)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/status", h.wrap(h.handleUpdateStatus)).Methods(http.MethodPut)
	s.HandleFunc("/{id}/items", h.wrap(h.handleItems)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var in OrderInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	order, err := h.repo.Create(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create order", err)
	}

	h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"order_id": order.ID,
		"items":    len(in.Items),
		"total":    order.Total,
	}).Info("order created")
	httputil.WriteJSON(w, http.StatusOK, order)
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	list, err := h.repo.List(r.Context(), httputil.Query(r, "user_id"))
	if err != nil {
		return errors.Upstream("list orders", err)
	}
	httputil.WriteJSON(w, http.StatusOK, list)
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	order, err := h.repo.Get(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("order", "get order", err)
	}
	httputil.WriteJSON(w, http.StatusOK, order)
	return nil
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := httputil.RequiredQuery(r, "status")
	if err != nil {
		return err
	}
	if !ValidStatus(status) {
		return errors.Validationf("invalid order status %q", status).
			WithDetails("allowed", []string{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled})
	}

	if _, err := h.repo.UpdateStatus(r.Context(), httputil.PathParam(r, "id"), status); err != nil {
		return errors.FromStore("order", "update order status", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Order status updated successfully"})
	return nil
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) error {
	items, err := h.repo.Items(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.Upstream("list order items", err)
	}
	httputil.WriteJSON(w, http.StatusOK, items)
	return nil
}
