package marketplace

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Handler serves /marketplace.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a marketplace handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("marketplace")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the marketplace routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/marketplace").Subrouter()

	s.HandleFunc("/designs", h.wrap(h.handleListDesigns)).Methods(http.MethodGet)
	s.HandleFunc("/designs", h.wrap(h.handleCreateDesign)).Methods(http.MethodPost)
	s.HandleFunc("/designs/{id}", h.wrap(h.handleGetDesign)).Methods(http.MethodGet)
	s.HandleFunc("/designs/{id}", h.wrap(h.handleUpdateDesign)).Methods(http.MethodPut)
	s.HandleFunc("/designs/{id}", h.wrap(h.handleDeleteDesign)).Methods(http.MethodDelete)

	s.HandleFunc("/sellers", h.wrap(h.handleListSellers)).Methods(http.MethodGet)
	s.HandleFunc("/sellers", h.wrap(h.handleCreateSeller)).Methods(http.MethodPost)
	s.HandleFunc("/sellers/{user_id}", h.wrap(h.handleGetSeller)).Methods(http.MethodGet)

	s.HandleFunc("/purchases", h.wrap(h.handleCreatePurchase)).Methods(http.MethodPost)
	s.HandleFunc("/purchases", h.wrap(h.handleListPurchases)).Methods(http.MethodGet)
	s.HandleFunc("/purchases/{id}", h.wrap(h.handleGetPurchase)).Methods(http.MethodGet)
	s.HandleFunc("/purchases/{id}/status", h.wrap(h.handleUpdatePurchaseStatus)).Methods(http.MethodPut)

	s.HandleFunc("/categories", h.wrap(h.handleCategories)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// Designs
// =============================================================================

func (h *Handler) handleListDesigns(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	f := DesignFilter{
		Category: httputil.Query(r, "category"),
		SellerID: httputil.Query(r, "seller_id"),
	}
	if f.MinPrice, err = httputil.QueryFloat(r, "min_price"); err != nil {
		return err
	}
	if f.MaxPrice, err = httputil.QueryFloat(r, "max_price"); err != nil {
		return err
	}

	designs, err := h.repo.ListDesigns(r.Context(), f, page)
	if err != nil {
		return errors.Upstream("list designs", err)
	}
	httputil.WriteJSON(w, http.StatusOK, designs)
	return nil
}

func (h *Handler) handleGetDesign(w http.ResponseWriter, r *http.Request) error {
	d, err := h.repo.GetDesign(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("design", "get design", err)
	}
	httputil.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (h *Handler) handleCreateDesign(w http.ResponseWriter, r *http.Request) error {
	var in DesignInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(true); msg != "" {
		return errors.Validation(msg)
	}

	d, err := h.repo.CreateDesign(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create design", err)
	}
	httputil.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (h *Handler) handleUpdateDesign(w http.ResponseWriter, r *http.Request) error {
	var in DesignInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(false); msg != "" {
		return errors.Validation(msg)
	}

	d, err := h.repo.UpdateDesign(r.Context(), httputil.PathParam(r, "id"), in.fields())
	if err != nil {
		return errors.FromStore("design", "update design", err)
	}
	httputil.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (h *Handler) handleDeleteDesign(w http.ResponseWriter, r *http.Request) error {
	_, err := h.repo.UpdateDesign(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"status": DesignDeleted})
	if err != nil {
		return errors.FromStore("design", "delete design", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Design deleted successfully"})
	return nil
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.repo.Categories(r.Context())
	if err != nil {
		return errors.Upstream("list design categories", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"categories": categories})
	return nil
}

// =============================================================================
// Sellers
// =============================================================================

func (h *Handler) handleListSellers(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	sellers, err := h.repo.ListSellers(r.Context(), page)
	if err != nil {
		return errors.Upstream("list sellers", err)
	}
	httputil.WriteJSON(w, http.StatusOK, sellers)
	return nil
}

func (h *Handler) handleGetSeller(w http.ResponseWriter, r *http.Request) error {
	s, err := h.repo.GetSeller(r.Context(), httputil.PathParam(r, "user_id"))
	if err != nil {
		return errors.FromStore("seller", "get seller", err)
	}
	httputil.WriteJSON(w, http.StatusOK, s)
	return nil
}

func (h *Handler) handleCreateSeller(w http.ResponseWriter, r *http.Request) error {
	var in Seller
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	s, err := h.repo.CreateSeller(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create seller", err)
	}
	httputil.WriteJSON(w, http.StatusOK, s)
	return nil
}

// =============================================================================
// Purchases
// =============================================================================

func (h *Handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) error {
	var in PurchaseInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	design, err := h.repo.GetDesign(r.Context(), in.DesignID)
	if err != nil {
		return errors.FromStore("design", "get design", err)
	}
	if design.Status == DesignDeleted {
		return errors.NotFound("design")
	}

	p, err := h.repo.CreatePurchase(r.Context(), map[string]interface{}{
		"buyer_id":       in.BuyerID,
		"design_id":      in.DesignID,
		"quantity":       in.Quantity,
		"total_price":    TotalPrice(design.Price, in.Quantity),
		"customizations": in.Customizations,
		"status":         "pending",
	})
	if err != nil {
		return errors.Upstream("create purchase", err)
	}

	h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"purchase_id": p.ID,
		"design_id":   in.DesignID,
		"total_price": p.TotalPrice,
	}).Info("purchase created")
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	list, err := h.repo.ListPurchases(r.Context(), httputil.Query(r, "buyer_id"), httputil.Query(r, "seller_id"), page)
	if err != nil {
		return errors.Upstream("list purchases", err)
	}
	httputil.WriteJSON(w, http.StatusOK, list)
	return nil
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) error {
	p, err := h.repo.GetPurchase(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("purchase", "get purchase", err)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleUpdatePurchaseStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := httputil.RequiredQuery(r, "status")
	if err != nil {
		return err
	}
	if _, err := h.repo.UpdatePurchaseStatus(r.Context(), httputil.PathParam(r, "id"), status); err != nil {
		return errors.FromStore("purchase", "update purchase status", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Purchase status updated successfully"})
	return nil
}
