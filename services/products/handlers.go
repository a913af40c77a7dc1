package products

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Handler serves /products.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a products handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("products")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the product routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/products").Subrouter()
	s.HandleFunc("", h.wrap(h.handleList)).Methods(http.MethodGet)
	s.HandleFunc("", h.wrap(h.handleCreate)).Methods(http.MethodPost)
	s.HandleFunc("/category/{category}", h.wrap(h.handleByCategory)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleGet)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleUpdate)).Methods(http.MethodPut)
	s.HandleFunc("/{id}", h.wrap(h.handleDelete)).Methods(http.MethodDelete)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) error {
	items, err := h.repo.List(r.Context(), httputil.Query(r, "category"))
	if err != nil {
		return errors.Upstream("list products", err)
	}
	httputil.WriteJSON(w, http.StatusOK, items)
	return nil
}

func (h *Handler) handleByCategory(w http.ResponseWriter, r *http.Request) error {
	items, err := h.repo.List(r.Context(), httputil.PathParam(r, "category"))
	if err != nil {
		return errors.Upstream("list products by category", err)
	}
	httputil.WriteJSON(w, http.StatusOK, items)
	return nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) error {
	p, err := h.repo.Get(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("product", "get product", err)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(r)
	if err != nil {
		return err
	}
	p, err := h.repo.Create(r.Context(), in)
	if err != nil {
		return errors.Upstream("create product", err)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	in, err := decodeInput(r)
	if err != nil {
		return err
	}
	p, err := h.repo.Update(r.Context(), httputil.PathParam(r, "id"), in)
	if err != nil {
		return errors.FromStore("product", "update product", err)
	}
	httputil.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := h.repo.Delete(r.Context(), httputil.PathParam(r, "id")); err != nil {
		return errors.FromStore("product", "delete product", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
	return nil
}

func decodeInput(r *http.Request) (*ProductInput, error) {
	var in ProductInput
	if err := httputil.Decode(r, &in); err != nil {
		return nil, err
	}
	if msg := in.validate(); msg != "" {
		return nil, errors.Validation(msg)
	}
	return &in, nil
}
