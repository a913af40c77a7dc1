package bookings

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Handler serves /services.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("bookings")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the service, booking and review routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/services").Subrouter()

	s.HandleFunc("/bookings", h.wrap(h.handleListBookings)).Methods(http.MethodGet)
	s.HandleFunc("/bookings", h.wrap(h.handleCreateBooking)).Methods(http.MethodPost)
	s.HandleFunc("/bookings/{id}", h.wrap(h.handleGetBooking)).Methods(http.MethodGet)
	s.HandleFunc("/bookings/{id}", h.wrap(h.handleUpdateBooking)).Methods(http.MethodPut)
	s.HandleFunc("/bookings/{id}", h.wrap(h.handleCancelBooking)).Methods(http.MethodDelete)
	s.HandleFunc("/bookings/{id}/confirm", h.wrap(h.handleConfirmBooking)).Methods(http.MethodPost)
	s.HandleFunc("/bookings/{id}/complete", h.wrap(h.handleCompleteBooking)).Methods(http.MethodPost)

	s.HandleFunc("/reviews", h.wrap(h.handleListReviews)).Methods(http.MethodGet)
	s.HandleFunc("/reviews", h.wrap(h.handleCreateReview)).Methods(http.MethodPost)
	s.HandleFunc("/reviews/{id}", h.wrap(h.handleGetReview)).Methods(http.MethodGet)

	s.HandleFunc("/categories", h.wrap(h.handleCategories)).Methods(http.MethodGet)
	s.HandleFunc("/user/{user_id}/bookings", h.wrap(h.handleUserBookings)).Methods(http.MethodGet)
	s.HandleFunc("/staff/{staff_id}/bookings", h.wrap(h.handleStaffBookings)).Methods(http.MethodGet)

	s.HandleFunc("", h.wrap(h.handleListServices)).Methods(http.MethodGet)
	s.HandleFunc("", h.wrap(h.handleCreateService)).Methods(http.MethodPost)
	s.HandleFunc("/{id}", h.wrap(h.handleGetService)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleUpdateService)).Methods(http.MethodPut)
	s.HandleFunc("/{id}", h.wrap(h.handleDeactivateService)).Methods(http.MethodDelete)
	s.HandleFunc("/{id}/availability", h.wrap(h.handleAvailability)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/stats", h.wrap(h.handleStats)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// Services
// =============================================================================

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	active, err := httputil.QueryBool(r, "is_active")
	if err != nil {
		return err
	}

	services, err := h.repo.ListServices(r.Context(), httputil.Query(r, "category"), active, page)
	if err != nil {
		return errors.Upstream("list services", err)
	}
	httputil.WriteJSON(w, http.StatusOK, services)
	return nil
}

func (h *Handler) handleGetService(w http.ResponseWriter, r *http.Request) error {
	svc, err := h.repo.GetService(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("service", "get service", err)
	}
	httputil.WriteJSON(w, http.StatusOK, svc)
	return nil
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) error {
	var in ServiceInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	svc, err := h.repo.CreateService(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create service", err)
	}
	httputil.WriteJSON(w, http.StatusOK, svc)
	return nil
}

func (h *Handler) handleUpdateService(w http.ResponseWriter, r *http.Request) error {
	var in ServiceInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	svc, err := h.repo.UpdateService(r.Context(), httputil.PathParam(r, "id"), in.fields())
	if err != nil {
		return errors.FromStore("service", "update service", err)
	}
	httputil.WriteJSON(w, http.StatusOK, svc)
	return nil
}

func (h *Handler) handleDeactivateService(w http.ResponseWriter, r *http.Request) error {
	_, err := h.repo.UpdateService(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"is_active": false})
	if err != nil {
		return errors.FromStore("service", "deactivate service", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Service deactivated successfully"})
	return nil
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) error {
	categories, err := h.repo.Categories(r.Context())
	if err != nil {
		return errors.Upstream("list service categories", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"categories": categories})
	return nil
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) error {
	raw, err := httputil.RequiredQuery(r, "date")
	if err != nil {
		return err
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return errors.Validation("date must be YYYY-MM-DD")
	}

	svc, err := h.repo.GetService(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("service", "get service", err)
	}
	booked, err := h.repo.BookingsOn(r.Context(), svc.ID, date)
	if err != nil {
		return errors.Upstream("list bookings", err)
	}

	httputil.WriteJSON(w, http.StatusOK, Availability{
		Date:           raw,
		AvailableTimes: OpenSlots(svc.AvailableSlots, date, booked),
		Duration:       svc.Duration,
		Price:          svc.Price,
	})
	return nil
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) error {
	id := httputil.PathParam(r, "id")
	if _, err := h.repo.GetService(r.Context(), id); err != nil {
		return errors.FromStore("service", "get service", err)
	}

	bookings, err := h.repo.ServiceBookings(r.Context(), id)
	if err != nil {
		return errors.Upstream("list service bookings", err)
	}
	reviews, err := h.repo.ServiceReviews(r.Context(), id)
	if err != nil {
		return errors.Upstream("list service reviews", err)
	}
	ratings := make([]int, len(reviews))
	for i, rv := range reviews {
		ratings[i] = rv.Rating
	}
	httputil.WriteJSON(w, http.StatusOK, Summarize(bookings, ratings))
	return nil
}

// =============================================================================
// Bookings
// =============================================================================

func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	f := BookingFilter{
		UserID:        httputil.Query(r, "user_id"),
		ServiceID:     httputil.Query(r, "service_id"),
		Status:        httputil.Query(r, "status"),
		AssignedStaff: httputil.Query(r, "assigned_staff"),
	}

	bookings, err := h.repo.ListBookings(r.Context(), f, page)
	if err != nil {
		return errors.Upstream("list bookings", err)
	}
	httputil.WriteJSON(w, http.StatusOK, bookings)
	return nil
}

func (h *Handler) handleGetBooking(w http.ResponseWriter, r *http.Request) error {
	b, err := h.repo.GetBooking(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("booking", "get booking", err)
	}
	httputil.WriteJSON(w, http.StatusOK, b)
	return nil
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request) error {
	var in BookingInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	b, err := h.repo.CreateBooking(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create booking", err)
	}
	h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"booking_id": b.ID,
		"service_id": b.ServiceID,
	}).Info("booking created")
	httputil.WriteJSON(w, http.StatusOK, b)
	return nil
}

func (h *Handler) handleUpdateBooking(w http.ResponseWriter, r *http.Request) error {
	var in BookingUpdate
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	changes, msg := in.changes()
	if msg != "" {
		return errors.Validation(msg)
	}
	if len(changes) == 0 {
		return errors.Validation("no fields to update")
	}

	b, err := h.repo.UpdateBooking(r.Context(), httputil.PathParam(r, "id"), changes)
	if err != nil {
		return errors.FromStore("booking", "update booking", err)
	}
	httputil.WriteJSON(w, http.StatusOK, b)
	return nil
}

func (h *Handler) handleCancelBooking(w http.ResponseWriter, r *http.Request) error {
	_, err := h.repo.UpdateBooking(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"status": StatusCancelled})
	if err != nil {
		return errors.FromStore("booking", "cancel booking", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Booking cancelled successfully"})
	return nil
}

func (h *Handler) handleConfirmBooking(w http.ResponseWriter, r *http.Request) error {
	changes := map[string]interface{}{"status": StatusConfirmed}
	for param, column := range map[string]string{
		"staff_id":    "assigned_staff",
		"actual_date": "actual_date",
		"actual_time": "actual_time",
	} {
		v, err := httputil.RequiredQuery(r, param)
		if err != nil {
			return err
		}
		changes[column] = v
	}
	if !validDate(changes["actual_date"].(string)) {
		return errors.Validation("actual_date must be YYYY-MM-DD")
	}
	if !validTime(changes["actual_time"].(string)) {
		return errors.Validation("actual_time must be HH:MM")
	}

	if _, err := h.repo.UpdateBooking(r.Context(), httputil.PathParam(r, "id"), changes); err != nil {
		return errors.FromStore("booking", "confirm booking", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Booking confirmed successfully"})
	return nil
}

func (h *Handler) handleCompleteBooking(w http.ResponseWriter, r *http.Request) error {
	changes := map[string]interface{}{"status": StatusCompleted}
	if notes := httputil.Query(r, "completion_notes"); notes != "" {
		changes["completion_notes"] = notes
	}

	if _, err := h.repo.UpdateBooking(r.Context(), httputil.PathParam(r, "id"), changes); err != nil {
		return errors.FromStore("booking", "complete booking", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Booking completed successfully"})
	return nil
}

func (h *Handler) handleUserBookings(w http.ResponseWriter, r *http.Request) error {
	bookings, err := h.repo.UserBookings(r.Context(), httputil.PathParam(r, "user_id"))
	if err != nil {
		return errors.Upstream("list user bookings", err)
	}
	httputil.WriteJSON(w, http.StatusOK, bookings)
	return nil
}

func (h *Handler) handleStaffBookings(w http.ResponseWriter, r *http.Request) error {
	bookings, err := h.repo.StaffBookings(r.Context(), httputil.PathParam(r, "staff_id"))
	if err != nil {
		return errors.Upstream("list staff bookings", err)
	}
	httputil.WriteJSON(w, http.StatusOK, bookings)
	return nil
}

// =============================================================================
// Reviews
// =============================================================================

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) error {
	var (
		reviews []Review
		err     error
	)
	switch {
	case httputil.Query(r, "service_id") != "":
		reviews, err = h.repo.ServiceReviews(r.Context(), httputil.Query(r, "service_id"))
	case httputil.Query(r, "user_id") != "":
		reviews, err = h.repo.UserReviews(r.Context(), httputil.Query(r, "user_id"))
	default:
		return errors.Validation("service_id or user_id is required")
	}
	if err != nil {
		return errors.Upstream("list reviews", err)
	}
	httputil.WriteJSON(w, http.StatusOK, reviews)
	return nil
}

func (h *Handler) handleGetReview(w http.ResponseWriter, r *http.Request) error {
	rv, err := h.repo.GetReview(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("review", "get review", err)
	}
	httputil.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// handleCreateReview accepts reviews only from the booking's owner once the
// booking is completed.
func (h *Handler) handleCreateReview(w http.ResponseWriter, r *http.Request) error {
	var in ReviewInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	b, err := h.repo.GetBooking(r.Context(), in.BookingID)
	if err != nil {
		return errors.FromStore("booking", "get booking", err)
	}
	if b.Status != StatusCompleted {
		return errors.Validation("Can only review completed bookings")
	}
	if b.UserID != in.UserID {
		return errors.Forbidden("Can only review your own bookings")
	}

	rv, err := h.repo.CreateReview(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create review", err)
	}
	httputil.WriteJSON(w, http.StatusOK, rv)
	return nil
}
