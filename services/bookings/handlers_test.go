package bookings

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/pkg/testutil"
)

func newTestRouter(t *testing.T) (*mux.Router, *testutil.FakeSupabase) {
	t.Helper()
	fake := testutil.NewFakeSupabase(t)
	r := mux.NewRouter()
	NewHandler(NewSupabaseRepository(fake.Client(t)), logging.Discard()).RegisterRoutes(r.PathPrefix("/api").Subrouter())
	return r, fake
}

func seedServices(fake *testutil.FakeSupabase) {
	fake.Seed("services",
		testutil.Row{"id": "s1", "name": "Logo design", "description": "", "category": "design", "price": 120, "duration": 60,
			"requirements": []string{"brief"}, "available_slots": map[string][]string{"monday": {"09:00", "10:00", "11:00", "12:00"}}, "is_active": true},
		testutil.Row{"id": "s2", "name": "Copywriting", "description": "", "category": "writing", "price": 80, "duration": 30,
			"requirements": []string{}, "available_slots": map[string][]string{}, "is_active": true},
		testutil.Row{"id": "s3", "name": "Retired", "description": "", "category": "legacy", "price": 10, "duration": 15,
			"requirements": []string{}, "available_slots": map[string][]string{}, "is_active": false},
	)
}

func booking(id, user, service, date, tm, status string) testutil.Row {
	return testutil.Row{"id": id, "user_id": user, "service_id": service, "preferred_date": date, "preferred_time": tm,
		"status": status, "payment_status": "pending", "contact_info": map[string]string{}}
}

// =============================================================================
// Services
// =============================================================================

func TestListServices_Filters(t *testing.T) {
	r, fake := newTestRouter(t)
	seedServices(fake)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services?is_active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	services := testutil.DecodeJSON[[]Service](t, rec)
	require.Len(t, services, 2)
	assert.Equal(t, "s2", services[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services?category=design", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	services = testutil.DecodeJSON[[]Service](t, rec)
	require.Len(t, services, 1)
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00"}, services[0].AvailableSlots["monday"])

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services?is_active=sometimes", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceLifecycle(t *testing.T) {
	r, fake := newTestRouter(t)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services", map[string]interface{}{
		"name": "Portrait", "category": "photo", "price": 200, "duration": 90,
		"available_slots": map[string][]string{"friday": {"14:00"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc := testutil.DecodeJSON[Service](t, rec)
	assert.True(t, svc.IsActive)
	assert.Equal(t, 90, svc.Duration)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/services/"+svc.ID, map[string]interface{}{
		"name": "Portrait session", "category": "photo", "price": 250, "duration": 90,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 250.0, testutil.DecodeJSON[Service](t, rec).Price)

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/services/"+svc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, fake.Find("services", svc.ID)["is_active"])

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/"+svc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Portrait session", testutil.DecodeJSON[Service](t, rec).Name)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/services/missing", map[string]interface{}{
		"name": "x", "category": "y", "price": 1, "duration": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/services/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateService_Validation(t *testing.T) {
	r, fake := newTestRouter(t)

	for name, body := range map[string]map[string]interface{}{
		"missing name":    {"category": "c", "price": 1, "duration": 10},
		"negative price":  {"name": "n", "category": "c", "price": -1, "duration": 10},
		"zero duration":   {"name": "n", "category": "c", "price": 1},
		"unknown weekday": {"name": "n", "category": "c", "price": 1, "duration": 10, "available_slots": map[string][]string{"funday": {"09:00"}}},
		"bad slot time":   {"name": "n", "category": "c", "price": 1, "duration": 10, "available_slots": map[string][]string{"monday": {"9am"}}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, fake.Requests())
}

func TestCategories(t *testing.T) {
	r, fake := newTestRouter(t)
	seedServices(fake)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"categories":["design","writing"]}`, rec.Body.String())
}

func TestAvailability(t *testing.T) {
	r, fake := newTestRouter(t)
	seedServices(fake)
	confirmed := booking("b3", "u3", "s1", "2024-06-02", "08:00", StatusConfirmed)
	confirmed["actual_date"] = "2024-06-03"
	confirmed["actual_time"] = "11:00"
	fake.Seed("bookings",
		booking("b1", "u1", "s1", "2024-06-03", "10:00", StatusPending),
		booking("b2", "u2", "s1", "2024-06-03", "09:00", StatusCancelled),
		confirmed,
		booking("b4", "u4", "s2", "2024-06-03", "12:00", StatusPending),
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services/s1/availability?date=2024-06-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := testutil.DecodeJSON[Availability](t, rec)
	assert.Equal(t, Availability{Date: "2024-06-03", AvailableTimes: []string{"09:00", "12:00"}, Duration: 60, Price: 120}, got)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/s1/availability?date=2024-06-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, testutil.DecodeJSON[Availability](t, rec).AvailableTimes)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/s1/availability?date=03-06-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/s1/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/missing/availability?date=2024-06-03", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServiceStats(t *testing.T) {
	r, fake := newTestRouter(t)
	seedServices(fake)
	fake.Seed("bookings",
		booking("b1", "u1", "s1", "2024-06-03", "09:00", StatusCompleted),
		booking("b2", "u2", "s1", "2024-06-03", "10:00", StatusCompleted),
		booking("b3", "u3", "s1", "2024-06-03", "11:00", StatusPending),
		booking("b4", "u4", "s1", "2024-06-03", "12:00", StatusCancelled),
		booking("b5", "u5", "s2", "2024-06-03", "12:00", StatusCompleted),
	)
	fake.Seed("service_reviews",
		testutil.Row{"id": "r1", "booking_id": "b1", "user_id": "u1", "rating": 5},
		testutil.Row{"id": "r2", "booking_id": "b2", "user_id": "u2", "rating": 4},
		testutil.Row{"id": "r3", "booking_id": "b1", "user_id": "u1", "rating": 4},
		testutil.Row{"id": "r4", "booking_id": "b5", "user_id": "u5", "rating": 1},
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services/s1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, Stats{
		TotalBookings:     4,
		CompletedBookings: 2,
		PendingBookings:   1,
		CancelledBookings: 1,
		CompletionRate:    50,
		TotalReviews:      3,
		AverageRating:     4.3,
	}, testutil.DecodeJSON[Stats](t, rec))

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/s3/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Stats{}, testutil.DecodeJSON[Stats](t, rec))

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/missing/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Bookings
// =============================================================================

func TestBookingLifecycle(t *testing.T) {
	r, fake := newTestRouter(t)
	seedServices(fake)

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings", map[string]interface{}{
		"user_id": "u1", "service_id": "s1", "preferred_date": "2024-06-03", "preferred_time": "10:00",
		"contact_info": map[string]string{"phone": "555"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := testutil.DecodeJSON[Booking](t, rec)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, PaymentPending, b.PaymentStatus)
	assert.Equal(t, "555", b.ContactInfo["phone"])

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings/"+b.ID+"/confirm?staff_id=m1&actual_date=2024-06-03", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings/"+b.ID+"/confirm?staff_id=m1&actual_date=2024-06-03&actual_time=11:00", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := fake.Find("bookings", b.ID)
	assert.Equal(t, StatusConfirmed, row["status"])
	assert.Equal(t, "m1", row["assigned_staff"])
	assert.Equal(t, "11:00", row["actual_time"])

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/staff/m1/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, testutil.DecodeJSON[[]Booking](t, rec), 1)

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings/"+b.ID+"/complete?completion_notes=delivered", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/bookings/"+b.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b = testutil.DecodeJSON[Booking](t, rec)
	assert.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.CompletionNotes)
	assert.Equal(t, "delivered", *b.CompletionNotes)

	rec = testutil.DoJSON(t, r, http.MethodDelete, "/api/services/bookings/"+b.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusCancelled, fake.Find("bookings", b.ID)["status"])

	rec = testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings/missing/confirm?staff_id=m1&actual_date=2024-06-03&actual_time=11:00", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBooking_Validation(t *testing.T) {
	r, fake := newTestRouter(t)

	for name, body := range map[string]map[string]interface{}{
		"missing user":    {"service_id": "s1", "preferred_date": "2024-06-03", "preferred_time": "10:00", "contact_info": map[string]string{}},
		"bad date":        {"user_id": "u1", "service_id": "s1", "preferred_date": "June 3", "preferred_time": "10:00", "contact_info": map[string]string{}},
		"bad time":        {"user_id": "u1", "service_id": "s1", "preferred_date": "2024-06-03", "preferred_time": "25:00", "contact_info": map[string]string{}},
		"no contact info": {"user_id": "u1", "service_id": "s1", "preferred_date": "2024-06-03", "preferred_time": "10:00"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services/bookings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, fake.Requests())
}

func TestUpdateBooking(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.Seed("bookings", booking("b1", "u1", "s1", "2024-06-03", "10:00", StatusPending))

	rec := testutil.DoJSON(t, r, http.MethodPut, "/api/services/bookings/b1", map[string]interface{}{"status": "in_progress", "assigned_staff": "m2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b := testutil.DecodeJSON[Booking](t, rec)
	assert.Equal(t, StatusInProgress, b.Status)
	require.NotNil(t, b.AssignedStaff)
	assert.Equal(t, "m2", *b.AssignedStaff)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/services/bookings/b1", map[string]interface{}{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/services/bookings/b1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodPut, "/api/services/bookings/missing", map[string]interface{}{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListBookings(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.Seed("bookings",
		booking("b1", "u1", "s1", "2024-06-03", "09:00", StatusPending),
		booking("b2", "u1", "s2", "2024-06-04", "10:00", StatusCompleted),
		booking("b3", "u2", "s1", "2024-06-05", "11:00", StatusPending),
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services/bookings?service_id=s1&status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := testutil.DecodeJSON[[]Booking](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "b3", got[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/user/u1/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = testutil.DecodeJSON[[]Booking](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "b2", got[0].ID)

	fake.FailNext(http.MethodGet, "bookings", http.StatusServiceUnavailable)
	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/bookings", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// Reviews
// =============================================================================

func TestCreateReview(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.Seed("bookings",
		booking("done", "u1", "s1", "2024-06-03", "09:00", StatusCompleted),
		booking("open", "u1", "s1", "2024-06-04", "09:00", StatusPending),
	)

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"rating out of range", map[string]interface{}{"booking_id": "done", "user_id": "u1", "rating": 6}, http.StatusBadRequest},
		{"unknown booking", map[string]interface{}{"booking_id": "ghost", "user_id": "u1", "rating": 4}, http.StatusNotFound},
		{"booking not completed", map[string]interface{}{"booking_id": "open", "user_id": "u1", "rating": 4}, http.StatusBadRequest},
		{"not the owner", map[string]interface{}{"booking_id": "done", "user_id": "u2", "rating": 4}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services/reviews", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, fake.Rows("service_reviews"))

	rec := testutil.DoJSON(t, r, http.MethodPost, "/api/services/reviews", map[string]interface{}{
		"booking_id": "done", "user_id": "u1", "rating": 5, "comment": "great",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rv := testutil.DecodeJSON[Review](t, rec)
	assert.Equal(t, 5, rv.Rating)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews/"+rv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, testutil.DecodeJSON[Review](t, rec).Comment)
}

func TestListReviews(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.Seed("bookings",
		booking("b1", "u1", "s1", "2024-06-03", "09:00", StatusCompleted),
		booking("b2", "u2", "s2", "2024-06-03", "09:00", StatusCompleted),
	)
	fake.Seed("service_reviews",
		testutil.Row{"id": "r1", "booking_id": "b1", "user_id": "u1", "rating": 5},
		testutil.Row{"id": "r2", "booking_id": "b2", "user_id": "u2", "rating": 3},
	)

	rec := testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews?service_id=s2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := testutil.DecodeJSON[[]Review](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews?user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = testutil.DecodeJSON[[]Review](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews?service_id=unbooked", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, r, http.MethodGet, "/api/services/reviews/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
