// Package bookings serves bookable services, their bookings and reviews,
// and computes per-day availability.
package bookings

import (
	"strings"
	"time"
)

const (
	servicesTable = "services"
	bookingsTable = "bookings"
	reviewsTable  = "service_reviews"
)

// Booking statuses.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// PaymentPending is the payment status of a new booking.
const PaymentPending = "pending"

// timeOfDay is the slot and booking time layout.
const timeOfDay = "15:04"

var (
	bookingStatuses = map[string]bool{
		StatusPending: true, StatusConfirmed: true, StatusInProgress: true, StatusCompleted: true, StatusCancelled: true,
	}
	weekdays = map[string]bool{
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
	}
)

// Service is a row of services.
type Service struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Category       string              `json:"category"`
	Price          float64             `json:"price"`
	Duration       int                 `json:"duration"`
	Requirements   []string            `json:"requirements"`
	AvailableSlots map[string][]string `json:"available_slots"`
	IsActive       bool                `json:"is_active"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
}

// ServiceInput is the body of POST and PUT /services.
type ServiceInput struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	Category       string              `json:"category"`
	Price          float64             `json:"price"`
	Duration       int                 `json:"duration"`
	Requirements   []string            `json:"requirements"`
	AvailableSlots map[string][]string `json:"available_slots"`
}

func (in *ServiceInput) validate() string {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "name is required"
	case strings.TrimSpace(in.Category) == "":
		return "category is required"
	case in.Price < 0:
		return "price must not be negative"
	case in.Duration <= 0:
		return "duration must be positive"
	}
	for day, slots := range in.AvailableSlots {
		if !weekdays[day] {
			return "available_slots has unknown day " + day
		}
		for _, slot := range slots {
			if !validTime(slot) {
				return "available_slots." + day + " has invalid time " + slot
			}
		}
	}
	return ""
}

func (in *ServiceInput) fields() map[string]interface{} {
	return map[string]interface{}{
		"name":            in.Name,
		"description":     in.Description,
		"category":        in.Category,
		"price":           in.Price,
		"duration":        in.Duration,
		"requirements":    in.Requirements,
		"available_slots": in.AvailableSlots,
	}
}

// Booking is a row of bookings.
type Booking struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	ServiceID       string            `json:"service_id"`
	PreferredDate   string            `json:"preferred_date"`
	PreferredTime   string            `json:"preferred_time"`
	ActualDate      *string           `json:"actual_date"`
	ActualTime      *string           `json:"actual_time"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AssignedStaff   *string           `json:"assigned_staff"`
	Notes           *string           `json:"notes"`
	CompletionNotes *string           `json:"completion_notes"`
	ContactInfo     map[string]string `json:"contact_info"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

// slotTime is the time the booking occupies: the confirmed time when set,
// otherwise the requested one.
func (b *Booking) slotTime() string {
	if b.ActualTime != nil && *b.ActualTime != "" {
		return *b.ActualTime
	}
	return b.PreferredTime
}

// BookingInput is the body of POST /services/bookings.
type BookingInput struct {
	UserID        string            `json:"user_id"`
	ServiceID     string            `json:"service_id"`
	PreferredDate string            `json:"preferred_date"`
	PreferredTime string            `json:"preferred_time"`
	Notes         *string           `json:"notes"`
	ContactInfo   map[string]string `json:"contact_info"`
}

func (in *BookingInput) validate() string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case strings.TrimSpace(in.ServiceID) == "":
		return "service_id is required"
	case !validDate(in.PreferredDate):
		return "preferred_date must be YYYY-MM-DD"
	case !validTime(in.PreferredTime):
		return "preferred_time must be HH:MM"
	case in.ContactInfo == nil:
		return "contact_info is required"
	}
	return ""
}

// BookingUpdate is a partial booking update.
type BookingUpdate struct {
	Status          *string `json:"status"`
	AssignedStaff   *string `json:"assigned_staff"`
	ActualDate      *string `json:"actual_date"`
	ActualTime      *string `json:"actual_time"`
	CompletionNotes *string `json:"completion_notes"`
}

func (u *BookingUpdate) changes() (map[string]interface{}, string) {
	out := make(map[string]interface{})
	if u.Status != nil {
		if !bookingStatuses[*u.Status] {
			return nil, "invalid booking status " + *u.Status
		}
		out["status"] = *u.Status
	}
	if u.AssignedStaff != nil {
		out["assigned_staff"] = *u.AssignedStaff
	}
	if u.ActualDate != nil {
		if !validDate(*u.ActualDate) {
			return nil, "actual_date must be YYYY-MM-DD"
		}
		out["actual_date"] = *u.ActualDate
	}
	if u.ActualTime != nil {
		if !validTime(*u.ActualTime) {
			return nil, "actual_time must be HH:MM"
		}
		out["actual_time"] = *u.ActualTime
	}
	if u.CompletionNotes != nil {
		out["completion_notes"] = *u.CompletionNotes
	}
	return out, ""
}

// BookingFilter narrows GET /services/bookings.
type BookingFilter struct {
	UserID        string
	ServiceID     string
	Status        string
	AssignedStaff string
}

// Review is a row of service_reviews.
type Review struct {
	ID        string  `json:"id"`
	BookingID string  `json:"booking_id"`
	UserID    string  `json:"user_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// ReviewInput is the body of POST /services/reviews.
type ReviewInput struct {
	BookingID string  `json:"booking_id"`
	UserID    string  `json:"user_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment"`
}

func (in *ReviewInput) validate() string {
	switch {
	case strings.TrimSpace(in.BookingID) == "":
		return "booking_id is required"
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case in.Rating < 1 || in.Rating > 5:
		return "rating must be between 1 and 5"
	}
	return ""
}

// Availability is the open schedule of a service on one date.
type Availability struct {
	Date           string   `json:"date"`
	AvailableTimes []string `json:"available_times"`
	Duration       int      `json:"duration"`
	Price          float64  `json:"price"`
}

// Stats summarises a service's bookings and reviews.
type Stats struct {
	TotalBookings     int     `json:"total_bookings"`
	CompletedBookings int     `json:"completed_bookings"`
	PendingBookings   int     `json:"pending_bookings"`
	CancelledBookings int     `json:"cancelled_bookings"`
	CompletionRate    float64 `json:"completion_rate"`
	TotalReviews      int     `json:"total_reviews"`
	AverageRating     float64 `json:"average_rating"`
}

func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

func validTime(s string) bool {
	_, err := time.Parse(timeOfDay, s)
	return err == nil
}
