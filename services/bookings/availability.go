package bookings

import (
	"math"
	"strings"
	"time"
)

// OpenSlots returns the slots configured for date's weekday that no booking
// occupies, in configured order.
func OpenSlots(slots map[string][]string, date time.Time, booked []Booking) []string {
	taken := make(map[string]bool, len(booked))
	for i := range booked {
		taken[booked[i].slotTime()] = true
	}

	day := strings.ToLower(date.Weekday().String())
	open := make([]string, 0, len(slots[day]))
	for _, slot := range slots[day] {
		if !taken[slot] {
			open = append(open, slot)
		}
	}
	return open
}

// Summarize builds Stats from a service's bookings and the ratings of its
// reviews. The average rating is rounded to one decimal.
func Summarize(bookings []Booking, ratings []int) Stats {
	s := Stats{TotalBookings: len(bookings), TotalReviews: len(ratings)}
	for _, b := range bookings {
		switch b.Status {
		case StatusCompleted:
			s.CompletedBookings++
		case StatusPending:
			s.PendingBookings++
		case StatusCancelled:
			s.CancelledBookings++
		}
	}
	if s.TotalBookings > 0 {
		s.CompletionRate = float64(s.CompletedBookings) / float64(s.TotalBookings) * 100
	}
	if s.TotalReviews > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		s.AverageRating = math.Round(float64(sum)/float64(s.TotalReviews)*10) / 10
	}
	return s
}
