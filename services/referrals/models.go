// Package referrals serves referral codes, their lifecycle and the earnings
// they generate for the referrer.
package referrals

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const (
	referralsTable = "referrals"
	earningsTable  = "referral_earnings"
	usersTable     = "users"
)

// Referral statuses.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Earning statuses.
const (
	EarningPending = "pending"
	EarningPaid    = "paid"
)

// SourceCommission marks earnings created by completing a referral.
const SourceCommission = "referral_commission"

// CodeLength is the length of a generated referral code.
const CodeLength = 8

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Referral is a row of referrals.
type Referral struct {
	ID               string  `json:"id"`
	ReferrerID       string  `json:"referrer_id"`
	ReferredUserID   *string `json:"referred_user_id"`
	ReferredEmail    string  `json:"referred_email"`
	ReferralCode     string  `json:"referral_code"`
	ReferralType     string  `json:"referral_type"`
	Status           string  `json:"status"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionEarned float64 `json:"commission_earned"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// ReferralInput is the body of POST /referrals.
type ReferralInput struct {
	ReferrerID     string  `json:"referrer_id"`
	ReferredEmail  string  `json:"referred_email"`
	ReferralType   string  `json:"referral_type"`
	CommissionRate float64 `json:"commission_rate"`
}

func (in *ReferralInput) validate() string {
	switch {
	case strings.TrimSpace(in.ReferrerID) == "":
		return "referrer_id is required"
	case strings.TrimSpace(in.ReferralType) == "":
		return "referral_type is required"
	case in.CommissionRate < 0 || in.CommissionRate > 100:
		return "commission_rate must be between 0 and 100"
	}
	if _, err := mail.ParseAddress(in.ReferredEmail); err != nil {
		return "referred_email is not a valid address"
	}
	return ""
}

// Earning is a row of referral_earnings.
type Earning struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	ReferralID  string  `json:"referral_id"`
	Amount      float64 `json:"amount"`
	Source      string  `json:"source"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// EarningInput is the body of POST /referrals/earnings.
type EarningInput struct {
	UserID      string  `json:"user_id"`
	ReferralID  string  `json:"referral_id"`
	Amount      float64 `json:"amount"`
	Source      string  `json:"source"`
	Description string  `json:"description"`
}

func (in *EarningInput) validate() string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case strings.TrimSpace(in.ReferralID) == "":
		return "referral_id is required"
	case in.Amount < 0:
		return "amount must not be negative"
	case strings.TrimSpace(in.Source) == "":
		return "source is required"
	}
	return ""
}

// Filter narrows list queries. Only the fields meaningful to the listed
// table are applied.
type Filter struct {
	ReferrerID   string
	UserID       string
	Status       string
	ReferralType string
	Source       string
}

// Stats summarises a user's referrals and earnings.
type Stats struct {
	TotalReferrals   int     `json:"total_referrals"`
	ActiveReferrals  int     `json:"active_referrals"`
	PendingReferrals int     `json:"pending_referrals"`
	TotalEarnings    float64 `json:"total_earnings"`
	PendingEarnings  float64 `json:"pending_earnings"`
	PaidEarnings     float64 `json:"paid_earnings"`
}

// Summarize builds Stats from a user's referrals and earnings.
func Summarize(referrals []Referral, earnings []Earning) Stats {
	s := Stats{TotalReferrals: len(referrals)}
	for _, r := range referrals {
		switch r.Status {
		case StatusActive:
			s.ActiveReferrals++
		case StatusPending:
			s.PendingReferrals++
		}
	}
	for _, e := range earnings {
		s.TotalEarnings += e.Amount
		switch e.Status {
		case EarningPending:
			s.PendingEarnings += e.Amount
		case EarningPaid:
			s.PaidEarnings += e.Amount
		}
	}
	return s
}

// Commission is the amount earned on a completed referral: rate is a
// percentage of amount.
func Commission(amount, rate float64) float64 {
	return amount * rate / 100
}

// NewCode returns a random referral code of CodeLength characters drawn
// from A-Z and 0-9.
func NewCode() string {
	raw := uuid.New()
	code := make([]byte, 0, CodeLength)
	for j := 0; len(code) < CodeLength; j++ {
		// bytes 6 and 8 carry the version and variant bits
		if j == 6 || j == 8 {
			continue
		}
		code = append(code, codeAlphabet[int(raw[j])%len(codeAlphabet)])
	}
	return string(code)
}

func commissionDescription(code string) string {
	return "Commission from referral " + code
}
