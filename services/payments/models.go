// Package payments serves payment intents, refunds, revenue statistics and
// the payment provider's webhook.
package payments

import (
	"strings"

	"github.com/google/uuid"
)

const (
	paymentsTable    = "payments"
	refundsTable     = "refunds"
	chargebacksTable = "chargebacks"
)

// Payment statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// Refund statuses.
const (
	RefundPending    = "pending"
	RefundProcessing = "processing"
	RefundCompleted  = "completed"
	RefundFailed     = "failed"
)

// ChargebackOpen is the status of a newly recorded dispute.
const ChargebackOpen = "open"

var (
	paymentStatuses = map[string]bool{StatusPending: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true, StatusRefunded: true}
	refundStatuses  = map[string]bool{RefundPending: true, RefundProcessing: true, RefundCompleted: true, RefundFailed: true}
)

// Method is a payment method offered to buyers.
type Method struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Methods lists the supported payment methods.
var Methods = []Method{
	{ID: "card", Name: "Credit/Debit Card", Enabled: true},
	{ID: "paypal", Name: "PayPal", Enabled: true},
	{ID: "bank_transfer", Name: "Bank Transfer", Enabled: true},
	{ID: "mobile_money", Name: "Mobile Money", Enabled: true},
}

func knownMethod(id string) bool {
	for _, m := range Methods {
		if m.ID == id && m.Enabled {
			return true
		}
	}
	return false
}

// Payment is a row of payments.
type Payment struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Amount          float64                `json:"amount"`
	Currency        string                 `json:"currency"`
	PaymentMethod   string                 `json:"payment_method"`
	Status          string                 `json:"status"`
	PaymentIntentID *string                `json:"payment_intent_id"`
	Description     string                 `json:"description"`
	Metadata        map[string]interface{} `json:"metadata"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

// InitiateInput is the body of POST /payments/initiate.
type InitiateInput struct {
	UserID        string                 `json:"user_id"`
	Amount        float64                `json:"amount"`
	Currency      string                 `json:"currency"`
	PaymentMethod string                 `json:"payment_method"`
	Description   string                 `json:"description"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func (in *InitiateInput) validate() string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "user_id is required"
	case in.Amount <= 0:
		return "amount must be positive"
	case strings.TrimSpace(in.Currency) == "":
		return "currency is required"
	case !knownMethod(in.PaymentMethod):
		return "unsupported payment_method " + in.PaymentMethod
	}
	return ""
}

// VerifyInput is the body of POST /payments/verify.
type VerifyInput struct {
	PaymentID       string `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
}

func (in *VerifyInput) validate() string {
	switch {
	case strings.TrimSpace(in.PaymentID) == "":
		return "payment_id is required"
	case !paymentStatuses[in.Status]:
		return "invalid payment status " + in.Status
	}
	return ""
}

// Refund is a row of refunds.
type Refund struct {
	ID        string  `json:"id"`
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
	Status    string  `json:"status"`
	RefundID  *string `json:"refund_id"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// RefundInput is the body of POST /payments/refund. A nil or zero Amount
// refunds the full payment.
type RefundInput struct {
	PaymentID string   `json:"payment_id"`
	Amount    *float64 `json:"amount"`
	Reason    string   `json:"reason"`
}

func (in *RefundInput) validate() string {
	switch {
	case strings.TrimSpace(in.PaymentID) == "":
		return "payment_id is required"
	case in.Amount != nil && *in.Amount < 0:
		return "amount must not be negative"
	case strings.TrimSpace(in.Reason) == "":
		return "reason is required"
	}
	return ""
}

// Chargeback is a row of chargebacks.
type Chargeback struct {
	ChargeID string  `json:"charge_id"`
	Amount   float64 `json:"amount"`
	Reason   string  `json:"reason"`
	Status   string  `json:"status"`
}

// Filter narrows payment and refund listings.
type Filter struct {
	UserID        string
	PaymentID     string
	Status        string
	PaymentMethod string
}

// Revenue summarises completed payments net of completed refunds.
type Revenue struct {
	TotalRevenue       float64 `json:"total_revenue"`
	TotalTransactions  int     `json:"total_transactions"`
	TotalRefunds       float64 `json:"total_refunds"`
	NetRevenue         float64 `json:"net_revenue"`
	AverageTransaction float64 `json:"average_transaction"`
}

// Summarize builds Revenue from completed payments and refunds.
func Summarize(payments []Payment, refunds []Refund) Revenue {
	rev := Revenue{TotalTransactions: len(payments)}
	for _, p := range payments {
		rev.TotalRevenue += p.Amount
	}
	for _, r := range refunds {
		rev.TotalRefunds += r.Amount
	}
	rev.NetRevenue = rev.TotalRevenue - rev.TotalRefunds
	if rev.TotalTransactions > 0 {
		rev.AverageTransaction = rev.TotalRevenue / float64(rev.TotalTransactions)
	}
	return rev
}

// newProviderID returns prefix followed by 24 random hex characters, the
// shape of provider intent and refund identifiers.
func newProviderID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// fulfillmentTargets maps payment metadata keys to the tables whose rows a
// completed payment confirms.
var fulfillmentTargets = []struct {
	key   string
	table string
}{
	{"order_id", "orders"},
	{"booking_id", "bookings"},
	{"purchase_id", "marketplace_purchases"},
}
