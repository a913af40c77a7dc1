// Package webhook verifies and parses payment-provider webhook deliveries.
//
// Deliveries carry a Stripe-Signature header of the form
// "t=<unix seconds>,v1=<hex hmac>", where the HMAC-SHA256 is keyed by the
// endpoint secret and computed over "<t>.<raw body>".
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SignatureHeader is the request header carrying the delivery signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of an accepted delivery.
const DefaultTolerance = 5 * time.Minute

// Event types handled by the gateway.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventDisputeCreated   = "charge.dispute.created"
)

var (
	ErrNoSecret          = errors.New("webhook secret not configured")
	ErrMissingSignature  = errors.New("missing signature header")
	ErrInvalidHeader     = errors.New("malformed signature header")
	ErrTimestampTooOld   = errors.New("timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("no matching signature")
	ErrInvalidPayload    = errors.New("invalid event payload")
)

// Verifier checks delivery signatures.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier. A non-positive tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Verify checks header against payload. Any v1 entry may match.
func (v *Verifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return ErrNoSecret
	}
	if header == "" {
		return ErrMissingSignature
	}

	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrTimestampTooOld
	}

	expected := computeSignature(payload, v.secret, ts)
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign returns a header value for payload signed at ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), computeSignature(payload, secret, ts.Unix()))
}

func computeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (int64, []string, error) {
	var (
		ts    int64
		hasTS bool
		sigs  []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidHeader
			}
			ts, hasTS = n, true
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, ErrInvalidHeader
	}
	return ts, sigs, nil
}

// Event is a parsed delivery.
type Event struct {
	ID     string
	Type   string
	Object gjson.Result
}

// ParseEvent extracts the event envelope from payload.
func ParseEvent(payload []byte) (*Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(payload)
	typ := root.Get("type")
	if !typ.Exists() || typ.String() == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	obj := root.Get("data.object")
	if !obj.IsObject() {
		return nil, fmt.Errorf("%w: missing data.object", ErrInvalidPayload)
	}
	return &Event{
		ID:     root.Get("id").String(),
		Type:   typ.String(),
		Object: obj,
	}, nil
}

// ObjectID is the id of the event's data object.
func (e *Event) ObjectID() string {
	return e.Object.Get("id").String()
}

// Amount is the data object's amount field.
func (e *Event) Amount() float64 {
	return e.Object.Get("amount").Float()
}

// DisputeReason reads the dispute reason of a charge object.
func (e *Event) DisputeReason() string {
	if r := e.Object.Get("dispute.reason"); r.Exists() {
		return r.String()
	}
	return e.Object.Get("reason").String()
}
