package webhook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func fixedVerifier(at time.Time) *Verifier {
	v := NewVerifier(testSecret, 0)
	v.now = func() time.Time { return at }
	return v
}

func TestVerifier_Verify(t *testing.T) {
	now := time.Unix(1717400000, 0)
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	good := Sign(payload, testSecret, now)

	tests := []struct {
		name    string
		header  string
		payload []byte
		want    error
	}{
		{"valid", good, payload, nil},
		{"missing", "", payload, ErrMissingSignature},
		{"no timestamp", "v1=abc", payload, ErrInvalidHeader},
		{"bad timestamp", "t=soon,v1=abc", payload, ErrInvalidHeader},
		{"no v1", fmt.Sprintf("t=%d", now.Unix()), payload, ErrInvalidHeader},
		{"tampered body", good, []byte(`{"type":"payment_intent.payment_failed"}`), ErrSignatureMismatch},
		{"wrong secret", Sign(payload, "other", now), payload, ErrSignatureMismatch},
		{"stale", Sign(payload, testSecret, now.Add(-6*time.Minute)), payload, ErrTimestampTooOld},
		{"future", Sign(payload, testSecret, now.Add(6*time.Minute)), payload, ErrTimestampTooOld},
		{"within tolerance", Sign(payload, testSecret, now.Add(-4*time.Minute)), payload, nil},
	}

	v := fixedVerifier(now)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.payload, tt.header)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifier_RotatedSecrets(t *testing.T) {
	now := time.Unix(1717400000, 0)
	payload := []byte(`{}`)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(),
		computeSignature(payload, "old-secret", now.Unix()),
		computeSignature(payload, testSecret, now.Unix()))

	assert.NoError(t, fixedVerifier(now).Verify(payload, header))
}

func TestVerifier_NoSecret(t *testing.T) {
	assert.ErrorIs(t, NewVerifier("", 0).Verify([]byte("{}"), "t=1,v1=x"), ErrNoSecret)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{
		"id": "evt_1",
		"type": "charge.dispute.created",
		"data": {"object": {"id": "ch_1", "amount": 1250, "dispute": {"reason": "fraudulent"}}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventDisputeCreated, ev.Type)
	assert.Equal(t, "ch_1", ev.ObjectID())
	assert.Equal(t, 1250.0, ev.Amount())
	assert.Equal(t, "fraudulent", ev.DisputeReason())
}

func TestParseEvent_Invalid(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"data":{"object":{}}}`,
		`{"type":"payment_intent.succeeded"}`,
		`{"type":"payment_intent.succeeded","data":{"object":"pi_1"}}`,
	} {
		_, err := ParseEvent([]byte(payload))
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
}
