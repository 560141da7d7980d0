package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signPayload(t *testing.T, secret string, ts int64, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewClient("sk_test", testWebhookSecret)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Now().Unix()

	t.Run("valid signature", func(t *testing.T) {
		header := signPayload(t, testWebhookSecret, now, payload)
		assert.NoError(t, client.VerifyWebhookSignature(payload, header, 5*time.Minute))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signPayload(t, "whsec_other", now, payload)
		assert.ErrorIs(t, client.VerifyWebhookSignature(payload, header, 5*time.Minute), ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signPayload(t, testWebhookSecret, now, payload)
		tampered := []byte(`{"id":"evt_1","type":"payment_intent.payment_failed"}`)
		assert.ErrorIs(t, client.VerifyWebhookSignature(tampered, header, 5*time.Minute), ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := time.Now().Add(-time.Hour).Unix()
		header := signPayload(t, testWebhookSecret, old, payload)
		assert.ErrorIs(t, client.VerifyWebhookSignature(payload, header, 5*time.Minute), ErrInvalidSignature)
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.ErrorIs(t, client.VerifyWebhookSignature(payload, "garbage", 5*time.Minute), ErrInvalidSignature)
	})

	t.Run("missing secret", func(t *testing.T) {
		unconfigured := NewClient("sk_test", "")
		header := signPayload(t, testWebhookSecret, now, payload)
		assert.ErrorIs(t, unconfigured.VerifyWebhookSignature(payload, header, 5*time.Minute), ErrNotConfigured)
	})
}

func TestParseEvent(t *testing.T) {
	client := NewClient("sk_test", testWebhookSecret)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)
	header := signPayload(t, testWebhookSecret, time.Now().Unix(), payload)

	event, err := client.ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.JSONEq(t, `{"id":"pi_1","status":"succeeded"}`, string(event.Data.Object))
}

func TestParseEventInvoiceCarriesSubscription(t *testing.T) {
	client := NewClient("sk_test", testWebhookSecret)
	payload := []byte(`{"id":"evt_2","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","subscription":"sub_123","amount_paid":1999,"currency":"usd"}}}`)
	header := signPayload(t, testWebhookSecret, time.Now().Unix(), payload)

	event, err := client.ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "invoice.payment_succeeded", event.Type)

	var inv Invoice
	require.NoError(t, json.Unmarshal(event.Data.Object, &inv))
	assert.Equal(t, "sub_123", inv.Subscription)
	assert.Equal(t, int64(1999), inv.AmountPaid)
}
