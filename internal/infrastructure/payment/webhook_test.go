package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"storefront-checkout/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType string, orderID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_123",
		"object": "event",
		"api_version": "2023-10-16",
		"type": %q,
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 4200,
			"amount_received": 4200,
			"currency": "usd",
			"status": "succeeded",
			"payment_method_types": ["card"],
			"metadata": {"orderId": %q, "orderNumber": "ORD-20260101-ABCDEF"}
		}}
	}`, eventType, orderID))
}

func TestVerifyWebhookSucceeded(t *testing.T) {
	orderID := uuid.New()
	payload := intentEvent("payment_intent.succeeded", orderID)

	ev, err := VerifyWebhook(payload, sign(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventSucceeded, ev.Kind)
	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, orderID, ev.OrderID)
	assert.Equal(t, "ORD-20260101-ABCDEF", ev.OrderNumber)
	assert.Equal(t, "pi_123", ev.TransactionID)
	assert.Equal(t, int64(4200), ev.AmountCaptured)
	assert.Equal(t, "card", ev.Method)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	payload := intentEvent("payment_intent.succeeded", uuid.New())

	_, err := VerifyWebhook(payload, sign(payload, "whsec_other", time.Now()), testSecret)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, domain.KindExternal, domain.KindOf(err))

	_, err = VerifyWebhook(payload, "", testSecret)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	payload := intentEvent("payment_intent.succeeded", uuid.New())
	header := sign(payload, testSecret, time.Now())
	tampered := intentEvent("payment_intent.succeeded", uuid.New())

	_, err := VerifyWebhook(tampered, header, testSecret)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	payload := intentEvent("payment_intent.succeeded", uuid.New())
	_, err := VerifyWebhook(payload, sign(payload, testSecret, time.Now().Add(-time.Hour)), testSecret)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyWebhookUnknownKindIsOther(t *testing.T) {
	payload := []byte(`{"id":"evt_9","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	ev, err := VerifyWebhook(payload, sign(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventOther, ev.Kind)
	assert.Equal(t, "customer.created", ev.Type)
}

func TestVerifyWebhookFailedKind(t *testing.T) {
	orderID := uuid.New()
	payload := intentEvent("payment_intent.payment_failed", orderID)
	ev, err := VerifyWebhook(payload, sign(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventFailed, ev.Kind)
	assert.Equal(t, orderID, ev.OrderID)
}

func TestWebhookVerifierWithoutSecret(t *testing.T) {
	v := NewWebhookVerifier("", zap.NewNop())
	orderID := uuid.New()

	ev, err := v.Verify(intentEvent("payment_intent.succeeded", orderID), "")
	require.NoError(t, err)
	assert.Equal(t, orderID, ev.OrderID)

	_, err = v.Verify([]byte("not json"), "")
	require.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestVerifyWebhookMissingMetadata(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":"pi_2","object":"payment_intent","amount_received":100,"currency":"usd","status":"succeeded"}}}`)
	ev, err := VerifyWebhook(payload, sign(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, ev.OrderID)
}
