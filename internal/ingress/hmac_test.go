package ingress_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub010/internal/ingress"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_validSignaturePasses(t *testing.T) {
	body := []byte(`{"amount":100}`)
	sig := sign("shh", "2026-07-31T00:00:00Z", body)

	assert.True(t, ingress.VerifySignature("shh", "2026-07-31T00:00:00Z", body, sig))
}

func TestVerifySignature_wrongSecretFails(t *testing.T) {
	body := []byte(`{"amount":100}`)
	sig := sign("shh", "2026-07-31T00:00:00Z", body)

	assert.False(t, ingress.VerifySignature("other", "2026-07-31T00:00:00Z", body, sig))
}

func TestVerifySignature_tamperedBodyFails(t *testing.T) {
	sig := sign("shh", "2026-07-31T00:00:00Z", []byte(`{"amount":100}`))

	assert.False(t, ingress.VerifySignature("shh", "2026-07-31T00:00:00Z", []byte(`{"amount":999}`), sig))
}

func TestCheckTimestamp_withinSkewPasses(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	ts := now.Add(-2 * time.Minute).Format(time.RFC3339)

	assert.NoError(t, ingress.CheckTimestamp(ts, now))
}

func TestCheckTimestamp_outsideSkewFails(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	ts := now.Add(-10 * time.Minute).Format(time.RFC3339)

	assert.Error(t, ingress.CheckTimestamp(ts, now))
}
