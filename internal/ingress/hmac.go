// Package ingress implements the webhook ingress adapters (spec §4.5, C5):
// HMAC-verified provider webhooks that translate into envelopes and land in
// the outbox for the normal broker path, grounded on the HMAC verification
// idiom of an oracle/payment webhook server in the reference pack
// (crypto/hmac + constant-time comparison over the raw body).
package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxClockSkew bounds how stale a webhook timestamp may be (spec §4.5:
// "reject if |now - timestamp| > 5 min").
const MaxClockSkew = 5 * time.Minute

// VerifySignature checks an HMAC-SHA-256 signature over timestamp ∥
// rawBody using a per-provider secret, with a constant-time comparison
// (spec §4.5).
func VerifySignature(secret, timestamp string, rawBody []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, provided)
}

// CheckTimestamp parses an RFC3339 webhook timestamp and verifies it falls
// within MaxClockSkew of now.
func CheckTimestamp(raw string, now time.Time) error {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid webhook timestamp %q: %w", raw, err)
	}

	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}

	if skew > MaxClockSkew {
		return fmt.Errorf("webhook timestamp %q outside allowed skew of %s", raw, MaxClockSkew)
	}

	return nil
}
