package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Header names for the preferred (Standard Webhooks) scheme used by Dodo
// Payments, and the legacy single-header fallbacks.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

var legacySignatureHeaders = []string{"x-dodo-signature", "x-webhook-signature", "x-signature"}

// DefaultMaxSkew bounds the replay window for captured-in-transit requests.
const DefaultMaxSkew = 10 * time.Minute

var ErrStaleTimestamp = errors.New("webhook timestamp outside allowed skew")

// HeaderFunc reads one request header by name, returning "" when absent.
type HeaderFunc func(name string) string

// Verify checks request authenticity against the shared secret. The
// preferred scheme signs "{id}.{timestamp}.{body}" with HMAC-SHA256 and
// sends one or more base64 tokens (multiple tokens support secret
// rotation); the fallback scheme is a hex HMAC-SHA256 of the body alone.
func Verify(get HeaderFunc, rawBody []byte, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}

	id := strings.TrimSpace(get(HeaderID))
	timestamp := strings.TrimSpace(get(HeaderTimestamp))
	signature := strings.TrimSpace(get(HeaderSignature))
	if id != "" && timestamp != "" && signature != "" {
		return verifyStandard(id, timestamp, signature, rawBody, secret)
	}

	for _, name := range legacySignatureHeaders {
		if sig := strings.TrimSpace(get(name)); sig != "" {
			return verifyLegacy(sig, rawBody, secret)
		}
	}
	return false
}

// CheckFreshness rejects requests whose timestamp header is further than
// maxSkew from now, independent of signature validity. A missing timestamp
// header passes; the legacy scheme has none.
func CheckFreshness(get HeaderFunc, now time.Time, maxSkew time.Duration) error {
	raw := strings.TrimSpace(get(HeaderTimestamp))
	if raw == "" {
		return nil
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return ErrStaleTimestamp
	}
	return nil
}

func verifyStandard(id, timestamp, signatureHeader string, rawBody []byte, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// The header may carry several candidate signatures, each optionally
	// version-tagged ("v1,<sig>"). Any match passes.
	for _, token := range strings.Fields(signatureHeader) {
		if idx := strings.IndexByte(token, ','); idx >= 0 {
			token = token[idx+1:]
		}
		if hmac.Equal([]byte(token), []byte(expected)) {
			return true
		}
	}
	return false
}

func verifyLegacy(signatureHeader string, rawBody []byte, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), decoded)
}
