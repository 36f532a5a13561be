package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the notification signature
const SignatureHeader = "X-Square-HmacSha256-Signature"

// GenerateSignature computes base64(HMAC-SHA256(key, notificationURL || body))
func GenerateSignature(signatureKey, notificationURL string, body []byte) string {
	h := hmac.New(sha256.New, []byte(signatureKey))
	h.Write([]byte(notificationURL))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifySignature checks signature against the exact notificationURL and raw body.
// It is false when no key is configured or no signature was supplied.
func VerifySignature(signatureKey string, body []byte, signature, notificationURL string) bool {
	if signatureKey == "" || signature == "" {
		return false
	}
	expected := GenerateSignature(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
