package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader is the header carrying the payload signature.
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// Sign computes the lowercase hex HMAC-SHA256 of the payload bytes.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats the signature the way recipients receive it:
// "sha256=<hex>".
func SignatureHeaderValue(secret string, payload []byte) string {
	return signaturePrefix + Sign(secret, payload)
}

// VerifySignature checks a received signature header against the payload in
// constant time. Recipients run the same check on their side.
func VerifySignature(secret string, payload []byte, header string) bool {
	expected := SignatureHeaderValue(secret, payload)
	return hmac.Equal([]byte(expected), []byte(header))
}
