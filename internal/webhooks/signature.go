package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix names the algorithm in the X-Signature header value.
const SignaturePrefix = "sha256="

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}

// Sign returns the X-Signature value for a delivery body: "sha256=" followed
// by the lowercase hex HMAC of the body under the subscription secret.
func Sign(secret string, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(mac(secret, body))
}

// Verify reports whether header is a valid signature of body. Subscribers
// use the same check on their side.
func Verify(secret string, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, SignaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, body), got)
}
