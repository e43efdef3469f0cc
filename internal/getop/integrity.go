package getop

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// NonceSize is the length in bytes of a freshly generated challenge
// nonce.
const NonceSize = 32

// NewNonce draws a fresh random nonce for one integrity challenge.
func NewNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("getop: new nonce: %w", err)
	}
	return n, nil
}

// ExpectedScalar computes HMAC(nonce, content): the keyed-hash scalar
// a holder must reproduce over its local copy of content to prove it
// still holds the exact bytes.
func ExpectedScalar(nonce, content []byte) []byte {
	mac := hmac.New(sha256.New, nonce)
	mac.Write(content)
	return mac.Sum(nil)
}

// Matches reports whether a holder's reported scalar agrees with the
// reference computed from nonce and content.
func Matches(nonce, content, reported []byte) bool {
	return hmac.Equal(ExpectedScalar(nonce, content), reported)
}
