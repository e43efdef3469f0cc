// Package bootstrap is the stand-in for the key-distribution tool,
// which is out of scope per the spec except for its one core-visible
// artifact: the set of initial holder identities and keys injected at
// startup.
package bootstrap

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/safevault/vault/internal/ids"
)

// HolderKeyPair is one generated holder identity and its signing key.
type HolderKeyPair struct {
	Holder     ids.HolderID
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateHolderSet draws n fresh random holder identities, the
// artifact a bootstrap run hands to a fresh vault node.
func GenerateHolderSet(n int) ([]ids.HolderID, error) {
	out := make([]ids.HolderID, 0, n)
	for i := 0; i < n; i++ {
		h, err := ids.RandomHolderID()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: generate holder: %w", err)
		}
		out = append(out, h)
	}
	return out, nil
}

// GenerateKeyPairs draws n fresh holder identities each paired with
// an ed25519 signing key.
func GenerateKeyPairs(n int) ([]HolderKeyPair, error) {
	out := make([]HolderKeyPair, 0, n)
	for i := 0; i < n; i++ {
		h, err := ids.RandomHolderID()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: generate holder: %w", err)
		}
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: generate key: %w", err)
		}
		out = append(out, HolderKeyPair{Holder: h, PublicKey: pub, PrivateKey: priv})
	}
	return out, nil
}
