// Package identity derives a session's ephemeral cryptographic identity
// and its user-visible fingerprint from an Ed25519 keypair — the same key
// type the overlay adapter uses for its libp2p peer.ID (see SPEC_FULL.md
// §9). The keypair drives only the session's chat fingerprint; the
// overlay's peer identity comes from its own process-wide key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"regexp"
)

// Identity holds an ephemeral keypair. The private key never leaves
// memory and is discarded when the session disconnects.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 keypair.
func Generate() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity: %w", err)
	}
	return Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// Fingerprint returns the 8 uppercase hex characters at the start of
// SHA-256(publicKeyBytes).
func Fingerprint(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return fmt.Sprintf("%08X", sum[:4])
}

// Fingerprint is a convenience accessor over Identity.PublicKey.
func (id Identity) Fingerprint() string {
	return Fingerprint(id.PublicKey)
}

// ShortFingerprint returns the first 4 characters of a fingerprint.
func ShortFingerprint(fp string) string {
	if len(fp) < 4 {
		return fp
	}
	return fp[:4]
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)

// IsValid reports whether s is exactly 8 hex characters.
func IsValid(s string) bool {
	return fingerprintPattern.MatchString(s)
}
