package keysync

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
)

// Nonce is a 32-byte random challenge bound into an attestation
// document's nonce or user_data field, preventing replay of a captured
// document across a different handshake.
type Nonce [32]byte

// NewNonce draws a fresh Nonce from the system RNG.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, fmt.Errorf("generate nonce: %w", err)
	}
	return n, nil
}

// EphemeralKeyPair is a single-use P-256 keypair generated by the
// follower for one handshake attempt and bound into its attestation
// document's public_key field. It is discarded after the handshake
// concludes, successfully or not.
type EphemeralKeyPair struct {
	Private *ecdsa.PrivateKey
}

// NewEphemeralKeyPair generates a fresh P-256 keypair.
func NewEphemeralKeyPair() (EphemeralKeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return EphemeralKeyPair{}, fmt.Errorf("generate ephemeral keypair: %w", err)
	}
	return EphemeralKeyPair{Private: priv}, nil
}

// PublicKeyBytes returns the uncompressed SEC1 encoding of the public
// half, the form carried in an attestation document's public_key field.
func (k EphemeralKeyPair) PublicKeyBytes() []byte {
	return elliptic.Marshal(k.Private.PublicKey.Curve, k.Private.PublicKey.X, k.Private.PublicKey.Y)
}

// Zeroize overwrites the private scalar's backing bytes so the ephemeral
// secret doesn't linger in memory after the handshake concludes. It is
// safe to call on a key that has already been zeroized or never set.
func (k EphemeralKeyPair) Zeroize() {
	if k.Private == nil || k.Private.D == nil {
		return
	}
	b := k.Private.D.Bits()
	for i := range b {
		b[i] = 0
	}
	k.Private.D.SetInt64(0)
}
