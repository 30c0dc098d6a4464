package keysync

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Envelope is the hybrid-encrypted transport format for secret state
// moving from leader to follower in message 3. It follows the same
// ECDH-then-AEAD shape as a standard ECIES envelope, but the key
// derivation step is HKDF-SHA256 over the ECDH shared point rather than a
// bare SHA-256, and the format carries an explicit algorithm ID byte so a
// future KDF or AEAD swap doesn't silently misinterpret old envelopes.
//
// Wire format: [1 algorithm ID][2 len][ephemeral pubkey, SEC1 uncompressed][12 nonce][ciphertext || 16-byte GCM tag]
type Envelope struct {
	raw []byte
}

// algorithmECDHP256HKDFSHA256AESGCM is the only algorithm ID this
// package currently produces or accepts.
const algorithmECDHP256HKDFSHA256AESGCM = 0x01

const hkdfInfo = "keysync-envelope-v1"

// Bytes returns the envelope's wire encoding.
func (e Envelope) Bytes() []byte { return e.raw }

// ParseEnvelope wraps raw bytes read off the wire without decrypting them.
func ParseEnvelope(raw []byte) Envelope { return Envelope{raw: raw} }

// Seal encrypts plaintext for the holder of recipientPublicKey (a P-256
// public key in uncompressed SEC1 form, as carried in an attestation
// document's public_key field), using a fresh ephemeral keypair for
// forward secrecy.
func Seal(recipientPublicKey []byte, plaintext []byte) (Envelope, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, recipientPublicKey)
	if x == nil {
		return Envelope{}, fmt.Errorf("%w: invalid recipient public key", ErrCrypto)
	}
	recipient := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}

	ephemeral, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: generate ephemeral key: %v", ErrCrypto, err)
	}

	sharedX, _ := curve.ScalarMult(recipient.X, recipient.Y, ephemeral.D.Bytes())
	aead, err := newAEAD(sharedX.Bytes())
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	ephemeralPub := elliptic.Marshal(curve, ephemeral.PublicKey.X, ephemeral.PublicKey.Y)

	buf := make([]byte, 0, 1+2+len(ephemeralPub)+len(nonce)+len(ciphertext))
	buf = append(buf, algorithmECDHP256HKDFSHA256AESGCM)
	var lenField [2]byte
	binary.BigEndian.PutUint16(lenField[:], uint16(len(ephemeralPub)))
	buf = append(buf, lenField[:]...)
	buf = append(buf, ephemeralPub...)
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)

	return Envelope{raw: buf}, nil
}

// Open decrypts an Envelope with the recipient's private key.
func Open(recipientPrivate *ecdsa.PrivateKey, e Envelope) ([]byte, error) {
	raw := e.raw
	if len(raw) < 1+2 {
		return nil, fmt.Errorf("%w: envelope too short", ErrCrypto)
	}
	if raw[0] != algorithmECDHP256HKDFSHA256AESGCM {
		return nil, fmt.Errorf("%w: unsupported envelope algorithm %d", ErrCrypto, raw[0])
	}
	off := 1

	ephemeralLen := int(binary.BigEndian.Uint16(raw[off : off+2]))
	off += 2
	if off+ephemeralLen > len(raw) {
		return nil, fmt.Errorf("%w: envelope truncated", ErrCrypto)
	}
	ephemeralPub := raw[off : off+ephemeralLen]
	off += ephemeralLen

	curve := recipientPrivate.Curve
	x, y := elliptic.Unmarshal(curve, ephemeralPub)
	if x == nil {
		return nil, fmt.Errorf("%w: invalid ephemeral public key", ErrCrypto)
	}

	sharedX, _ := curve.ScalarMult(x, y, recipientPrivate.D.Bytes())
	aead, err := newAEAD(sharedX.Bytes())
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if off+nonceSize > len(raw) {
		return nil, fmt.Errorf("%w: envelope truncated", ErrCrypto)
	}
	nonce := raw[off : off+nonceSize]
	off += nonceSize

	ciphertext := raw[off:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrCrypto, err)
	}
	return plaintext, nil
}

// Digest returns the SHA-256 digest of an envelope's wire bytes, the
// value message 3's leader attestation binds into its user_data field so
// the follower can detect a leader attestation swapped onto a different
// ciphertext in transit.
func (e Envelope) Digest() []byte {
	sum := sha256.Sum256(e.raw)
	return sum[:]
}

func newAEAD(sharedSecretX []byte) (cipher.AEAD, error) {
	kdf := hkdf.New(sha256.New, sharedSecretX, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrCrypto, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: init cipher: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: init GCM: %v", ErrCrypto, err)
	}
	return aead, nil
}
