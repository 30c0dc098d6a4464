package cryptoutils

import (
	"golang.org/x/crypto/argon2"
)

// DeriveDiskKey creates a deterministic encryption key from a CSR and secret using Argon2id KDF.
// This function can be used to derive encryption keys for TEE disk protection, ensuring
// that the same key can be regenerated given the same inputs.
//
// Parameters:
//   - csr: Certificate Signing Request bytes, used as part of the salt
//   - secret: Secret material for key derivation
//
// Returns:
//   - Derived encryption key as a string
func DeriveDiskKey(csr []byte, secret []byte) string {
	// Use Argon2id with recommended parameters
	salt := append([]byte("TEE-DISK-KEY-"), csr[:]...) // Use part of CSR as salt

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	key := argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)

	// Convert to string format if needed or return as bytes
	return string(key)
}
