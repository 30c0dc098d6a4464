// Package cryptoutils provides key-derivation helpers shared by the secret-state
// store implementations.
//
// DeriveDiskKey derives a deterministic disk-encryption key from a CSR-like
// identity blob and a secret using the Argon2id KDF, so the same key can be
// regenerated on every boot of the same enclave instance given the same inputs.
package cryptoutils
