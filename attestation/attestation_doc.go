// Package attestation produces and verifies hardware attestation documents
// for the pool's configured platform profile. The reference profile is AWS
// Nitro Enclaves: a COSE Sign1 envelope around a CBOR payload carrying PCR
// measurements and three caller-controlled fields (nonce, public key, user
// data) that the Handshake Engine binds transcript material to.
package attestation
