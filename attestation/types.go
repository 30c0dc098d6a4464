package attestation

import (
	"encoding/hex"
	"time"
)

// Measurements holds the fixed-width platform configuration register
// digests a Nitro attestation document carries. PCR0/1/2 identify the code
// image; PCR4 identifies the parent instance.
type Measurements struct {
	PCR0 [48]byte
	PCR1 [48]byte
	PCR2 [48]byte
	PCR4 [48]byte
}

// CodeString is the canonical textual form the committee signs or revokes
// for a code measurement: "AWS-CODE:<pcr0>:<pcr1>:<pcr2>".
func (m Measurements) CodeString() string {
	return "AWS-CODE:" + hex.EncodeToString(m.PCR0[:]) + ":" + hex.EncodeToString(m.PCR1[:]) + ":" + hex.EncodeToString(m.PCR2[:])
}

// InstanceString is the canonical textual form for an instance measurement:
// "AWS-INSTANCE:<pcr4>".
func (m Measurements) InstanceString() string {
	return "AWS-INSTANCE:" + hex.EncodeToString(m.PCR4[:])
}

// debugMeasurements is the all-zero PCR set AWS Nitro reports for a debug
// (non-locked) enclave image.
var debugMeasurements = Measurements{}

// IsDebug reports whether m matches the well-known debug-mode code
// measurement.
func (m Measurements) IsDebug() bool {
	return m.PCR0 == debugMeasurements.PCR0 && m.PCR1 == debugMeasurements.PCR1 && m.PCR2 == debugMeasurements.PCR2
}

// Document is a parsed, not-yet-verified attestation document.
type Document struct {
	Raw          []byte
	Measurements Measurements
	Nonce        []byte
	PublicKey    []byte
	UserData     []byte
	Timestamp    time.Time
}

// Verified is the caller-facing view of a document whose signature chain,
// timestamp, and binding fields have already been checked. It deliberately
// exposes nothing beyond measurements and the public key field: callers
// must not re-inspect nonce/user_data after Verify has already compared
// them against the caller's expectations.
type Verified struct {
	Measurements Measurements
	PublicKey    []byte
}

// Attestor produces and verifies attestation documents for one platform
// profile. Implementations are injected at construction; the Handshake
// Engine never branches on platform.
type Attestor interface {
	// Attest requests a signed document whose binding fields carry the
	// caller's inputs verbatim. Any of nonce/publicKey/userData may be nil.
	Attest(nonce, publicKey, userData []byte) (Document, error)

	// Parse decodes raw wire bytes received from a peer into a Document,
	// without yet checking the validity window or binding fields. The
	// Nitro implementation already checks the signature chain while
	// decoding; the dummy one does not.
	Parse(raw []byte) (Document, error)

	// Verify checks the document's signature chain, validity window, and
	// binding fields against the caller's expectations. expectedUserData
	// of nil skips the user-data comparison.
	Verify(doc Document, expectedNonce, expectedUserData []byte) (Verified, error)
}
