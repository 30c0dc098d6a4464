package attestation

import (
	"fmt"
	"time"

	"github.com/hf/nitrite"
	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
)

// MaxAttestationAge bounds how old a peer document may be before Verify
// rejects it with ErrExpired.
var MaxAttestationAge = 5 * time.Minute

// NitroAttestor talks to the local AWS Nitro Security Module device to
// produce attestation documents, and verifies peer documents against the
// AWS Nitro root of trust via nitrite.
type NitroAttestor struct{}

// NewNitroAttestor returns an Attestor backed by /dev/nsm.
func NewNitroAttestor() *NitroAttestor {
	return &NitroAttestor{}
}

func (NitroAttestor) Attest(nonce, publicKey, userData []byte) (Document, error) {
	sess, err := nsm.OpenDefaultSession()
	if err != nil {
		return Document{}, fmt.Errorf("%w: open NSM session: %v", ErrAttestationUnavailable, err)
	}
	defer sess.Close()

	res, err := sess.Send(&request.Attestation{
		Nonce:     nonce,
		UserData:  userData,
		PublicKey: publicKey,
	})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	if res.Error != "" {
		return Document{}, fmt.Errorf("%w: NSM: %s", ErrAttestationUnavailable, res.Error)
	}
	if res.Attestation == nil || res.Attestation.Document == nil {
		return Document{}, fmt.Errorf("%w: NSM returned no document", ErrAttestationUnavailable)
	}

	return parseNitroDocument(res.Attestation.Document)
}

func (NitroAttestor) Parse(raw []byte) (Document, error) {
	return parseNitroDocument(raw)
}

func (NitroAttestor) Verify(doc Document, expectedNonce, expectedUserData []byte) (Verified, error) {
	result, err := nitrite.Verify(doc.Raw, nitrite.VerifyOptions{CurrentTime: time.Now()})
	if err != nil {
		return Verified{}, fmt.Errorf("%w: %v", ErrChainUntrusted, err)
	}

	if time.Since(doc.Timestamp) > MaxAttestationAge || time.Until(doc.Timestamp) > MaxAttestationAge {
		return Verified{}, ErrExpired
	}

	if !byteEqual(result.Document.Nonce, expectedNonce) {
		return Verified{}, ErrNonceMismatch
	}
	if expectedUserData != nil && !byteEqual(result.Document.UserData, expectedUserData) {
		return Verified{}, ErrUserDataMismatch
	}

	measurements, err := measurementsFromPCRs(result.Document.PCRs)
	if err != nil {
		return Verified{}, err
	}

	return Verified{
		Measurements: measurements,
		PublicKey:    result.Document.PublicKey,
	}, nil
}

func parseNitroDocument(raw []byte) (Document, error) {
	result, err := nitrite.Verify(raw, nitrite.VerifyOptions{CurrentTime: time.Now()})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedField, err)
	}

	measurements, err := measurementsFromPCRs(result.Document.PCRs)
	if err != nil {
		return Document{}, err
	}

	return Document{
		Raw:          raw,
		Measurements: measurements,
		Nonce:        result.Document.Nonce,
		PublicKey:    result.Document.PublicKey,
		UserData:     result.Document.UserData,
		Timestamp:    result.Document.Timestamp,
	}, nil
}

func measurementsFromPCRs(pcrs map[uint][]byte) (Measurements, error) {
	var m Measurements
	for idx, dst := range map[uint]*[48]byte{0: &m.PCR0, 1: &m.PCR1, 2: &m.PCR2, 4: &m.PCR4} {
		v, ok := pcrs[idx]
		if !ok || len(v) != 48 {
			return Measurements{}, fmt.Errorf("%w: PCR%d missing or wrong length", ErrMalformedField, idx)
		}
		copy(dst[:], v)
	}
	return m, nil
}

func byteEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
