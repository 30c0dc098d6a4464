package attestation

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// DummyAttestor is an unsigned stand-in for the Nitro platform with fixed
// measurements, used by tests and local development. It produces documents
// that encode their fields in the clear with no certificate chain at all;
// Verify on a DummyAttestor trusts the wire bytes directly. It must never
// be selected outside of the "nitro-dummy" platform profile.
type DummyAttestor struct {
	// CodeMeasurement lets tests simulate a specific identity. The zero
	// value reports the all-zero debug measurement set.
	CodeMeasurement    Measurements
	hasCodeMeasurement bool
}

// NewDummyAttestor returns a DummyAttestor reporting the debug-mode
// measurement set.
func NewDummyAttestor() *DummyAttestor {
	return &DummyAttestor{}
}

// WithMeasurements returns a DummyAttestor reporting the given measurement
// set instead of the all-zero debug set.
func (a *DummyAttestor) WithMeasurements(m Measurements) *DummyAttestor {
	return &DummyAttestor{CodeMeasurement: m, hasCodeMeasurement: true}
}

func (a *DummyAttestor) measurements() Measurements {
	if a.hasCodeMeasurement {
		return a.CodeMeasurement
	}
	return Measurements{}
}

// dummy wire format: a length-prefixed field list, self-describing enough
// for Parse to reconstruct a Document without any certificate machinery.
// [48]PCR0 [48]PCR1 [48]PCR2 [48]PCR4 [8]unix-nano
// [2]len nonce [2]len pubkey [2]len userdata
func (a *DummyAttestor) Attest(nonce, publicKey, userData []byte) (Document, error) {
	m := a.measurements()

	buf := &bytes.Buffer{}
	buf.Write(m.PCR0[:])
	buf.Write(m.PCR1[:])
	buf.Write(m.PCR2[:])
	buf.Write(m.PCR4[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	buf.Write(ts[:])

	for _, field := range [][]byte{nonce, publicKey, userData} {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(field)))
		buf.Write(l[:])
		buf.Write(field)
	}

	// A random tag stands in for a signature: it gives every dummy
	// document unique bytes on the wire without asserting anything
	// cryptographic.
	tag := make([]byte, 16)
	if _, err := rand.Read(tag); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	buf.Write(tag)

	return a.Parse(buf.Bytes())
}

func (a *DummyAttestor) Parse(raw []byte) (Document, error) {
	if len(raw) < 48*4+8+2*3 {
		return Document{}, fmt.Errorf("%w: dummy document too short", ErrMalformedField)
	}

	var m Measurements
	off := 0
	for _, dst := range []*[48]byte{&m.PCR0, &m.PCR1, &m.PCR2, &m.PCR4} {
		copy(dst[:], raw[off:off+48])
		off += 48
	}

	ts := time.Unix(0, int64(binary.BigEndian.Uint64(raw[off:off+8])))
	off += 8

	fields := make([][]byte, 3)
	for i := range fields {
		if off+2 > len(raw) {
			return Document{}, fmt.Errorf("%w: dummy document truncated", ErrMalformedField)
		}
		l := int(binary.BigEndian.Uint16(raw[off : off+2]))
		off += 2
		if off+l > len(raw) {
			return Document{}, fmt.Errorf("%w: dummy document truncated", ErrMalformedField)
		}
		fields[i] = raw[off : off+l]
		off += l
	}

	return Document{
		Raw:          raw,
		Measurements: m,
		Nonce:        fields[0],
		PublicKey:    fields[1],
		UserData:     fields[2],
		Timestamp:    ts,
	}, nil
}

func (a *DummyAttestor) Verify(doc Document, expectedNonce, expectedUserData []byte) (Verified, error) {
	if time.Since(doc.Timestamp) > MaxAttestationAge || time.Until(doc.Timestamp) > MaxAttestationAge {
		return Verified{}, ErrExpired
	}
	if !byteEqual(doc.Nonce, expectedNonce) {
		return Verified{}, ErrNonceMismatch
	}
	if expectedUserData != nil && !byteEqual(doc.UserData, expectedUserData) {
		return Verified{}, ErrUserDataMismatch
	}
	return Verified{Measurements: doc.Measurements, PublicKey: doc.PublicKey}, nil
}
