package attestation

import "errors"

// AttestationError kinds, tested with errors.Is.
var (
	ErrAttestationUnavailable = errors.New("attestation: platform refused to produce a document")
	ErrBadSignature           = errors.New("attestation: signature invalid")
	ErrChainUntrusted         = errors.New("attestation: certificate chain does not terminate at a pinned root")
	ErrExpired                = errors.New("attestation: document outside validity window")
	ErrNonceMismatch          = errors.New("attestation: nonce field does not match expectation")
	ErrUserDataMismatch       = errors.New("attestation: user_data field does not match expectation")
	ErrMalformedField         = errors.New("attestation: document field malformed")
)
