package keysync

import "errors"

// The four error families a caller of Leader/Follower needs to
// distinguish: a network/framing failure that may be worth retrying, a
// cryptographic failure, an attestation failure that indicates a hostile
// or misconfigured peer, and a local state-store failure.
var (
	// ErrTransport covers stream I/O and length-prefix framing failures.
	ErrTransport = errors.New("keysync: transport failure")

	// ErrTimeout is returned by ReadMessageTimeout when a receive doesn't
	// complete before its deadline. Unlike other ErrTransport failures,
	// a timeout is a "try again later" signal to the operator rather
	// than a hard protocol failure.
	ErrTimeout = errors.New("keysync: receive timed out")

	// ErrFrameTooLarge is returned by ReadMessage when a peer's declared
	// frame length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("keysync: frame exceeds maximum size")

	// ErrCrypto covers envelope sealing and opening failures. A digest
	// mismatch is caught while verifying the leader's attestation and is
	// reported as ErrAttestationRejected.
	ErrCrypto = errors.New("keysync: cryptographic failure")

	// ErrAttestationRejected covers attestation verification and
	// committee-authorization failures; it wraps the more specific
	// attestation.* or committee.* sentinel that caused the rejection.
	ErrAttestationRejected = errors.New("keysync: peer attestation rejected")

	// ErrLeaderPublicKeyPresent is returned by the follower if the
	// leader's final attestation carries a non-empty public_key field,
	// which the protocol requires to be empty.
	ErrLeaderPublicKeyPresent = errors.New("keysync: leader attestation carries unexpected public key")

	// ErrState covers local secret-state store failures (export/install).
	ErrState = errors.New("keysync: state store failure")
)

// ErrorKind classifies err into one of the four families above, or
// "timeout" for ErrTimeout, for use as a low-cardinality metrics label.
// Returns "ok" for a nil error and "other" for an error that doesn't wrap
// any of the known sentinels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAttestationRejected):
		return "attestation_rejected"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	case errors.Is(err, ErrFrameTooLarge):
		return "transport"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrState):
		return "state"
	default:
		return "other"
	}
}
