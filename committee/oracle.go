package committee

import (
	"errors"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
)

// Kind discriminates the two measurement families the committee votes on.
type Kind int

const (
	Code Kind = iota
	Instance
)

func (k Kind) String() string {
	if k == Code {
		return "code"
	}
	return "instance"
}

var (
	ErrCodeNotAuthorized     = errors.New("committee: code measurement not authorized")
	ErrInstanceNotAuthorized = errors.New("committee: instance measurement not authorized")
	ErrOracleUnavailable     = errors.New("committee: registry lookup failed")
)

// Oracle answers authorization questions against the committee's on-chain
// approval/revocation registry.
type Oracle interface {
	// IsAuthorized reports whether measurementString carries a
	// committee-signed M-of-N approval and no committee-signed revocation.
	// A registry lookup failure is reported as ErrOracleUnavailable, which
	// callers MUST treat as non-authorization (fail closed).
	IsAuthorized(kind Kind, measurementString string) (bool, error)

	// AuthorizeAttestation extracts the code and instance canonical
	// strings from v and requires both to be authorized.
	AuthorizeAttestation(v attestation.Verified) error
}

// authorizeBoth is the shared implementation of AuthorizeAttestation used
// by every Oracle: it evaluates code then instance, in that order, so a
// revoked code measurement never reaches the (potentially side-effecting,
// always slower) instance lookup.
func authorizeBoth(o Oracle, v attestation.Verified) error {
	codeOK, err := o.IsAuthorized(Code, v.Measurements.CodeString())
	if err != nil {
		return err
	}
	if !codeOK {
		return ErrCodeNotAuthorized
	}

	instanceOK, err := o.IsAuthorized(Instance, v.Measurements.InstanceString())
	if err != nil {
		return err
	}
	if !instanceOK {
		return ErrInstanceNotAuthorized
	}

	return nil
}
