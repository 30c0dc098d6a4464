package committee

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
)

// TestingOracle authorizes iff the peer's code measurement is the
// well-known all-zero debug measurement AND the caller's own fresh
// self-attestation also reports the debug measurement. This prevents a
// production-measured enclave from ever authorizing a peer via the test
// path, and prevents a test-mode enclave from passing itself off as
// production-authorized. It must only be selected for local development
// or CI, never for a production pool, and every use is logged loudly.
type TestingOracle struct {
	selfAttestor attestation.Attestor
	log          *slog.Logger
}

// NewTestingOracle builds a debug-mode oracle that re-attests through
// selfAttestor on every authorization call.
func NewTestingOracle(selfAttestor attestation.Attestor, log *slog.Logger) *TestingOracle {
	return &TestingOracle{selfAttestor: selfAttestor, log: log}
}

func (o *TestingOracle) IsAuthorized(_ Kind, measurementString string) (bool, error) {
	return measurementString == attestation.Measurements{}.CodeString() ||
		measurementString == attestation.Measurements{}.InstanceString(), nil
}

func (o *TestingOracle) AuthorizeAttestation(v attestation.Verified) error {
	if !v.Measurements.IsDebug() {
		return fmt.Errorf("%w: remote attestation not debug", ErrCodeNotAuthorized)
	}

	selfDoc, err := o.selfAttestor.Attest(nil, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: self-attestation failed: %v", ErrOracleUnavailable, err)
	}
	if !selfDoc.Measurements.IsDebug() {
		return fmt.Errorf("%w: self attestation not debug", ErrCodeNotAuthorized)
	}

	o.log.Warn("authorizing measurements in debug mode")
	return nil
}
