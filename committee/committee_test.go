package committee

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
)

func debugVerified() attestation.Verified {
	return attestation.Verified{Measurements: attestation.Measurements{}, PublicKey: []byte("pub")}
}

func nonDebugVerified() attestation.Verified {
	m := attestation.Measurements{}
	m.PCR0[0] = 0x01
	return attestation.Verified{Measurements: m, PublicKey: []byte("pub")}
}

func TestStaticOracleAllowThenAuthorize(t *testing.T) {
	o := NewStaticOracle()
	v := nonDebugVerified()

	o.Allow(v.Measurements.CodeString())
	o.Allow(v.Measurements.InstanceString())

	require.NoError(t, o.AuthorizeAttestation(v))
}

func TestStaticOracleRevocationWinsOverAllow(t *testing.T) {
	o := NewStaticOracle()
	v := nonDebugVerified()

	o.Allow(v.Measurements.CodeString())
	o.Allow(v.Measurements.InstanceString())
	o.Revoke(v.Measurements.CodeString())

	err := o.AuthorizeAttestation(v)
	require.ErrorIs(t, err, ErrCodeNotAuthorized)
}

func TestStaticOracleCodeCheckedBeforeInstance(t *testing.T) {
	o := NewStaticOracle()
	v := nonDebugVerified()

	// instance authorized but code is not: must fail on code, not instance.
	o.Allow(v.Measurements.InstanceString())

	err := o.AuthorizeAttestation(v)
	require.ErrorIs(t, err, ErrCodeNotAuthorized)
	require.NotErrorIs(t, err, ErrInstanceNotAuthorized)
}

func TestStaticOracleMissingInstanceAuthorization(t *testing.T) {
	o := NewStaticOracle()
	v := nonDebugVerified()

	o.Allow(v.Measurements.CodeString())

	err := o.AuthorizeAttestation(v)
	require.ErrorIs(t, err, ErrInstanceNotAuthorized)
}

func TestStaticOracleDefaultDeny(t *testing.T) {
	o := NewStaticOracle()
	err := o.AuthorizeAttestation(nonDebugVerified())
	require.Error(t, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTestingOracleAuthorizesDebugSelfAndPeer(t *testing.T) {
	self := attestation.NewDummyAttestor()
	o := NewTestingOracle(self, discardLogger())

	require.NoError(t, o.AuthorizeAttestation(debugVerified()))
}

func TestTestingOracleRejectsNonDebugPeer(t *testing.T) {
	self := attestation.NewDummyAttestor()
	o := NewTestingOracle(self, discardLogger())

	err := o.AuthorizeAttestation(nonDebugVerified())
	require.ErrorIs(t, err, ErrCodeNotAuthorized)
}

func TestTestingOracleRejectsWhenSelfNotDebug(t *testing.T) {
	prod := attestation.Measurements{}
	prod.PCR0[0] = 0x99
	self := attestation.NewDummyAttestor().WithMeasurements(prod)
	o := NewTestingOracle(self, discardLogger())

	err := o.AuthorizeAttestation(debugVerified())
	require.ErrorIs(t, err, ErrCodeNotAuthorized)
}

func TestTestingOracleIsAuthorizedMatchesCanonicalStrings(t *testing.T) {
	self := attestation.NewDummyAttestor()
	o := NewTestingOracle(self, discardLogger())

	debug := attestation.Measurements{}
	ok, err := o.IsAuthorized(Code, debug.CodeString())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = o.IsAuthorized(Code, "not-a-real-measurement")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "code", Code.String())
	require.Equal(t, "instance", Instance.String())
}

func TestAuthorizeBothPropagatesOracleError(t *testing.T) {
	o := &erroringOracle{err: errors.New("rpc down")}
	err := o.AuthorizeAttestation(nonDebugVerified())
	require.Error(t, err)
}

// erroringOracle simulates a registry lookup failure, exercising the
// fail-closed path through authorizeBoth.
type erroringOracle struct {
	err error
}

func (o *erroringOracle) IsAuthorized(Kind, string) (bool, error) {
	return false, o.err
}

func (o *erroringOracle) AuthorizeAttestation(v attestation.Verified) error {
	return authorizeBoth(o, v)
}
