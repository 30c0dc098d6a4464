package keysync

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
	"github.com/ruteri/tee-service-provisioning-backend/committee"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandshakeHappyPath(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	attestor := attestation.NewDummyAttestor()
	oracle := committee.NewTestingOracle(attestor, discardLogger())
	secret := []byte{0xaa, 0xbb, 0xcc}

	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- Leader(leaderConn, attestor, oracle, secret, DefaultReceiveTimeout, discardLogger())
	}()

	got, err := Follower(followerConn, attestor, oracle, DefaultReceiveTimeout, discardLogger())
	require.NoError(t, err)
	require.Equal(t, secret, got)
	require.NoError(t, <-leaderErr)
}

func TestHandshakeRejectsUnauthorizedCodeMeasurement(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	prod := attestation.Measurements{}
	prod.PCR0[0] = 0x42
	attestor := attestation.NewDummyAttestor().WithMeasurements(prod)
	oracle := committee.NewStaticOracle() // nothing allowed
	secret := []byte{0x01}

	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- Leader(leaderConn, attestor, oracle, secret, DefaultReceiveTimeout, discardLogger())
	}()

	// The leader rejects the follower's code measurement and sends no
	// message 3, so the follower aborts on its receive timeout.
	_, err := Follower(followerConn, attestor, oracle, DefaultReceiveTimeout, discardLogger())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, <-leaderErr, ErrAttestationRejected)
}

func TestHandshakeRevokedMeasurementFailsClosed(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	m := attestation.Measurements{}
	m.PCR0[0] = 0x07
	attestor := attestation.NewDummyAttestor().WithMeasurements(m)
	oracle := committee.NewStaticOracle()
	oracle.Allow(m.CodeString())
	oracle.Allow(m.InstanceString())
	oracle.Revoke(m.CodeString())
	secret := []byte{0x01}

	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- Leader(leaderConn, attestor, oracle, secret, DefaultReceiveTimeout, discardLogger())
	}()

	_, err := Follower(followerConn, attestor, oracle, DefaultReceiveTimeout, discardLogger())
	require.Error(t, err)
	<-leaderErr
}

func TestHandshakeOracleUnavailableFailsClosed(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	attestor := attestation.NewDummyAttestor()
	oracle := &failingOracle{}
	secret := []byte{0x01}

	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- Leader(leaderConn, attestor, oracle, secret, DefaultReceiveTimeout, discardLogger())
	}()

	_, err := Follower(followerConn, attestor, oracle, DefaultReceiveTimeout, discardLogger())
	require.Error(t, err)
	<-leaderErr
}

type failingOracle struct{}

func (failingOracle) IsAuthorized(committee.Kind, string) (bool, error) {
	return false, committee.ErrOracleUnavailable
}

func (f failingOracle) AuthorizeAttestation(v attestation.Verified) error {
	_, err := f.IsAuthorized(committee.Code, v.Measurements.CodeString())
	return err
}

func TestHandshakeTamperedEnvelopeDetected(t *testing.T) {
	// A leader attestation binds the envelope digest; should attestation
	// checks pass anyway, opening an envelope whose ciphertext was altered
	// in transit must still fail AEAD authentication in Open, the step
	// Follower runs last.
	ephemeral, err := NewEphemeralKeyPair()
	require.NoError(t, err)

	env, err := Seal(ephemeral.PublicKeyBytes(), []byte("top secret"))
	require.NoError(t, err)

	tampered := append([]byte{}, env.Bytes()...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Open(ephemeral.Private, ParseEnvelope(tampered))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestFramingRejectsOversizedFrame(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], MaxFrameSize+1)
		_, _ = w.Write(lenBytes[:])
		w.Close()
	}()

	_, err := ReadMessage(r)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFramingRoundTrip(t *testing.T) {
	r, w := io.Pipe()
	payload := []byte("hello frame")
	go func() {
		_ = WriteMessage(w, payload)
		w.Close()
	}()
	got, err := ReadMessage(r)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestHandshakeDeadlineIsRespected(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()
	require.NoError(t, followerConn.SetDeadline(time.Now().Add(100*time.Millisecond)))

	_, err := ReadMessage(followerConn)
	require.Error(t, err)
}

func TestReadMessageTimeoutAbortsOnHungPeer(t *testing.T) {
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	_, err := ReadMessageTimeout(followerConn, 50*time.Millisecond)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrTransport)
}

func TestFollowerTimesOutWaitingOnLeader(t *testing.T) {
	// Scenario: the leader never sends message 1. The follower must
	// abort with ErrTimeout rather than block forever.
	leaderConn, followerConn := net.Pipe()
	defer leaderConn.Close()
	defer followerConn.Close()

	attestor := attestation.NewDummyAttestor()
	oracle := committee.NewTestingOracle(attestor, discardLogger())

	_, err := Follower(followerConn, attestor, oracle, 50*time.Millisecond, discardLogger())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTimeout)
}
