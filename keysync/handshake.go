package keysync

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
	"github.com/ruteri/tee-service-provisioning-backend/committee"
	"github.com/ruteri/tee-service-provisioning-backend/metrics"
)

// DefaultReceiveTimeout bounds how long a single handshake receive waits
// for its peer before aborting with ErrTimeout, on streams that support a
// read deadline.
const DefaultReceiveTimeout = 30 * time.Second

// message1 is sent leader -> follower: a fresh challenge the follower
// must bind into its attestation document's nonce field.
type message1 struct {
	LeaderNonce Nonce `json:"leader_nonce"`
}

// message2 is sent follower -> leader: an attestation document binding
// leader_nonce, the follower's ephemeral public key, and a fresh
// follower_nonce the leader must echo back in message 3.
type message2 struct {
	AttestationDoc []byte `json:"attestation_doc"`
}

// message3 is sent leader -> follower: the sealed secret state plus a
// leader attestation document binding follower_nonce and the envelope's
// digest, so the follower can detect substitution of either half.
type message3 struct {
	AttestationDoc []byte `json:"attestation_doc"`
	Envelope       []byte `json:"encrypted_message"`
}

// Stream is the minimal duplex byte stream the handshake drives. Both
// net.Conn and the in-process pipe returned by net.Pipe satisfy it; the
// production deployment uses a vsock connection (see package transport).
type Stream interface {
	io.Reader
	io.Writer
}

// Follower runs the follower side of the handshake over stream and
// returns the leader's decrypted secret state on success. attestor
// produces and parses this enclave's own attestation documents; oracle
// authorizes the leader's measurements once its attestation is verified.
func Follower(stream Stream, attestor attestation.Attestor, oracle committee.Oracle, receiveTimeout time.Duration, log *slog.Logger) (plaintext []byte, err error) {
	log = log.With("role", "follower")
	metrics.HandshakesStarted.WithLabelValues("follower").Inc()
	defer func() {
		if err != nil {
			metrics.HandshakesFailed.WithLabelValues("follower", ErrorKind(err)).Inc()
		} else {
			metrics.HandshakesSucceeded.WithLabelValues("follower").Inc()
		}
	}()

	msg1Bytes, err := ReadMessageTimeout(stream, receiveTimeout)
	if err != nil {
		return nil, err
	}
	var msg1 message1
	if err := json.Unmarshal(msg1Bytes, &msg1); err != nil {
		return nil, fmt.Errorf("%w: decode message 1: %v", ErrTransport, err)
	}
	log.Info("received remote configuration request")

	ephemeral, err := NewEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zeroize()

	followerNonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	followerAtt, err := attestor.Attest(msg1.LeaderNonce[:], ephemeral.PublicKeyBytes(), followerNonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: self-attest: %w", ErrAttestationRejected, err)
	}

	msg2Bytes, err := json.Marshal(message2{AttestationDoc: followerAtt.Raw})
	if err != nil {
		return nil, fmt.Errorf("%w: encode message 2: %v", ErrTransport, err)
	}
	if err := WriteMessage(stream, msg2Bytes); err != nil {
		return nil, err
	}

	log.Info("waiting for attestation and encrypted message")
	msg3Bytes, err := ReadMessageTimeout(stream, receiveTimeout)
	if err != nil {
		return nil, err
	}
	var msg3 message3
	if err := json.Unmarshal(msg3Bytes, &msg3); err != nil {
		return nil, fmt.Errorf("%w: decode message 3: %v", ErrTransport, err)
	}

	leaderDoc, err := attestor.Parse(msg3.AttestationDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: parse leader attestation: %w", ErrAttestationRejected, err)
	}

	envelope := ParseEnvelope(msg3.Envelope)
	envelopeDigest := envelope.Digest()

	leaderVerified, err := attestor.Verify(leaderDoc, followerNonce[:], envelopeDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: verify leader attestation: %w", ErrAttestationRejected, err)
	}
	if len(leaderDoc.PublicKey) != 0 {
		return nil, fmt.Errorf("%w: %w", ErrAttestationRejected, ErrLeaderPublicKeyPresent)
	}

	if err := oracle.AuthorizeAttestation(leaderVerified); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttestationRejected, err)
	}

	plaintext, err = Open(ephemeral.Private, envelope)
	if err != nil {
		return nil, err
	}

	log.Info("key-sync successful")
	return plaintext, nil
}

// Leader runs the leader side of the handshake over stream, transporting
// secretState to the follower once its attestation verifies and the
// oracle authorizes its measurements.
func Leader(stream Stream, attestor attestation.Attestor, oracle committee.Oracle, secretState []byte, receiveTimeout time.Duration, log *slog.Logger) (err error) {
	log = log.With("role", "leader")
	metrics.HandshakesStarted.WithLabelValues("leader").Inc()
	defer func() {
		if err != nil {
			metrics.HandshakesFailed.WithLabelValues("leader", ErrorKind(err)).Inc()
		} else {
			metrics.HandshakesSucceeded.WithLabelValues("leader").Inc()
		}
	}()

	leaderNonce, err := NewNonce()
	if err != nil {
		return err
	}
	msg1Bytes, err := json.Marshal(message1{LeaderNonce: leaderNonce})
	if err != nil {
		return fmt.Errorf("%w: encode message 1: %v", ErrTransport, err)
	}
	if err := WriteMessage(stream, msg1Bytes); err != nil {
		return err
	}

	msg2Bytes, err := ReadMessageTimeout(stream, receiveTimeout)
	if err != nil {
		return err
	}
	var msg2 message2
	if err := json.Unmarshal(msg2Bytes, &msg2); err != nil {
		return fmt.Errorf("%w: decode message 2: %v", ErrTransport, err)
	}

	followerDoc, err := attestor.Parse(msg2.AttestationDoc)
	if err != nil {
		return fmt.Errorf("%w: parse follower attestation: %w", ErrAttestationRejected, err)
	}
	followerVerified, err := attestor.Verify(followerDoc, leaderNonce[:], nil)
	if err != nil {
		return fmt.Errorf("%w: verify follower attestation: %w", ErrAttestationRejected, err)
	}
	followerNonce := followerDoc.UserData

	if err := oracle.AuthorizeAttestation(followerVerified); err != nil {
		return fmt.Errorf("%w: %w", ErrAttestationRejected, err)
	}

	followerPub := followerDoc.PublicKey
	if len(followerPub) < 32 {
		return fmt.Errorf("%w: follower public key too short", ErrAttestationRejected)
	}

	envelope, err := Seal(followerPub, secretState)
	if err != nil {
		return err
	}
	envelopeDigest := envelope.Digest()

	leaderAtt, err := attestor.Attest(followerNonce, nil, envelopeDigest)
	if err != nil {
		return fmt.Errorf("%w: self-attest: %w", ErrAttestationRejected, err)
	}

	msg3Bytes, err := json.Marshal(message3{AttestationDoc: leaderAtt.Raw, Envelope: envelope.Bytes()})
	if err != nil {
		return fmt.Errorf("%w: encode message 3: %v", ErrTransport, err)
	}
	if err := WriteMessage(stream, msg3Bytes); err != nil {
		return err
	}

	log.Info("key-sync successful")
	return nil
}
