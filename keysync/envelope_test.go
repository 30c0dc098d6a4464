package keysync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)

	plaintext := []byte("the pool's shared secret state")
	env, err := Seal(kp.PublicKeyBytes(), plaintext)
	require.NoError(t, err)

	got, err := Open(kp.Private, env)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEnvelopeWrongKeyFailsToOpen(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)
	other, err := NewEphemeralKeyPair()
	require.NoError(t, err)

	env, err := Seal(kp.PublicKeyBytes(), []byte("secret"))
	require.NoError(t, err)

	_, err = Open(other.Private, env)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestEnvelopeDigestIsDeterministicForSameBytes(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)
	env, err := Seal(kp.PublicKeyBytes(), []byte("secret"))
	require.NoError(t, err)

	d1 := env.Digest()
	d2 := ParseEnvelope(env.Bytes()).Digest()
	require.Equal(t, d1, d2)
}

func TestEnvelopeEachSealUsesFreshEphemeralKey(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)

	env1, err := Seal(kp.PublicKeyBytes(), []byte("secret"))
	require.NoError(t, err)
	env2, err := Seal(kp.PublicKeyBytes(), []byte("secret"))
	require.NoError(t, err)

	require.NotEqual(t, env1.Bytes(), env2.Bytes())
}

func TestEnvelopeRejectsUnknownAlgorithmID(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)
	env, err := Seal(kp.PublicKeyBytes(), []byte("secret"))
	require.NoError(t, err)

	corrupted := append([]byte{}, env.Bytes()...)
	corrupted[0] = 0xFF

	_, err = Open(kp.Private, ParseEnvelope(corrupted))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCrypto)
}
