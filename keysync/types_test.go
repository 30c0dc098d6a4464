package keysync

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEphemeralKeyPairZeroize(t *testing.T) {
	kp, err := NewEphemeralKeyPair()
	require.NoError(t, err)
	require.NotZero(t, kp.Private.D.Sign())

	kp.Zeroize()

	require.Equal(t, 0, kp.Private.D.Cmp(big.NewInt(0)))
}

func TestEphemeralKeyPairZeroizeNilSafe(t *testing.T) {
	require.NotPanics(t, func() {
		EphemeralKeyPair{}.Zeroize()
	})
}
