package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDiskKeyDeterministic(t *testing.T) {
	csr := []byte("dummy-csr-bytes")
	secret := []byte("pool-secret")

	key1 := DeriveDiskKey(csr, secret)
	key2 := DeriveDiskKey(csr, secret)

	require.Equal(t, key1, key2)
	require.Len(t, key1, 32)
}

func TestDeriveDiskKeyDiffersBySecret(t *testing.T) {
	csr := []byte("dummy-csr-bytes")

	key1 := DeriveDiskKey(csr, []byte("secret-a"))
	key2 := DeriveDiskKey(csr, []byte("secret-b"))

	require.NotEqual(t, key1, key2)
}

func TestDeriveDiskKeyDiffersByCSR(t *testing.T) {
	secret := []byte("pool-secret")

	key1 := DeriveDiskKey([]byte("csr-one"), secret)
	key2 := DeriveDiskKey([]byte("csr-two"), secret)

	require.NotEqual(t, key1, key2)
}
