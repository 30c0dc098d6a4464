package keystate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryStoreExportBeforeInstall(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Export(context.Background())
	require.ErrorIs(t, err, ErrNoState)
}

func TestMemoryStoreInstallThenExport(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Install(context.Background(), []byte("state v1")))

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("state v1"), got)
}

func TestMemoryStoreSecondInstallFails(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Install(context.Background(), []byte("v1")))
	err := s.Install(context.Background(), []byte("v2"))
	require.ErrorIs(t, err, ErrAlreadyInstalled)

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
}

func TestMemoryStoreSeedBypassesInstallGuard(t *testing.T) {
	s := NewMemoryStore()
	s.Seed([]byte("bootstrap"))
	s.Seed([]byte("bootstrap v2"))

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("bootstrap v2"), got)
}

func TestMemoryStoreSeed(t *testing.T) {
	s := NewMemoryStore()
	s.Seed([]byte("bootstrap"))

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("bootstrap"), got)
}

func TestFileStoreExportBeforeInstall(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "state.bin"), []byte("csr-bytes"), []byte("boot-secret"), discardLogger())
	require.NoError(t, err)

	_, err = s.Export(context.Background())
	require.ErrorIs(t, err, ErrNoState)
}

func TestFileStoreInstallThenExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "nested", "state.bin"), []byte("csr-bytes"), []byte("boot-secret"), discardLogger())
	require.NoError(t, err)

	plaintext := []byte("the enclave's secret configuration")
	require.NoError(t, s.Install(context.Background(), plaintext))

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestFileStoreSecondInstallFails(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "state.bin"), []byte("csr-bytes"), []byte("boot-secret"), discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Install(context.Background(), []byte("v1")))
	err = s.Install(context.Background(), []byte("v2"))
	require.ErrorIs(t, err, ErrAlreadyInstalled)

	got, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
}

func TestFileStoreDecryptFailsWithDifferentSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.bin")
	s1, err := NewFileStore(path, []byte("csr-bytes"), []byte("boot-secret-a"), discardLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Install(context.Background(), []byte("secret")))

	s2, err := NewFileStore(path, []byte("csr-bytes"), []byte("boot-secret-b"), discardLogger())
	require.NoError(t, err)

	_, err = s2.Export(context.Background())
	require.Error(t, err)
}
