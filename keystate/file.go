package keystate

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/tee-service-provisioning-backend/cryptoutils"
)

// FileStore persists secret state to a single file on the local
// filesystem, encrypted at rest with a key derived from the enclave's CSR
// and a boot secret via cryptoutils.DeriveDiskKey, applied here to one
// flat file instead of a block device.
type FileStore struct {
	path string
	key  []byte
	log  *slog.Logger
}

// NewFileStore derives a disk key from csr and secret and returns a
// FileStore backed by the file at path. The parent directory is created
// if it does not already exist.
func NewFileStore(path string, csr, secret []byte, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", ErrNoState, err)
	}
	key := []byte(cryptoutils.DeriveDiskKey(csr, secret))
	return &FileStore{path: path, key: key, log: log}, nil
}

func (s *FileStore) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (s *FileStore) Export(ctx context.Context) ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("state file truncated")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt state file: %w", err)
	}

	s.log.Debug("exported secret state", slog.String("path", s.path), slog.Int("size", len(plaintext)))
	return plaintext, nil
}

func (s *FileStore) Install(ctx context.Context, state []byte) error {
	if _, err := os.Stat(s.path); err == nil {
		return ErrAlreadyInstalled
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat state file: %w", err)
	}

	aead, err := s.aead()
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, state, nil)
	blob := append(nonce, ciphertext...)

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return ErrAlreadyInstalled
	}
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	_, err = f.Write(blob)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	s.log.Debug("installed secret state", slog.String("path", s.path), slog.Int("size", len(state)))
	return nil
}
