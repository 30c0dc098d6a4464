package keystate

import (
	"context"
	"errors"
)

// ErrNoState is returned by Export when the store has never been
// installed with anything, e.g. on a freshly booted pool member that has
// not yet run a key-sync handshake as either leader or follower.
var ErrNoState = errors.New("keystate: no secret state installed")

// ErrAlreadyInstalled is returned by Install when the store already
// holds state. The Secret State Store must serialize installs such that
// exactly one can succeed per enclave lifetime; a second handshake that
// reaches the install step (e.g. a replayed or duplicated session) must
// not silently clobber state already in use.
var ErrAlreadyInstalled = errors.New("keystate: secret state already installed")

// Store holds one enclave's live secret state: the configuration and key
// material the key-sync handshake moves between pool members.
type Store interface {
	// Export returns the currently installed secret state, for use as a
	// handshake leader. Returns ErrNoState if nothing has been installed.
	Export(ctx context.Context) ([]byte, error)

	// Install records state as the currently installed secret state, for
	// use by a handshake follower once a transfer completes successfully.
	// Returns ErrAlreadyInstalled if state has already been installed.
	Install(ctx context.Context, state []byte) error
}
