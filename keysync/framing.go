package keysync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// MaxFrameSize bounds a single length-prefixed frame. The reference
// implementation allows up to 64MiB; this pool's envelopes and
// attestation documents are orders of magnitude smaller, so the limit is
// set tighter to bound an unauthenticated peer's ability to make a
// handshake allocate memory before any attestation has been checked.
const MaxFrameSize = 1 << 20 // 1 MiB

// WriteMessage writes msg to w as a 4-byte big-endian length prefix
// followed by msg's bytes.
func WriteMessage(w io.Writer, msg []byte) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(msg)))
	if _, err := w.Write(lenBytes[:]); err != nil {
		return fmt.Errorf("%w: write length prefix: %v", ErrTransport, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrTransport, err)
	}
	return nil
}

// ReadMessage reads a single length-prefixed frame from r, rejecting any
// frame declaring a length larger than MaxFrameSize before allocating a
// buffer for it.
func ReadMessage(r io.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, fmt.Errorf("%w: read length prefix: %w", ErrTransport, err)
	}
	length := binary.BigEndian.Uint32(lenBytes[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: read frame: %w", ErrTransport, err)
	}
	return buf, nil
}

// deadlineSetter is satisfied by net.Conn (including net.Pipe's endpoints)
// and the vsock connections this pool's drivers use in production. A
// Stream that doesn't implement it (such as io.Pipe's endpoints) simply
// never times out a receive; the caller bears no penalty for testing
// against one.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// ReadMessageTimeout reads a single frame like ReadMessage, but first
// arms a read deadline on stream if it supports one and timeout is
// positive. A receive that blocks past the deadline aborts with
// ErrTimeout rather than hanging indefinitely on an unresponsive peer.
func ReadMessageTimeout(stream Stream, timeout time.Duration) ([]byte, error) {
	if ds, ok := stream.(deadlineSetter); ok && timeout > 0 {
		if err := ds.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("%w: set read deadline: %v", ErrTransport, err)
		}
	}

	buf, err := ReadMessage(stream)
	if err == nil {
		return buf, nil
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return nil, err
}
