package transport

import (
	"fmt"

	"github.com/mdlayher/vsock"
)

// DialLeader opens a vsock connection to a listening leader at cid:port,
// the client side of a follower joining an existing pool member.
func DialLeader(cid, port uint32) (*vsock.Conn, error) {
	conn, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial vsock cid=%d port=%d: %w", cid, port, err)
	}
	return conn, nil
}

// ListenFollowers opens a vsock listener on port, accepting connections
// from any CID, for a leader waiting on followers to request a
// key-sync handshake.
func ListenFollowers(port uint32) (*vsock.Listener, error) {
	l, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: listen vsock port=%d: %w", port, err)
	}
	return l, nil
}
