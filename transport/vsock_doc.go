// Package transport wires the key-sync handshake to a vsock connection,
// the channel a Nitro enclave uses to talk to its parent instance or, via
// a forwarding proxy on the host, to another enclave's parent instance.
package transport
