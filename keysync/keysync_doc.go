// Package keysync implements the key-synchronization handshake: a leader
// enclave transports its in-memory secret state to a newly admitted
// follower enclave, gated on mutual hardware attestation and committee
// authorization. The wire protocol is two attestation-bound round trips
// over a length-prefixed duplex byte stream; see Leader and Follower.
package keysync
