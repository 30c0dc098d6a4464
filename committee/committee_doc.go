// Package committee answers "is this enclave allowed into the pool?" from
// an on-chain governance source: a Gnosis Safe M-of-N multisig that signs
// off on canonical measurement strings, and can revoke a prior approval by
// signing the same string with a "REVOKE: " prefix.
package committee
