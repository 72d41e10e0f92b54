// Package handshake establishes the per-connection session key.
//
// The client sends its public key, the server answers with its own, and the client then
// sends a fresh 256-bit session key wrapped with RSA-OAEP (SHA-256 for both the hash and
// MGF1) under the server's key. Public keys travel as length-prefixed PEM blocks.
//
// The exchanged keys are not authenticated. The handshake protects against passive
// observers only.
package handshake
