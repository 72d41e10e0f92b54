// Package codec implements the authenticated encryption used for every frame sent on a
// mediarelay connection once the handshake has completed.
//
// A frame is laid out as nonce ‖ ciphertext ‖ tag, where the nonce is 12 bytes and the
// tag 16 bytes. This implementation uses AES-256-GCM with a fresh random nonce per frame;
// the key is the 32-byte session key agreed during the handshake and is never reused
// across connections.
package codec
