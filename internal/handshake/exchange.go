package handshake

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/logs"
)

// Server runs the server side of the handshake with the server's long-lived key pair and
// returns the codec for the established session. Every error is a *protocol.Error of kind
// KindHandshake; nothing is sent to the peer after a failure.
func Server(ctx context.Context, f *framing.Framer, kp *KeyPair) (*codec.Codec, error) {
	log := klog.FromContext(ctx)

	blob, err := f.ReadFrame(MaxPublicKeySize)
	if err != nil {
		return nil, protocol.HandshakeError("failed to read client public key", err)
	}
	clientKey, err := ParsePublicKey(blob)
	if err != nil {
		return nil, protocol.HandshakeError("rejected client public key", err)
	}
	if log.V(logs.Debug).Enabled() {
		if fp, err := Fingerprint(clientKey); err == nil {
			log.V(logs.Debug).Info("Received client public key", "fingerprint", fp)
		}
	}

	if err := f.WriteFrame(kp.PublicKeyPEM()); err != nil {
		return nil, protocol.HandshakeError("failed to send server public key", err)
	}

	wrapped, err := f.ReadFrame(kp.private.Size())
	if err != nil {
		return nil, protocol.HandshakeError("failed to read wrapped session key", err)
	}
	key, err := kp.UnwrapSessionKey(wrapped)
	if err != nil {
		return nil, protocol.HandshakeError("rejected wrapped session key", err)
	}
	defer clear(key)

	c, err := codec.New(key)
	if err != nil {
		return nil, protocol.HandshakeError("rejected session key", err)
	}
	return c, nil
}

// Client runs the client side of the handshake with a freshly generated key pair and
// returns the codec for the established session.
func Client(ctx context.Context, f *framing.Framer) (*codec.Codec, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, protocol.HandshakeError("failed to generate client key pair", err)
	}
	return ClientWithKeyPair(ctx, f, kp)
}

// ClientWithKeyPair is Client with a caller supplied key pair.
func ClientWithKeyPair(ctx context.Context, f *framing.Framer, kp *KeyPair) (*codec.Codec, error) {
	log := klog.FromContext(ctx)

	if err := f.WriteFrame(kp.PublicKeyPEM()); err != nil {
		return nil, protocol.HandshakeError("failed to send client public key", err)
	}

	blob, err := f.ReadFrame(MaxPublicKeySize)
	if err != nil {
		return nil, protocol.HandshakeError("failed to read server public key", err)
	}
	serverKey, err := ParsePublicKey(blob)
	if err != nil {
		return nil, protocol.HandshakeError("rejected server public key", err)
	}
	if log.V(logs.Debug).Enabled() {
		if fp, err := Fingerprint(serverKey); err == nil {
			log.V(logs.Debug).Info("Received server public key", "fingerprint", fp)
		}
	}

	key, err := codec.GenerateKey()
	if err != nil {
		return nil, protocol.HandshakeError("failed to generate session key", err)
	}
	defer clear(key)

	wrapped, err := WrapSessionKey(serverKey, key)
	if err != nil {
		return nil, protocol.HandshakeError("failed to wrap session key", err)
	}
	if err := f.WriteFrame(wrapped); err != nil {
		return nil, protocol.HandshakeError("failed to send wrapped session key", err)
	}

	c, err := codec.New(key)
	if err != nil {
		return nil, protocol.HandshakeError("failed to create session codec", err)
	}
	return c, nil
}
