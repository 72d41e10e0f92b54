package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	// KeySize is the size in bits of generated RSA keys.
	KeySize = 2048

	// minRSAKeySize is the smallest peer key accepted; 2048 is a sane floor that stops a
	// weak key from being used by accident.
	minRSAKeySize = 2048

	// MaxPublicKeySize bounds the public key frame.
	MaxPublicKeySize = 16 * 1024
)

// KeyPair is an RSA key pair used for one side of the handshake.
type KeyPair struct {
	private *rsa.PrivateKey
	pemData []byte
}

// GenerateKeyPair creates a new 2048-bit RSA key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return NewKeyPair(key)
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	if key == nil {
		return nil, fmt.Errorf("RSA private key cannot be nil")
	}
	if bits := key.N.BitLen(); bits < minRSAKeySize {
		return nil, fmt.Errorf("RSA key size must be at least %d bits, got %d bits", minRSAKeySize, bits)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &KeyPair{
		private: key,
		pemData: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}),
	}, nil
}

// Public returns the public half of the pair.
func (kp *KeyPair) Public() *rsa.PublicKey {
	return &kp.private.PublicKey
}

// PublicKeyPEM returns the public key as a PKIX "PUBLIC KEY" PEM block.
func (kp *KeyPair) PublicKeyPEM() []byte {
	out := make([]byte, len(kp.pemData))
	copy(out, kp.pemData)
	return out
}

// UnwrapSessionKey decrypts a session key wrapped with WrapSessionKey.
func (kp *KeyPair) UnwrapSessionKey(ciphertext []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), nil, kp.private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap session key: %w", err)
	}
	return key, nil
}

// WrapSessionKey encrypts key for the holder of pub with RSA-OAEP and SHA-256.
func WrapSessionKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap session key: %w", err)
	}
	return ciphertext, nil
}

// ParsePublicKey parses an RSA public key sent by a peer. PEM blocks of type "PUBLIC KEY"
// or "RSA PUBLIC KEY" are accepted, as is bare PKIX DER. Keys that are not RSA or are
// smaller than 2048 bits are rejected.
func ParsePublicKey(blob []byte) (*rsa.PublicKey, error) {
	var (
		pub any
		err error
	)

	block, _ := pem.Decode(blob)
	switch {
	case block == nil:
		// Not PEM, try DER
		pub, err = x509.ParsePKIXPublicKey(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode public key: neither PEM nor PKIX DER: %w", err)
		}
	case block.Type == "PUBLIC KEY":
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
	case block.Type == "RSA PUBLIC KEY":
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 RSA public key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s (expected PUBLIC KEY or RSA PUBLIC KEY)", block.Type)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key, got %T", pub)
	}
	if bits := rsaKey.N.BitLen(); bits < minRSAKeySize {
		return nil, fmt.Errorf("RSA key size must be at least %d bits, got %d bits", minRSAKeySize, bits)
	}
	return rsaKey, nil
}
