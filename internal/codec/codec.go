package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
)

const (
	// KeySize is the size of the AES-256 session key in bytes.
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes. NB: Reusing a nonce with the same
	// key breaks AES-256 GCM completely, so every call to Seal draws a new one.
	NonceSize = 12

	// TagSize is the size of the GCM authentication tag in bytes.
	TagSize = 16

	// Overhead is the number of bytes a frame adds on top of its plaintext.
	Overhead = NonceSize + TagSize
)

var (
	// ErrTruncatedFrame is returned by Open when the frame cannot even hold a nonce and a tag.
	ErrTruncatedFrame = errors.New("frame is shorter than nonce and tag")

	// ErrAuthentication is returned by Open when the tag does not match.
	ErrAuthentication = errors.New("frame failed authentication")

	// ErrDestroyed is returned when a Codec is used after Destroy.
	ErrDestroyed = errors.New("session key has been destroyed")
)

// Codec seals and opens frames under one session key. It is safe for concurrent use.
type Codec struct {
	mu   sync.RWMutex
	key  []byte
	aead cipher.AEAD
}

// New creates a Codec for the provided 32-byte session key. The key is copied, so the
// caller may wipe its own slice afterwards.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d bytes", KeySize, len(key))
	}

	k := make([]byte, KeySize)
	copy(k, key)

	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return &Codec{key: k, aead: gcm}, nil
}

// Seal encrypts plaintext into a self-contained frame: nonce ‖ ciphertext ‖ tag.
func (c *Codec) Seal(plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrDestroyed
	}

	frame := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(frame); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(frame, frame[:NonceSize], plaintext, nil), nil
}

// Open authenticates and decrypts a frame produced by Seal. It fails closed: on any error
// no plaintext is returned.
func (c *Codec) Open(frame []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrDestroyed
	}

	if len(frame) < Overhead {
		return nil, ErrTruncatedFrame
	}

	nonce := frame[:NonceSize]
	sealed := frame[NonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

// Destroy wipes the session key. Any later Seal or Open returns ErrDestroyed.
func (c *Codec) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.key {
		c.key[i] = 0
	}
	c.key = nil
	c.aead = nil
}

// GenerateKey returns a fresh random session key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return key, nil
}
