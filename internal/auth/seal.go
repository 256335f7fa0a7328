package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedTokenCorrupt is returned when a sealed token fails authentication.
var ErrSealedTokenCorrupt = errors.New("sealed token corrupt")

// Sealer encrypts rental tokens at rest with XChaCha20-Poly1305 so they can be
// listed back to their owner without storing plaintext.
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts plaintext. The token digest is bound as associated data so a
// sealed blob cannot be moved to another row.
func (s *Sealer) Seal(plaintext, digest string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), []byte(digest)), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte, digest string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrSealedTokenCorrupt
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(digest))
	if err != nil {
		return "", ErrSealedTokenCorrupt
	}
	return string(plaintext), nil
}
