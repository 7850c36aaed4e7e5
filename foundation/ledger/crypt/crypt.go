// Package crypt provides symmetric encryption support for protecting any
// issuance records the identity collaborator chooses to persist. The chain
// itself never stores this material.
package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required byte length for a symmetric key.
const KeySize = chacha20poly1305.KeySize

// ErrInvalidKeyFormat is returned when a key doesn't match the scheme's
// required size.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// =============================================================================

// GenerateKey produces a new random symmetric key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	return key, nil
}

// Encrypt seals the plaintext with the specified key. The nonce is prepended
// to the returned ciphertext.
func Encrypt(key []byte, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the specified key.
func Decrypt(key []byte, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}

	return plaintext, nil
}

// =============================================================================

// newAEAD validates the key size and constructs the cipher.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyFormat
	}

	return chacha20poly1305.New(key)
}
