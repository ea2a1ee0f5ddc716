// Package secret seals small credentials before they are stored in the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrNoKey     = errors.New("secrets key is not configured")
	ErrMalformed = errors.New("sealed value is malformed")
	ErrOpen      = errors.New("sealed value cannot be opened with this key")
)

// Box seals and opens values with a key derived from a passphrase.
type Box struct {
	key *[32]byte
}

// NewBox derives the box key from passphrase; an empty passphrase yields a
// box whose operations fail with ErrNoKey.
func NewBox(passphrase string) *Box {
	if passphrase == "" {
		return &Box{}
	}
	key := sha256.Sum256([]byte(passphrase))
	return &Box{key: &key}
}

// Seal returns nonce||ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil || b.key == nil {
		return nil, ErrNoKey
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, b.key), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if b == nil || b.key == nil {
		return nil, ErrNoKey
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, b.key)
	if !ok {
		return nil, ErrOpen
	}
	return plaintext, nil
}
