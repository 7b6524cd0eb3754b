package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sys/cpu"
)

// Primitives supplies randomness, the AEAD cipher and the key-derivation
// function. A missing member is a hard failure, never a downgrade.
type Primitives struct {
	Rand      io.Reader
	NewAEAD   func(key []byte) (cipher.AEAD, error)
	DeriveKey func(secret, salt []byte) []byte
}

// DefaultPrimitives wires crypto/rand, AES-256-GCM and PBKDF2-HMAC-SHA256.
func DefaultPrimitives() Primitives {
	return Primitives{
		Rand:      rand.Reader,
		NewAEAD:   newGCM,
		DeriveKey: deriveKey,
	}
}

func (p Primitives) check() error {
	switch {
	case p.Rand == nil:
		return fmt.Errorf("%w: no random source", ErrCryptoUnavailable)
	case p.NewAEAD == nil:
		return fmt.Errorf("%w: no AEAD cipher", ErrCryptoUnavailable)
	case p.DeriveKey == nil:
		return fmt.Errorf("%w: no key derivation function", ErrCryptoUnavailable)
	}
	return nil
}

func (p Primitives) random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(p.Rand, b); err != nil {
		return nil, fmt.Errorf("%w: reading random bytes: %w", ErrCryptoUnavailable, err)
	}
	return b, nil
}

// aead builds the cipher and refuses any whose nonce or tag size would
// change the persisted layout.
func (p Primitives) aead(key []byte) (cipher.AEAD, error) {
	a, err := p.NewAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCryptoUnavailable, err)
	}
	if a.NonceSize() != NonceSize || a.Overhead() != TagSize {
		return nil, fmt.Errorf("%w: AEAD nonce %d/tag %d, want %d/%d",
			ErrCryptoUnavailable, a.NonceSize(), a.Overhead(), NonceSize, TagSize)
	}
	return a, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func deriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, Iterations, KeySize, sha256.New)
}

// HardwareAES reports whether the CPU accelerates AES.
func HardwareAES() bool {
	return cpu.X86.HasAES || cpu.ARM64.HasAES
}
