// Package crypto is the vault's encryption engine.
//
// Every payload is sealed with AES-256-GCM under a key derived by
// PBKDF2-HMAC-SHA256 from a secret and a fresh per-call salt. The secret is
// either supplied by the caller or the installation's master secret, which
// is generated once and persisted through the selected backend.
//
// The persisted layout (base64 ciphertext, salt, iv and tag, and the
// constants below) is shared with existing installations and must not change.
package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/benaskins/credvault/internal/backend"
)

const (
	// KeySize is the size of derived AES-256 keys in bytes.
	KeySize = 32

	// SaltSize is the size of per-call PBKDF2 salts in bytes.
	SaltSize = 32

	// NonceSize is the size of GCM nonces in bytes.
	NonceSize = 12

	// TagSize is the size of GCM authentication tags in bytes.
	TagSize = 16

	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000

	// MasterSecretSize is the number of random bytes in the master secret.
	MasterSecretSize = 32

	masterSecretName = "master_key"
	securePrefix     = "secure_"
)

var (
	// ErrCryptoUnavailable is returned when a required primitive is missing.
	ErrCryptoUnavailable = errors.New("crypto primitives unavailable")

	// ErrDecryptionFailed is returned for tampered, corrupted or wrong-key input.
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")

	// ErrInvalidKeySize is returned when a derived key has an incorrect size.
	ErrInvalidKeySize = errors.New("key must be 32 bytes")

	// ErrMasterSecretCorrupt is returned when the persisted master secret is unreadable.
	ErrMasterSecretCorrupt = errors.New("master secret is corrupt")

	// ErrEmptyPlaintext is returned when asked to encrypt nothing. Decrypt
	// never returns empty plaintext, so such a payload could not be read back.
	ErrEmptyPlaintext = errors.New("plaintext is empty")
)

// Sealed is an encrypted payload. All fields are standard base64.
type Sealed struct {
	Ciphertext string `json:"ciphertext"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
}

// Complete reports whether every field is populated.
func (s Sealed) Complete() bool {
	return s.Ciphertext != "" && s.Salt != "" && s.IV != "" && s.Tag != ""
}

// Engine owns the master secret and performs all payload cryptography.
type Engine struct {
	mu     sync.Mutex
	prims  Primitives
	store  backend.Backend
	master *memguard.Enclave
	logger *slog.Logger
}

// NewEngine creates an engine that keeps its master secret in store.
func NewEngine(store backend.Backend, prims Primitives) *Engine {
	return &Engine{
		prims:  prims,
		store:  store,
		logger: slog.With("component", "crypto"),
	}
}

// Initialize loads the master secret, generating and persisting one if the
// backend has none. It is safe to call repeatedly and concurrently.
func (e *Engine) Initialize() error {
	if err := e.prims.check(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master != nil {
		return nil
	}

	stored, err := e.store.Get(masterSecretName)
	switch {
	case err == nil:
		if raw, decErr := hex.DecodeString(stored); decErr != nil || len(raw) != MasterSecretSize {
			return ErrMasterSecretCorrupt
		}
	case errors.Is(err, backend.ErrNotFound):
		raw, rErr := e.prims.random(MasterSecretSize)
		if rErr != nil {
			return rErr
		}
		stored = hex.EncodeToString(raw)
		memguard.WipeBytes(raw)
		if err := e.store.Put(masterSecretName, stored); err != nil {
			return fmt.Errorf("persisting master secret: %w", err)
		}
		e.logger.Info("generated master secret", "backend", e.store.Kind())
	default:
		// Never regenerate over a secret we could not read.
		return fmt.Errorf("loading master secret: %w", err)
	}

	// The hex text, not the decoded bytes, is the derivation secret.
	e.master = memguard.NewEnclave([]byte(stored))
	return nil
}

// Initialized reports whether the master secret is loaded.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master != nil
}

// Cleanup drops the in-memory master secret. The next operation that needs
// it initializes again.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.master = nil
	e.logger.Debug("master secret purged")
}

// withSecret calls fn with key, or with the master secret when key is empty.
func (e *Engine) withSecret(key []byte, fn func(secret []byte) error) error {
	if len(key) > 0 {
		return fn(key)
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	e.mu.Lock()
	enclave := e.master
	e.mu.Unlock()
	if enclave == nil {
		return fmt.Errorf("%w: master secret purged", ErrCryptoUnavailable)
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening master secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (e *Engine) derive(key, salt []byte) ([]byte, error) {
	var derived []byte
	err := e.withSecret(key, func(secret []byte) error {
		derived = e.prims.DeriveKey(secret, salt)
		return nil
	})
	return derived, err
}

// Encrypt seals plaintext under key, or under the master secret when key is
// empty. Every call uses a fresh salt and nonce.
func (e *Engine) Encrypt(plaintext, key []byte) (Sealed, error) {
	if err := e.prims.check(); err != nil {
		return Sealed{}, err
	}
	if len(plaintext) == 0 {
		return Sealed{}, ErrEmptyPlaintext
	}

	salt, err := e.prims.random(SaltSize)
	if err != nil {
		return Sealed{}, err
	}
	nonce, err := e.prims.random(NonceSize)
	if err != nil {
		return Sealed{}, err
	}

	derived, err := e.derive(key, salt)
	if err != nil {
		return Sealed{}, err
	}
	defer memguard.WipeBytes(derived)

	aead, err := e.prims.aead(derived)
	if err != nil {
		return Sealed{}, err
	}

	out := aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - TagSize
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(out[:split]),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(out[split:]),
	}, nil
}

// Decrypt opens a sealed payload. Nothing is returned unless the tag verifies.
func (e *Engine) Decrypt(s Sealed, key []byte) ([]byte, error) {
	if err := e.prims.check(); err != nil {
		return nil, err
	}

	ciphertext, salt, nonce, tag, err := decodeSealed(s)
	if err != nil {
		return nil, err
	}

	derived, err := e.derive(key, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(derived)

	aead, err := e.prims.aead(derived)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil || len(plaintext) == 0 {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func decodeSealed(s Sealed) (ciphertext, salt, nonce, tag []byte, err error) {
	if !s.Complete() {
		return nil, nil, nil, nil, fmt.Errorf("%w: incomplete payload", ErrDecryptionFailed)
	}
	fields := []struct {
		in   string
		out  *[]byte
		size int
	}{
		{s.Ciphertext, &ciphertext, -1},
		{s.Salt, &salt, SaltSize},
		{s.IV, &nonce, NonceSize},
		{s.Tag, &tag, TagSize},
	}
	for _, f := range fields {
		b, decErr := base64.StdEncoding.DecodeString(f.in)
		if decErr != nil || (f.size > 0 && len(b) != f.size) {
			return nil, nil, nil, nil, fmt.Errorf("%w: malformed payload", ErrDecryptionFailed)
		}
		*f.out = b
	}
	return ciphertext, salt, nonce, tag, nil
}

// SecureStore encrypts value under the master secret and stores it as an
// auxiliary named secret, outside the provider credential namespace.
func (e *Engine) SecureStore(name, value string) error {
	sealed, err := e.Encrypt([]byte(value), nil)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", name, err)
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	if err := e.store.Put(securePrefix+name, string(data)); err != nil {
		return err
	}
	e.logger.Info("stored secure value", "name", name)
	return nil
}

// SecureRetrieve returns an auxiliary secret stored by SecureStore. It
// returns backend.ErrNotFound when absent and ErrDecryptionFailed when the
// stored payload does not verify.
func (e *Engine) SecureRetrieve(name string) (string, error) {
	raw, err := e.store.Get(securePrefix + name)
	if err != nil {
		return "", err
	}
	var sealed Sealed
	if err := json.Unmarshal([]byte(raw), &sealed); err != nil {
		return "", fmt.Errorf("%w: %s is not a sealed payload", ErrDecryptionFailed, name)
	}
	plaintext, err := e.Decrypt(sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SecureDelete removes an auxiliary secret.
func (e *Engine) SecureDelete(name string) error {
	if err := e.store.Delete(securePrefix + name); err != nil {
		return err
	}
	e.logger.Info("deleted secure value", "name", name)
	return nil
}
