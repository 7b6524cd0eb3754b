package backend

import (
	"errors"
	"fmt"

	"github.com/benaskins/credvault/internal/keychain"
	"github.com/benaskins/credvault/internal/kvstore"
)

// Prefix namespaces every entry the vault writes.
const Prefix = "credvault_"

// hardwareUsername is the account attribute of every hardware entry.
const hardwareUsername = "credvault"

var (
	// ErrNotFound is returned when a named entry does not exist in the backend.
	ErrNotFound = errors.New("entry not found")

	// ErrBackendUnavailable is returned when the hardware store refused or
	// failed a call, e.g. because the user declined authentication.
	ErrBackendUnavailable = errors.New("secret store unavailable")
)

// Kind identifies a backend variant.
type Kind string

const (
	Hardware Kind = "hardware"
	Fallback Kind = "fallback"
)

// Backend is raw named-string storage in the selected secret store.
// Implementations never retry a failed call against another store.
type Backend interface {
	Kind() Kind
	Put(name, value string) error
	Get(name string) (string, error)
	Delete(name string) error
}

// New returns the backend the decision selects.
func New(d Decision, hw keychain.Binding, kv kvstore.Store, opts keychain.EntryOptions) Backend {
	if d.UseHardwareStore {
		return &HardwareBackend{binding: hw, opts: opts}
	}
	return &FallbackBackend{kv: kv}
}

// HardwareBackend stores entries in a keychain.Binding.
type HardwareBackend struct {
	binding keychain.Binding
	opts    keychain.EntryOptions
}

func (b *HardwareBackend) Kind() Kind { return Hardware }

func (b *HardwareBackend) Put(name, value string) error {
	if err := b.binding.SetEntry(Prefix+name, hardwareUsername, value, b.opts); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrBackendUnavailable, name, err)
	}
	return nil
}

func (b *HardwareBackend) Get(name string) (string, error) {
	e, err := b.binding.GetEntry(Prefix + name)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("%w: get %s: %w", ErrBackendUnavailable, name, err)
	}
	return e.Secret, nil
}

func (b *HardwareBackend) Delete(name string) error {
	if err := b.binding.ResetEntry(Prefix + name); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrBackendUnavailable, name, err)
	}
	return nil
}

// FallbackBackend stores entries in the persistent key-value store.
type FallbackBackend struct {
	kv kvstore.Store
}

func (b *FallbackBackend) Kind() Kind { return Fallback }

func (b *FallbackBackend) Put(name, value string) error {
	if err := b.kv.Set(Prefix+name, value); err != nil {
		return fmt.Errorf("fallback put %s: %w", name, err)
	}
	return nil
}

func (b *FallbackBackend) Get(name string) (string, error) {
	v, err := b.kv.Get(Prefix + name)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("fallback get %s: %w", name, err)
	}
	return v, nil
}

func (b *FallbackBackend) Delete(name string) error {
	if err := b.kv.Remove(Prefix + name); err != nil {
		return fmt.Errorf("fallback delete %s: %w", name, err)
	}
	return nil
}
