// Package keychain binds the vault to the platform's hardware-backed secret store.
//
// On darwin, entries are stored in the Keychain as generic passwords with:
//   - Service: the entry name (e.g. "credvault_api_key_openai")
//   - Account: the entry username (the vault always writes "credvault")
//   - Label: "credvault: <server>" (for Keychain Access.app visibility)
//
// Entries are never synchronizable and default to
// kSecAttrAccessibleWhenUnlockedThisDeviceOnly. RequireUserPresence narrows
// that to kSecAttrAccessibleWhenPasscodeSetThisDeviceOnly: the entry exists
// only while the device has a passcode. No per-read access control or
// biometric prompt is attached.
//
// Other platforms have no binding; NewSystemStore returns an UnavailableStore
// there.
package keychain

import "errors"

var (
	// ErrNotFound is returned when an entry does not exist in the store.
	ErrNotFound = errors.New("keychain entry not found")

	// ErrUnavailable is returned by every operation of a store whose platform
	// has no hardware secret store.
	ErrUnavailable = errors.New("hardware secret store unavailable")
)

// Accessibility controls when an entry can be read back.
type Accessibility int

const (
	AccessibleWhenUnlockedThisDeviceOnly Accessibility = iota
	AccessibleWhenPasscodeSetThisDeviceOnly
	AccessibleAfterFirstUnlockThisDeviceOnly
)

func (a Accessibility) String() string {
	switch a {
	case AccessibleWhenPasscodeSetThisDeviceOnly:
		return "when_passcode_set_this_device_only"
	case AccessibleAfterFirstUnlockThisDeviceOnly:
		return "after_first_unlock_this_device_only"
	default:
		return "when_unlocked_this_device_only"
	}
}

// EntryOptions are passed through to the platform store unmodified.
type EntryOptions struct {
	Accessibility       Accessibility
	RequireUserPresence bool   // restrict to devices with a passcode set; overrides Accessibility
	Prompt              string // stored as the item description
}

// Entry is a stored credential as returned by GetEntry.
type Entry struct {
	Username string
	Secret   string
}

// Binding is the interface to a hardware-backed secret store.
type Binding interface {
	SetEntry(server, username, secret string, opts EntryOptions) error
	GetEntry(server string) (*Entry, error)
	ResetEntry(server string) error
	// Available reports whether the store loaded and can serve requests.
	Available() bool
}

// UnavailableStore is the Binding used where no hardware store exists.
type UnavailableStore struct{}

func (UnavailableStore) SetEntry(string, string, string, EntryOptions) error { return ErrUnavailable }
func (UnavailableStore) GetEntry(string) (*Entry, error)                     { return nil, ErrUnavailable }
func (UnavailableStore) ResetEntry(string) error                             { return ErrUnavailable }
func (UnavailableStore) Available() bool                                     { return false }
