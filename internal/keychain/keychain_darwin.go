//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// availabilityService is queried by Available; it is never written.
const availabilityService = "credvault_availability"

// SystemStore stores entries in the macOS/iOS Keychain.
type SystemStore struct{}

// NewSystemStore creates a new Keychain-backed binding.
func NewSystemStore() Binding {
	return &SystemStore{}
}

// SetEntry stores an entry in the Keychain. An existing entry is updated in
// place, so a failed or declined write leaves the previous secret intact.
func (s *SystemStore) SetEntry(server, username, secret string, opts EntryOptions) error {
	label := fmt.Sprintf("credvault: %s", server)

	item := gokeychain.NewGenericPassword(server, username, label, []byte(secret), "")
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(accessible(opts))
	if opts.Prompt != "" {
		item.SetDescription(opts.Prompt)
	}

	err := gokeychain.AddItem(item)
	if errors.Is(err, gokeychain.ErrorDuplicateItem) {
		query := gokeychain.NewItem()
		query.SetSecClass(gokeychain.SecClassGenericPassword)
		query.SetService(server)

		update := gokeychain.NewItem()
		update.SetAccount(username)
		update.SetLabel(label)
		update.SetData([]byte(secret))
		update.SetAccessible(accessible(opts))
		if opts.Prompt != "" {
			update.SetDescription(opts.Prompt)
		}
		err = gokeychain.UpdateItem(query, update)
	}
	if err != nil {
		return fmt.Errorf("keychain set %q: %w", server, err)
	}
	return nil
}

// GetEntry retrieves the single entry stored under server.
func (s *SystemStore) GetEntry(server string) (*Entry, error) {
	query := gokeychain.NewItem()
	query.SetSecClass(gokeychain.SecClassGenericPassword)
	query.SetService(server)
	query.SetMatchLimit(gokeychain.MatchLimitOne)
	query.SetReturnAttributes(true)
	query.SetReturnData(true)

	results, err := gokeychain.QueryItem(query)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, server)
		}
		return nil, fmt.Errorf("keychain get %q: %w", server, err)
	}
	if len(results) == 0 || len(results[0].Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, server)
	}
	return &Entry{Username: results[0].Account, Secret: string(results[0].Data)}, nil
}

// ResetEntry removes every item stored under server.
func (s *SystemStore) ResetEntry(server string) error {
	item := gokeychain.NewItem()
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(server)

	err := gokeychain.DeleteItem(item)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", server, err)
	}
	return nil
}

// Available queries a service that is never written. Item-not-found means
// the Keychain answered; any other error means it cannot serve requests.
func (s *SystemStore) Available() bool {
	query := gokeychain.NewItem()
	query.SetSecClass(gokeychain.SecClassGenericPassword)
	query.SetService(availabilityService)
	query.SetMatchLimit(gokeychain.MatchLimitOne)

	_, err := gokeychain.QueryItem(query)
	return err == nil || errors.Is(err, gokeychain.ErrorItemNotFound)
}

func accessible(opts EntryOptions) gokeychain.Accessible {
	if opts.RequireUserPresence {
		return gokeychain.AccessibleWhenPasscodeSetThisDeviceOnly
	}
	switch opts.Accessibility {
	case AccessibleWhenPasscodeSetThisDeviceOnly:
		return gokeychain.AccessibleWhenPasscodeSetThisDeviceOnly
	case AccessibleAfterFirstUnlockThisDeviceOnly:
		return gokeychain.AccessibleAfterFirstUnlockThisDeviceOnly
	default:
		return gokeychain.AccessibleWhenUnlockedThisDeviceOnly
	}
}
