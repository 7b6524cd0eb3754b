//go:build !darwin

package keychain

// NewSystemStore returns an UnavailableStore on non-darwin platforms.
// There is no hardware-backed store to bind to; the vault routes every
// record to its fallback store instead.
func NewSystemStore() Binding {
	return UnavailableStore{}
}
