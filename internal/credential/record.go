package credential

import (
	"time"

	"github.com/benaskins/credvault/internal/backend"
	"github.com/benaskins/credvault/internal/crypto"
)

// RecordVersion is the layout version written into new records.
const RecordVersion = 1

// Lifetime is how long a saved credential stays valid.
const Lifetime = 90 * 24 * time.Hour

const day = 24 * time.Hour

// Record is one provider's persisted credential. It only ever carries
// ciphertext; the sealed fields are flattened into the record's JSON.
type Record struct {
	Version  int      `json:"version"`
	Provider Provider `json:"provider"`
	crypto.Sealed
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastUsedAt time.Time `json:"lastUsedAt,omitzero"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return IsExpired(r.ExpiresAt, now)
}

// Metadata is the lightweight per-provider entry kept in the fallback store
// whatever backend holds the record, so listing never touches the hardware
// store.
type Metadata struct {
	HasKey     bool         `json:"hasKey"`
	Backend    backend.Kind `json:"backend"`
	CreatedAt  time.Time    `json:"createdAt"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	LastUsedAt time.Time    `json:"lastUsedAt,omitzero"`
}

// KeyListItem describes a stored credential without decrypting it.
type KeyListItem struct {
	Provider        Provider     `json:"provider"`
	Backend         backend.Kind `json:"backend"`
	CreatedAt       time.Time    `json:"createdAt"`
	ExpiresAt       time.Time    `json:"expiresAt"`
	LastUsedAt      time.Time    `json:"lastUsedAt,omitzero"`
	IsExpired       bool         `json:"isExpired"`
	DaysUntilExpiry int          `json:"daysUntilExpiry"`
}

// IsExpired reports whether now is strictly after expiresAt.
func IsExpired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}

// DaysUntil returns the whole days, rounded up, from now until expiresAt.
// It is never negative.
func DaysUntil(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + day - 1) / day)
}
