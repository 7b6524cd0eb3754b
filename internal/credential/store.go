// Package credential persists one encrypted record per provider, plus the
// metadata used to list credentials and enforce expiry without decrypting.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benaskins/credvault/internal/backend"
	"github.com/benaskins/credvault/internal/crypto"
	"github.com/benaskins/credvault/internal/kvstore"
)

var (
	// ErrNotFound is returned when no record exists for a provider.
	ErrNotFound = errors.New("credential not found")

	// ErrUnknownProvider is returned for providers outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyKey is returned when saving an empty credential.
	ErrEmptyKey = errors.New("credential is empty")

	// ErrCorruptRecord is returned when a stored record is partial or unreadable.
	ErrCorruptRecord = errors.New("credential record is corrupt")

	// ErrExpired is returned when a record is past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Sealer encrypts plaintext credentials. The store never decrypts.
type Sealer interface {
	Encrypt(plaintext, key []byte) (crypto.Sealed, error)
}

// Store reads and writes credential records through the selected backend
// and keeps their metadata in the fallback store.
type Store struct {
	backend backend.Backend
	meta    kvstore.Store
	sealer  Sealer
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a record store. Records go to b; metadata always goes
// to meta.
func NewStore(b backend.Backend, meta kvstore.Store, sealer Sealer, opts ...Option) *Store {
	s := &Store{
		backend: b,
		meta:    meta,
		sealer:  sealer,
		now:     time.Now,
		logger:  slog.With("component", "credential"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the kind of backend records are written to.
func (s *Store) Backend() backend.Kind {
	return s.backend.Kind()
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func recordName(p Provider) string { return "api_key_" + string(p) }

func metaKey(p Provider) string { return backend.Prefix + "api_key_meta_" + string(p) }

// Save encrypts plaintext and writes a fresh record expiring after Lifetime.
// A backend failure fails the save; it is never retried elsewhere.
func (s *Store) Save(p Provider, plaintext string) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	if strings.TrimSpace(plaintext) == "" {
		return ErrEmptyKey
	}

	sealed, err := s.sealer.Encrypt([]byte(plaintext), nil)
	if err != nil {
		return fmt.Errorf("encrypting %s credential: %w", p, err)
	}

	now := s.Now()
	rec := Record{
		Version:   RecordVersion,
		Provider:  p,
		Sealed:    sealed,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling %s record: %w", p, err)
	}
	if err := s.backend.Put(recordName(p), string(data)); err != nil {
		return fmt.Errorf("saving %s record: %w", p, err)
	}

	if err := s.putMetadata(p, Metadata{
		HasKey:    true,
		Backend:   s.backend.Kind(),
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}); err != nil {
		return err
	}

	s.logger.Info("saved credential", "provider", p, "backend", s.backend.Kind(), "expires_at", rec.ExpiresAt)
	return nil
}

// Get reads a provider's record. It returns ErrNotFound when none was saved,
// ErrCorruptRecord when the stored record is partial, and the backend's
// error when the record exists but cannot be read.
func (s *Store) Get(p Provider) (*Record, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	raw, err := s.backend.Get(recordName(p))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		s.logger.Warn("credential inaccessible", "provider", p, "backend", s.backend.Kind(), "error", err)
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, p, err)
	}
	if !rec.Complete() || rec.Provider != p {
		return nil, fmt.Errorf("%w: %s", ErrCorruptRecord, p)
	}

	if meta, err := s.Metadata(p); err == nil && meta.LastUsedAt.After(rec.LastUsedAt) {
		rec.LastUsedAt = meta.LastUsedAt
	}
	return &rec, nil
}

// Touch records a successful read of rec. Only metadata is written, so a
// read never needs a hardware-store write.
func (s *Store) Touch(rec *Record) error {
	meta, err := s.Metadata(rec.Provider)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		meta = Metadata{
			HasKey:    true,
			Backend:   s.backend.Kind(),
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		}
	}
	now := s.Now()
	meta.LastUsedAt = now
	rec.LastUsedAt = now
	return s.putMetadata(rec.Provider, meta)
}

// Delete removes a provider's record and its metadata. Metadata removal is
// always attempted, even when the backend delete fails.
func (s *Store) Delete(p Provider) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	var errs []error
	if err := s.backend.Delete(recordName(p)); err != nil {
		errs = append(errs, fmt.Errorf("deleting %s record: %w", p, err))
	}
	if err := s.meta.Remove(metaKey(p)); err != nil {
		errs = append(errs, fmt.Errorf("deleting %s metadata: %w", p, err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("credential delete incomplete", "provider", p, "error", err)
		return err
	}

	s.logger.Info("deleted credential", "provider", p)
	return nil
}

// Metadata returns the stored metadata for p.
func (s *Store) Metadata(p Provider) (Metadata, error) {
	raw, err := s.meta.Get(metaKey(p))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return Metadata{}, fmt.Errorf("reading %s metadata: %w", p, err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s metadata: %w", ErrCorruptRecord, p, err)
	}
	return meta, nil
}

// Has reports whether metadata marks p as having a stored credential.
func (s *Store) Has(p Provider) (bool, error) {
	meta, err := s.Metadata(p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return meta.HasKey, nil
}

func (s *Store) putMetadata(p Provider, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling %s metadata: %w", p, err)
	}
	if err := s.meta.Set(metaKey(p), string(data)); err != nil {
		return fmt.Errorf("writing %s metadata: %w", p, err)
	}
	return nil
}

// List reports every provider with a stored credential, from metadata alone.
// Unreadable metadata entries are skipped and logged.
func (s *Store) List() ([]KeyListItem, error) {
	now := s.Now()
	var items []KeyListItem
	for _, p := range providers {
		meta, err := s.Metadata(p)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case errors.Is(err, ErrCorruptRecord):
			s.logger.Warn("skipping unreadable metadata", "provider", p, "error", err)
			continue
		case err != nil:
			return nil, err
		}
		if !meta.HasKey {
			continue
		}
		items = append(items, KeyListItem{
			Provider:        p,
			Backend:         meta.Backend,
			CreatedAt:       meta.CreatedAt,
			ExpiresAt:       meta.ExpiresAt,
			LastUsedAt:      meta.LastUsedAt,
			IsExpired:       IsExpired(meta.ExpiresAt, now),
			DaysUntilExpiry: DaysUntil(meta.ExpiresAt, now),
		})
	}
	return items, nil
}
