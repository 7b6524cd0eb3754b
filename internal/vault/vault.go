// Package vault is the facade application code uses to store and retrieve
// provider credentials. It sequences the backend decision, crypto engine,
// record store and migrator, and applies the expiry policy in one place.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/benaskins/credvault/internal/audit"
	"github.com/benaskins/credvault/internal/backend"
	"github.com/benaskins/credvault/internal/credential"
	"github.com/benaskins/credvault/internal/crypto"
	"github.com/benaskins/credvault/internal/keychain"
	"github.com/benaskins/credvault/internal/kvstore"
	"github.com/benaskins/credvault/internal/migrate"
)

const installationIDKey = backend.Prefix + "installation_id"

// Options configures a Vault.
type Options struct {
	// Fallback is the always-available store. Required.
	Fallback kvstore.Store

	// Hardware is the platform secret store binding, nil when none loaded.
	Hardware keychain.Binding

	// Decision, when set, is used as-is instead of probing.
	Decision *backend.Decision

	// ForceFallback disables the hardware store.
	ForceFallback bool

	// GOOS overrides the platform family used for the backend decision.
	GOOS string

	// EntryOptions are passed unmodified to every hardware entry.
	EntryOptions keychain.EntryOptions

	// Primitives defaults to crypto.DefaultPrimitives.
	Primitives *crypto.Primitives

	// Audit receives credential events. May be nil.
	Audit *audit.Logger

	// Actor tags audit entries, e.g. "cli".
	Actor string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// StorageInfo describes the active storage configuration.
type StorageInfo struct {
	UseHardwareStore   bool                  `json:"useHardwareStore"`
	Backend            backend.Kind          `json:"backend"`
	Reason             string                `json:"reason"`
	SupportedProviders []credential.Provider `json:"supportedProviders"`
	InstallationID     string                `json:"installationId"`
	HardwareAES        bool                  `json:"hardwareAES"`
}

// Vault owns the master secret's lifetime and is the only writer of
// credential records.
type Vault struct {
	decision       backend.Decision
	engine         *crypto.Engine
	store          *credential.Store
	migrator       *migrate.Migrator
	audit          *audit.Logger
	actor          string
	installationID string
	logger         *slog.Logger
}

// New builds a vault. The backend decision is made here, once, and never
// re-evaluated for the vault's lifetime.
func New(opts Options) (*Vault, error) {
	if opts.Fallback == nil {
		return nil, errors.New("vault: fallback store is required")
	}

	decision := backend.Decide(backend.Platform{
		GOOS:         opts.GOOS,
		ForceDisable: opts.ForceFallback,
		Hardware:     opts.Hardware,
	})
	if opts.Decision != nil {
		decision = *opts.Decision
	}
	if decision.UseHardwareStore && opts.Hardware == nil {
		return nil, errors.New("vault: hardware store selected but no binding supplied")
	}

	hw := opts.Hardware
	if hw != nil && opts.Audit != nil {
		hw = keychain.NewAuditedStore(hw, opts.Audit, opts.Actor)
	}
	store := backend.New(decision, hw, opts.Fallback, opts.EntryOptions)

	prims := crypto.DefaultPrimitives()
	if opts.Primitives != nil {
		prims = *opts.Primitives
	}
	engine := crypto.NewEngine(store, prims)

	var storeOpts []credential.Option
	if opts.Clock != nil {
		storeOpts = append(storeOpts, credential.WithClock(opts.Clock))
	}
	records := credential.NewStore(store, opts.Fallback, engine, storeOpts...)

	id, err := installationID(opts.Fallback)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		decision:       decision,
		engine:         engine,
		store:          records,
		migrator:       migrate.New(opts.Fallback, records, opts.Audit),
		audit:          opts.Audit,
		actor:          opts.Actor,
		installationID: id,
		logger:         slog.With("component", "vault"),
	}
	v.logger.Debug("backend selected", "backend", decision.Kind(), "reason", decision.Reason)
	return v, nil
}

func installationID(kv kvstore.Store) (string, error) {
	id, err := kv.Get(installationIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return "", fmt.Errorf("reading installation id: %w", err)
	}
	id = uuid.NewString()
	if err := kv.Set(installationIDKey, id); err != nil {
		return "", fmt.Errorf("writing installation id: %w", err)
	}
	return id, nil
}

func (v *Vault) record(action audit.Action, p credential.Provider, trigger string, err error) {
	e := audit.Entry{
		Action:  action,
		Key:     string(p),
		Backend: string(v.decision.Kind()),
		Actor:   v.actor,
		Trigger: trigger,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if logErr := v.audit.Log(e); logErr != nil {
		v.logger.Warn("audit write failed", "error", logErr)
	}
}

// Initialize loads or creates the master secret.
func (v *Vault) Initialize() error {
	return v.engine.Initialize()
}

// Cleanup drops the in-memory master secret. Stores passed in Options are
// owned, and closed, by the caller.
func (v *Vault) Cleanup() {
	v.engine.Cleanup()
}

// SaveAPIKey encrypts and stores key for p, replacing any existing record.
func (v *Vault) SaveAPIKey(p credential.Provider, key string) error {
	err := v.store.Save(p, key)
	v.record(audit.ActionCredentialWrite, p, "manual", err)
	if err != nil {
		v.logger.Error("save failed", "provider", p, "error", err)
	}
	return err
}

// Lookup returns the plaintext credential for p. An expired record is
// deleted and reported as credential.ErrExpired.
func (v *Vault) Lookup(p credential.Provider) (string, error) {
	rec, err := v.store.Get(p)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
		case errors.Is(err, credential.ErrCorruptRecord):
			v.logger.Error("corrupt credential record", "provider", p, "error", err)
			v.record(audit.ActionDecryptFailure, p, "access", err)
		default:
			v.logger.Error("credential inaccessible", "provider", p, "error", err)
			v.record(audit.ActionCredentialRead, p, "access", err)
		}
		return "", err
	}

	if rec.Expired(v.store.Now()) {
		delErr := v.store.Delete(p)
		v.record(audit.ActionCredentialExpire, p, "access", delErr)
		v.logger.Info("expired credential removed", "provider", p, "expired_at", rec.ExpiresAt)
		return "", fmt.Errorf("%w: %s", credential.ErrExpired, p)
	}

	plaintext, err := v.engine.Decrypt(rec.Sealed, nil)
	if err != nil {
		v.logger.Error("credential failed to decrypt", "provider", p, "error", err)
		v.record(audit.ActionDecryptFailure, p, "access", err)
		return "", err
	}

	if err := v.store.Touch(rec); err != nil {
		v.logger.Warn("updating last use failed", "provider", p, "error", err)
	}
	v.record(audit.ActionCredentialRead, p, "access", nil)
	return string(plaintext), nil
}

// GetAPIKey returns the credential for p, or false when it is missing,
// expired, inaccessible or fails to verify. Details are logged.
func (v *Vault) GetAPIKey(p credential.Provider) (string, bool) {
	key, err := v.Lookup(p)
	if err != nil {
		return "", false
	}
	return key, true
}

// DeleteAPIKey removes the credential for p.
func (v *Vault) DeleteAPIKey(p credential.Provider) error {
	err := v.store.Delete(p)
	v.record(audit.ActionCredentialDelete, p, "manual", err)
	return err
}

// DeleteAllKeys removes the credential of every supported provider.
func (v *Vault) DeleteAllKeys() error {
	var errs []error
	for _, p := range credential.Providers() {
		has, err := v.store.Has(p)
		if err != nil {
			errs = append(errs, err)
		}
		if err := v.store.Delete(p); err != nil {
			errs = append(errs, err)
			v.record(audit.ActionCredentialDelete, p, "manual", err)
			continue
		}
		if has {
			v.record(audit.ActionCredentialDelete, p, "manual", nil)
		}
	}
	return errors.Join(errs...)
}

// ListAvailableKeys lists stored credentials from metadata, without
// decrypting or touching the hardware store.
func (v *Vault) ListAvailableKeys() ([]credential.KeyListItem, error) {
	return v.store.List()
}

// CleanupExpiredKeys deletes every expired credential and returns how many
// were removed.
func (v *Vault) CleanupExpiredKeys() (int, error) {
	items, err := v.store.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, item := range items {
		if !item.IsExpired {
			continue
		}
		err := v.store.Delete(item.Provider)
		v.record(audit.ActionCredentialExpire, item.Provider, "sweep", err)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		v.logger.Info("expired credentials swept", "removed", removed)
	}
	return removed, errors.Join(errs...)
}

// MigrateExistingKeys copies legacy plaintext slots into encrypted records.
func (v *Vault) MigrateExistingKeys() migrate.Result {
	return v.migrator.Migrate()
}

// MigrationStatus reports each legacy slot.
func (v *Vault) MigrationStatus() ([]migrate.SlotStatus, error) {
	return v.migrator.Status()
}

// CleanupOldKeys removes migrated legacy slots, or all of them with force.
func (v *Vault) CleanupOldKeys(force bool) (int, error) {
	return v.migrator.CleanupOldKeys(force)
}

// SecureStore keeps an auxiliary named secret outside the provider namespace.
func (v *Vault) SecureStore(name, value string) error {
	return v.engine.SecureStore(name, value)
}

// SecureRetrieve returns an auxiliary secret stored with SecureStore.
func (v *Vault) SecureRetrieve(name string) (string, error) {
	return v.engine.SecureRetrieve(name)
}

// SecureDelete removes an auxiliary secret.
func (v *Vault) SecureDelete(name string) error {
	return v.engine.SecureDelete(name)
}

// StorageInfo reports the active backend and the supported providers.
func (v *Vault) StorageInfo() StorageInfo {
	return StorageInfo{
		UseHardwareStore:   v.decision.UseHardwareStore,
		Backend:            v.decision.Kind(),
		Reason:             v.decision.Reason,
		SupportedProviders: credential.Providers(),
		InstallationID:     v.installationID,
		HardwareAES:        crypto.HardwareAES(),
	}
}
