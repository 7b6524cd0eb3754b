// Package migrate moves plaintext credentials from legacy storage slots into
// encrypted records. Legacy slots are left in place until CleanupOldKeys.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benaskins/credvault/internal/audit"
	"github.com/benaskins/credvault/internal/credential"
	"github.com/benaskins/credvault/internal/kvstore"
)

// Slot maps a legacy plaintext key in the fallback store to a provider.
type Slot struct {
	LegacyKey string
	Provider  credential.Provider
}

// LegacySlots is the fixed table of legacy storage slots, in migration order.
var LegacySlots = []Slot{
	{"openai_api_key", credential.OpenAI},
	{"gemini_api_key", credential.Gemini},
	{"mistral_api_key", credential.Mistral},
	{"cohere_api_key", credential.Cohere},
	{"claude_api_key", credential.Claude},
	{"perplexity_api_key", credential.Perplexity},
	{"together_api_key", credential.Together},
	{"groq_api_key", credential.Groq},
	{"fireworks_api_key", credential.Fireworks},
}

// Result reports a migration run. Partial success is an expected outcome.
// Skipped lists providers that already had a record and were left alone.
type Result struct {
	Success  int                   `json:"success"`
	Failed   int                   `json:"failed"`
	Errors   []string              `json:"errors,omitempty"`
	Migrated []credential.Provider `json:"migrated,omitempty"`
	Skipped  []credential.Provider `json:"skipped,omitempty"`
}

// SlotStatus describes one legacy slot.
type SlotStatus struct {
	LegacyKey      string              `json:"legacyKey"`
	Provider       credential.Provider `json:"provider"`
	HasLegacyValue bool                `json:"hasLegacyValue"`
	HasNewRecord   bool                `json:"hasNewRecord"`
	Migrated       bool                `json:"migrated"`
}

// Migrator copies legacy slots into the record store.
type Migrator struct {
	legacy kvstore.Store
	store  *credential.Store
	audit  *audit.Logger
	slots  []Slot
	logger *slog.Logger
}

// New creates a migrator reading legacy slots from legacy and saving
// through store. auditLog may be nil.
func New(legacy kvstore.Store, store *credential.Store, auditLog *audit.Logger) *Migrator {
	return &Migrator{
		legacy: legacy,
		store:  store,
		audit:  auditLog,
		slots:  LegacySlots,
		logger: slog.With("component", "migrate"),
	}
}

// legacyValue returns the trimmed slot value, or "" when the slot is absent.
func (m *Migrator) legacyValue(key string) (string, error) {
	v, err := m.legacy.Get(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// Migrate saves every non-empty legacy slot as an encrypted record. A failing
// slot is recorded and the run continues. A provider that already has a
// record is skipped, so a second run changes nothing and never overwrites a
// key saved since the first.
func (m *Migrator) Migrate() Result {
	var res Result
	for _, slot := range m.slots {
		value, err := m.legacyValue(slot.LegacyKey)
		if err != nil {
			m.fail(&res, slot, fmt.Errorf("reading legacy slot: %w", err))
			continue
		}
		if value == "" {
			continue
		}

		has, err := m.store.Has(slot.Provider)
		if err != nil {
			m.fail(&res, slot, fmt.Errorf("checking existing record: %w", err))
			continue
		}
		if has {
			res.Skipped = append(res.Skipped, slot.Provider)
			continue
		}

		if err := m.store.Save(slot.Provider, value); err != nil {
			m.fail(&res, slot, err)
			continue
		}
		res.Success++
		res.Migrated = append(res.Migrated, slot.Provider)
		m.record(slot, nil)
	}

	m.logger.Info("legacy migration finished", "success", res.Success, "failed", res.Failed, "skipped", len(res.Skipped))
	return res
}

func (m *Migrator) fail(res *Result, slot Slot, err error) {
	res.Failed++
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", slot.Provider, err))
	m.logger.Error("legacy slot migration failed", "provider", slot.Provider, "slot", slot.LegacyKey, "error", err)
	m.record(slot, err)
}

func (m *Migrator) record(slot Slot, opErr error) {
	entry := audit.Entry{
		Action:  audit.ActionCredentialMigrate,
		Key:     string(slot.Provider),
		Backend: string(m.store.Backend()),
		Trigger: "migration",
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := m.audit.Log(entry); err != nil {
		m.logger.Warn("audit write failed", "error", err)
	}
}

// Status reports each legacy slot without modifying anything. A slot counts
// as migrated when it has a value and the provider has a new record.
func (m *Migrator) Status() ([]SlotStatus, error) {
	statuses := make([]SlotStatus, 0, len(m.slots))
	for _, slot := range m.slots {
		value, err := m.legacyValue(slot.LegacyKey)
		if err != nil {
			return nil, fmt.Errorf("reading legacy slot %s: %w", slot.LegacyKey, err)
		}
		has, err := m.store.Has(slot.Provider)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, SlotStatus{
			LegacyKey:      slot.LegacyKey,
			Provider:       slot.Provider,
			HasLegacyValue: value != "",
			HasNewRecord:   has,
			Migrated:       value != "" && has,
		})
	}
	return statuses, nil
}

// CleanupOldKeys removes legacy slots whose provider already has a new
// record. With force, every legacy slot is removed. It returns the number
// of slots removed.
func (m *Migrator) CleanupOldKeys(force bool) (int, error) {
	removed := 0
	var errs []error
	for _, slot := range m.slots {
		value, err := m.legacyValue(slot.LegacyKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading legacy slot %s: %w", slot.LegacyKey, err))
			continue
		}
		if value == "" && !force {
			continue
		}
		if !force {
			has, err := m.store.Has(slot.Provider)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !has {
				m.logger.Warn("keeping unmigrated legacy slot", "slot", slot.LegacyKey)
				continue
			}
		}
		if err := m.legacy.Remove(slot.LegacyKey); err != nil {
			errs = append(errs, fmt.Errorf("removing legacy slot %s: %w", slot.LegacyKey, err))
			continue
		}
		if value != "" {
			removed++
		}
	}

	m.logger.Info("legacy cleanup finished", "removed", removed, "force", force)
	return removed, errors.Join(errs...)
}
