package keychain

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/benaskins/credvault/internal/audit"
)

// AuditedStore wraps a Binding and records every call in the audit log.
type AuditedStore struct {
	inner  Binding
	audit  *audit.Logger
	actor  string // "cli" or "vault"
	logger *slog.Logger
}

// NewAuditedStore wraps an existing binding with audit logging.
func NewAuditedStore(inner Binding, auditLog *audit.Logger, actor string) *AuditedStore {
	return &AuditedStore{
		inner:  inner,
		audit:  auditLog,
		actor:  actor,
		logger: slog.With("component", "keychain"),
	}
}

func (s *AuditedStore) SetEntry(server, username, secret string, opts EntryOptions) error {
	err := s.inner.SetEntry(server, username, secret, opts)
	s.log(audit.ActionKeychainWrite, server, err)
	if err != nil {
		return fmt.Errorf("audited keychain set: %w", err)
	}
	return nil
}

func (s *AuditedStore) GetEntry(server string) (*Entry, error) {
	e, err := s.inner.GetEntry(server)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s.log(audit.ActionKeychainRead, server, err)
	if err != nil {
		return nil, fmt.Errorf("audited keychain get: %w", err)
	}
	return e, nil
}

func (s *AuditedStore) ResetEntry(server string) error {
	err := s.inner.ResetEntry(server)
	s.log(audit.ActionKeychainDelete, server, err)
	if err != nil {
		return fmt.Errorf("audited keychain reset: %w", err)
	}
	return nil
}

func (s *AuditedStore) Available() bool {
	return s.inner.Available()
}

// Audit logging is best-effort; a failure to log never blocks the operation.
func (s *AuditedStore) log(action audit.Action, server string, opErr error) {
	entry := audit.Entry{
		Action:  action,
		Key:     server,
		Backend: "hardware",
		Actor:   s.actor,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := s.audit.Log(entry); err != nil {
		s.logger.Warn("audit write failed", "server", server, "error", err)
	}
}
