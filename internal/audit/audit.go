// Package audit provides append-only structured logging for credential operations.
//
// Every credential access (read, write, delete, expiry, migration) and every
// hardware keychain call is recorded to an audit log at ~/.credvault/audit.log
// as newline-delimited JSON. Secret values are never written.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionCredentialRead    Action = "credential_read"
	ActionCredentialWrite   Action = "credential_write"
	ActionCredentialDelete  Action = "credential_delete"
	ActionCredentialExpire  Action = "credential_expire"
	ActionCredentialMigrate Action = "credential_migrate"
	ActionDecryptFailure    Action = "decrypt_failure"
	ActionKeychainRead      Action = "keychain_read"
	ActionKeychainWrite     Action = "keychain_write"
	ActionKeychainDelete    Action = "keychain_delete"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Key       string    `json:"key"`
	Backend   string    `json:"backend,omitempty"` // "hardware" | "fallback"
	Actor     string    `json:"actor,omitempty"`   // "cli", "vault"
	Trigger   string    `json:"trigger,omitempty"` // "manual", "sweep", "access", "migration"
	Error     string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
// A nil *Logger is valid and discards every entry.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
