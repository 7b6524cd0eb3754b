package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/credvault/internal/audit"
	"github.com/benaskins/credvault/internal/backend"
	"github.com/benaskins/credvault/internal/config"
	"github.com/benaskins/credvault/internal/keychain"
	"github.com/benaskins/credvault/internal/kvstore"
	"github.com/benaskins/credvault/internal/vault"
)

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.ResolvedDataDir() == "" {
		return nil, errors.New("cannot determine data directory; set --data-dir")
	}
	return cfg, nil
}

// openVault wires the vault from configuration. The returned func releases
// the master secret and closes the stores.
func openVault() (*vault.Vault, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.ResolvedDataDir(), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AuditPath()), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating audit dir: %w", err)
	}

	kv, err := kvstore.NewBoltStore(cfg.StorePath())
	if err != nil {
		return nil, nil, err
	}
	auditLog, err := audit.NewLogger(cfg.AuditPath())
	if err != nil {
		kv.Close()
		return nil, nil, err
	}

	hw := keychain.NewSystemStore()
	decision := backend.Current(backend.Platform{
		ForceDisable: cfg.DisableKeychain,
		Hardware:     hw,
	})

	v, err := vault.New(vault.Options{
		Fallback: kv,
		Hardware: hw,
		Decision: &decision,
		EntryOptions: keychain.EntryOptions{
			Accessibility:       keychain.AccessibleWhenUnlockedThisDeviceOnly,
			RequireUserPresence: cfg.RequireUserPresence,
			Prompt:              "Access credvault credentials",
		},
		Audit: auditLog,
		Actor: "cli",
	})
	if err != nil {
		auditLog.Close()
		kv.Close()
		return nil, nil, err
	}

	closeFn := func() {
		v.Cleanup()
		auditLog.Close()
		kv.Close()
	}
	return v, closeFn, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
