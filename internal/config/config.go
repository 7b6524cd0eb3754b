package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DisableKeychainEnv forces the fallback store when set to a true value.
const DisableKeychainEnv = "CREDVAULT_DISABLE_KEYCHAIN"

// Config holds persistent vault configuration loaded from ~/.credvault/config.yaml.
type Config struct {
	DataDir             string `yaml:"data_dir"`
	DisableKeychain     bool   `yaml:"disable_keychain"`
	RequireUserPresence bool   `yaml:"require_user_presence"` // hardware entries only live while a passcode is set
	AuditLog            string `yaml:"audit_log"`
}

// DefaultDir returns the default vault home directory: ~/.credvault.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".credvault")
}

// DefaultPath returns the default config file path: ~/.credvault/config.yaml.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides onto the config.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(DisableKeychainEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.DisableKeychain = true
		}
	}
}

// ResolvedDataDir returns DataDir, or the default directory when unset.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDir()
}

// StorePath is the fallback key-value database inside the data directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.ResolvedDataDir(), "credvault.db")
}

// AuditPath returns AuditLog, or audit.log inside the data directory.
func (c *Config) AuditPath() string {
	if c.AuditLog != "" {
		return c.AuditLog
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.log")
}
