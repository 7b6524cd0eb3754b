package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/credvault/internal/config"
	"github.com/benaskins/credvault/internal/credential"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSetGetDeleteRoundTrip(t *testing.T) {
	t.Setenv(config.DisableKeychainEnv, "1")
	dir := t.TempDir()
	base := []string{"--data-dir", dir, "--config", filepath.Join(dir, "config.yaml")}

	if err := execute(t, append(base, "set", "OpenAI", "sk-abcdef")...); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, closeFn, err := openVault()
	if err != nil {
		t.Fatalf("openVault: %v", err)
	}
	got, ok := v.GetAPIKey(credential.OpenAI)
	closeFn()
	if !ok || got != "sk-abcdef" {
		t.Fatalf("stored key = %q, %v", got, ok)
	}

	if err := execute(t, append(base, "delete", "openai")...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := execute(t, append(base, "get", "openai")...); err == nil {
		t.Error("get after delete should fail")
	}
}

func TestSetRejectsUnknownProvider(t *testing.T) {
	t.Setenv(config.DisableKeychainEnv, "1")
	dir := t.TempDir()
	err := execute(t, "--data-dir", dir, "set", "acme", "key")
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}

func TestRunKeyCommand(t *testing.T) {
	got, err := runKeyCommand("printf 'sk-from-cmd\\n'")
	if err != nil {
		t.Fatalf("runKeyCommand: %v", err)
	}
	if got != "sk-from-cmd" {
		t.Errorf("got %q", got)
	}

	_, err = runKeyCommand("echo nope >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "exit code 3") || !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected exit code error, got %v", err)
	}
}
