package backend

import (
	"errors"
	"testing"

	"github.com/benaskins/credvault/internal/keychain"
	"github.com/benaskins/credvault/internal/kvstore"
)

type stubBinding struct {
	keychain.UnavailableStore
	available bool
}

func (s stubBinding) Available() bool { return s.available }

func TestDecide(t *testing.T) {
	hw := keychain.NewMemoryStore()
	tests := []struct {
		name     string
		platform Platform
		hardware bool
	}{
		{"darwin with keychain", Platform{GOOS: "darwin", Hardware: hw}, true},
		{"ios with keychain", Platform{GOOS: "ios", Hardware: hw}, true},
		{"force disabled", Platform{GOOS: "darwin", Hardware: hw, ForceDisable: true}, false},
		{"linux desktop", Platform{GOOS: "linux", Hardware: hw}, false},
		{"windows desktop", Platform{GOOS: "windows", Hardware: hw}, false},
		{"binding missing", Platform{GOOS: "darwin"}, false},
		{"availability check fails", Platform{GOOS: "darwin", Hardware: stubBinding{available: false}}, false},
		{"unavailable store", Platform{GOOS: "ios", Hardware: keychain.UnavailableStore{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.platform)
			if d.UseHardwareStore != tt.hardware {
				t.Errorf("UseHardwareStore = %v, want %v (reason %q)", d.UseHardwareStore, tt.hardware, d.Reason)
			}
			if d.Reason == "" {
				t.Error("expected a reason")
			}
			wantKind := Fallback
			if tt.hardware {
				wantKind = Hardware
			}
			if d.Kind() != wantKind {
				t.Errorf("Kind() = %v, want %v", d.Kind(), wantKind)
			}
		})
	}
}

func TestCurrentIsComputedOnce(t *testing.T) {
	first := Current(Platform{GOOS: "darwin", Hardware: keychain.NewMemoryStore()})
	second := Current(Platform{GOOS: "darwin", ForceDisable: true})
	if first != second {
		t.Errorf("decision changed between calls: %+v then %+v", first, second)
	}
}

func TestNewSelectsVariant(t *testing.T) {
	hw := keychain.NewMemoryStore()
	kv := kvstore.NewMemoryStore()

	if b := New(Decision{UseHardwareStore: true}, hw, kv, keychain.EntryOptions{}); b.Kind() != Hardware {
		t.Errorf("expected hardware backend, got %v", b.Kind())
	}
	if b := New(Decision{}, hw, kv, keychain.EntryOptions{}); b.Kind() != Fallback {
		t.Errorf("expected fallback backend, got %v", b.Kind())
	}
}

func TestHardwareBackendRoundTrip(t *testing.T) {
	hw := keychain.NewMemoryStore()
	kv := kvstore.NewMemoryStore()
	opts := keychain.EntryOptions{RequireUserPresence: true}
	b := New(Decision{UseHardwareStore: true}, hw, kv, opts)

	if err := b.Put("api_key_openai", "payload"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := b.Get("api_key_openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "payload" {
		t.Errorf("expected payload, got %q", v)
	}

	got, ok := hw.Options(Prefix + "api_key_openai")
	if !ok || got != opts {
		t.Errorf("entry options = %+v, want %+v", got, opts)
	}
	e, err := hw.GetEntry(Prefix + "api_key_openai")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.Username != "credvault" {
		t.Errorf("entry username = %q, want credvault", e.Username)
	}
	if _, err := kv.Get(Prefix + "api_key_openai"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Error("hardware backend must not write to the fallback store")
	}

	if err := b.Delete("api_key_openai"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get("api_key_openai"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestHardwareFailureDoesNotFallBack(t *testing.T) {
	hw := keychain.NewMemoryStore()
	kv := kvstore.NewMemoryStore()
	b := New(Decision{UseHardwareStore: true}, hw, kv, keychain.EntryOptions{})

	declined := errors.New("user canceled")
	hw.FailWith(declined)

	err := b.Put("api_key_openai", "payload")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
	if !errors.Is(err, declined) {
		t.Errorf("expected underlying cause to be preserved, got %v", err)
	}
	if _, kvErr := kv.Get(Prefix + "api_key_openai"); !errors.Is(kvErr, kvstore.ErrNotFound) {
		t.Error("failed hardware write must not land in the fallback store")
	}

	if _, err := b.Get("api_key_openai"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Get: expected ErrBackendUnavailable, got %v", err)
	}
	if err := b.Delete("api_key_openai"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Delete: expected ErrBackendUnavailable, got %v", err)
	}
}

func TestFallbackBackendRoundTrip(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	b := New(Decision{}, keychain.UnavailableStore{}, kv, keychain.EntryOptions{})

	if _, err := b.Get("master_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := b.Put("master_key", "abc"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if raw, _ := kv.Get(Prefix + "master_key"); raw != "abc" {
		t.Errorf("expected prefixed key in kv store, got %q", raw)
	}
	v, err := b.Get("master_key")
	if err != nil || v != "abc" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if err := b.Delete("master_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete("master_key"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}
