package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/credvault/internal/backend"
	"github.com/benaskins/credvault/internal/crypto"
	"github.com/benaskins/credvault/internal/keychain"
	"github.com/benaskins/credvault/internal/kvstore"
)

// stubSealer stands in for the crypto engine so store tests skip PBKDF2.
type stubSealer struct {
	err error
}

func (s stubSealer) Encrypt(plaintext, _ []byte) (crypto.Sealed, error) {
	if s.err != nil {
		return crypto.Sealed{}, s.err
	}
	return crypto.Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(plaintext),
		Salt:       "c2FsdA==",
		IV:         "aXY=",
		Tag:        "dGFn",
	}, nil
}

type fixture struct {
	store *Store
	kv    *kvstore.MemoryStore
	hw    *keychain.MemoryStore
	now   time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, hardware bool) *fixture {
	t.Helper()
	f := &fixture{
		kv:  kvstore.NewMemoryStore(),
		hw:  keychain.NewMemoryStore(),
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	b := backend.New(backend.Decision{UseHardwareStore: hardware}, f.hw, f.kv, keychain.EntryOptions{})
	f.store = NewStore(b, f.kv, stubSealer{}, WithClock(func() time.Time { return f.now }))
	return f
}

func TestSaveAndGet(t *testing.T) {
	f := newFixture(t, false)

	if err := f.store.Save(OpenAI, "sk-abcdef"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := f.store.Get(OpenAI)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Provider != OpenAI {
		t.Errorf("Provider = %q", rec.Provider)
	}
	if rec.Version != RecordVersion {
		t.Errorf("Version = %d", rec.Version)
	}
	if !rec.CreatedAt.Equal(f.now) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, f.now)
	}
	if want := f.now.Add(90 * 24 * time.Hour); !rec.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, want)
	}
	if !rec.Complete() {
		t.Error("record missing crypto fields")
	}
}

func TestSaveWritesCiphertextOnly(t *testing.T) {
	f := newFixture(t, false)
	if err := f.store.Save(Gemini, "sk-secret-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	keys, _ := f.kv.Keys()
	for _, k := range keys {
		v, _ := f.kv.Get(k)
		if strings.Contains(v, "sk-secret-value") {
			t.Errorf("plaintext found under %s", k)
		}
	}
	if _, err := f.kv.Get(backend.Prefix + "api_key_gemini"); err != nil {
		t.Errorf("record not written to fallback backend: %v", err)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name     string
		provider Provider
		key      string
		want     error
	}{
		{"empty key", OpenAI, "", ErrEmptyKey},
		{"whitespace key", OpenAI, "  \t", ErrEmptyKey},
		{"unknown provider", Provider("acme"), "sk-x", ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.store.Save(tt.provider, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	keys, _ := f.kv.Keys()
	if len(keys) != 0 {
		t.Errorf("rejected saves wrote %v", keys)
	}
}

func TestSaveEncryptionFailure(t *testing.T) {
	f := newFixture(t, false)
	f.store.sealer = stubSealer{err: crypto.ErrCryptoUnavailable}

	if err := f.store.Save(OpenAI, "sk-abcdef"); !errors.Is(err, crypto.ErrCryptoUnavailable) {
		t.Fatalf("expected ErrCryptoUnavailable, got %v", err)
	}
	if ok, _ := f.store.Has(OpenAI); ok {
		t.Error("metadata written for a failed save")
	}
}

func TestHardwareSaveKeepsMetadataInFallback(t *testing.T) {
	f := newFixture(t, true)

	if err := f.store.Save(Claude, "sk-ant-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := f.hw.Servers(); len(got) != 1 || got[0] != backend.Prefix+"api_key_claude" {
		t.Errorf("hardware entries = %v", got)
	}
	if _, err := f.kv.Get(backend.Prefix + "api_key_claude"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Error("record must not also be written to the fallback store")
	}

	meta, err := f.store.Metadata(Claude)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if !meta.HasKey || meta.Backend != backend.Hardware {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestHardwareFailureDoesNotFallBack(t *testing.T) {
	f := newFixture(t, true)
	f.hw.FailWith(errors.New("user canceled"))

	err := f.store.Save(OpenAI, "sk-abcdef")
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	keys, _ := f.kv.Keys()
	if len(keys) != 0 {
		t.Errorf("failed hardware save wrote to fallback store: %v", keys)
	}
}

func TestGetDistinguishesMissingFromInaccessible(t *testing.T) {
	f := newFixture(t, true)

	if _, err := f.store.Get(OpenAI); !errors.Is(err, ErrNotFound) {
		t.Errorf("never saved: expected ErrNotFound, got %v", err)
	}

	if err := f.store.Save(OpenAI, "sk-abcdef"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.hw.FailWith(errors.New("user canceled"))

	_, err := f.store.Get(OpenAI)
	if errors.Is(err, ErrNotFound) {
		t.Error("inaccessible record reported as never saved")
	}
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestGetCorruptRecord(t *testing.T) {
	tests := map[string]func(r map[string]any){
		"missing tag":   func(r map[string]any) { delete(r, "tag") },
		"empty salt":    func(r map[string]any) { r["salt"] = "" },
		"wrong owner":   func(r map[string]any) { r["provider"] = "gemini" },
		"missing nonce": func(r map[string]any) { delete(r, "iv") },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, false)
			if err := f.store.Save(OpenAI, "sk-abcdef"); err != nil {
				t.Fatalf("Save: %v", err)
			}
			key := backend.Prefix + "api_key_openai"
			raw, _ := f.kv.Get(key)
			var r map[string]any
			json.Unmarshal([]byte(raw), &r)
			mutate(r)
			data, _ := json.Marshal(r)
			f.kv.Set(key, string(data))

			if _, err := f.store.Get(OpenAI); !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("expected ErrCorruptRecord, got %v", err)
			}
		})
	}

	t.Run("not json", func(t *testing.T) {
		f := newFixture(t, false)
		f.kv.Set(backend.Prefix+"api_key_openai", "sk-plaintext")
		if _, err := f.store.Get(OpenAI); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("expected ErrCorruptRecord, got %v", err)
		}
	})
}

func TestTouchUpdatesMetadataOnly(t *testing.T) {
	f := newFixture(t, true)
	if err := f.store.Save(Mistral, "mk-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := f.hw.GetEntry(backend.Prefix + "api_key_mistral")

	f.advance(time.Hour)
	rec, err := f.store.Get(Mistral)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := f.store.Touch(rec); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	after, _ := f.hw.GetEntry(backend.Prefix + "api_key_mistral")
	if before.Secret != after.Secret {
		t.Error("Touch rewrote the hardware record")
	}

	meta, _ := f.store.Metadata(Mistral)
	if !meta.LastUsedAt.Equal(f.now) {
		t.Errorf("LastUsedAt = %v, want %v", meta.LastUsedAt, f.now)
	}

	again, _ := f.store.Get(Mistral)
	if !again.LastUsedAt.Equal(f.now) {
		t.Errorf("Get did not report LastUsedAt from metadata: %v", again.LastUsedAt)
	}
}

func TestTouchRebuildsMissingMetadata(t *testing.T) {
	f := newFixture(t, false)
	if err := f.store.Save(Groq, "gsk-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.kv.Remove(metaKey(Groq))

	rec, err := f.store.Get(Groq)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := f.store.Touch(rec); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ok, _ := f.store.Has(Groq); !ok {
		t.Error("metadata not rebuilt")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)
	if err := f.store.Save(Cohere, "co-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := f.store.Delete(Cohere); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.Get(Cohere); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if ok, _ := f.store.Has(Cohere); ok {
		t.Error("metadata survived delete")
	}

	if err := f.store.Delete(Cohere); err != nil {
		t.Errorf("deleting a missing credential: %v", err)
	}
}

func TestDeleteAlwaysRemovesMetadata(t *testing.T) {
	f := newFixture(t, true)
	if err := f.store.Save(OpenAI, "sk-abcdef"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.hw.FailWith(errors.New("user canceled"))

	err := f.store.Delete(OpenAI)
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Errorf("expected backend error, got %v", err)
	}
	if ok, _ := f.store.Has(OpenAI); ok {
		t.Error("metadata must be removed even when the backend delete fails")
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, false)
	start := f.now

	if err := f.store.Save(OpenAI, "sk-1"); err != nil {
		t.Fatal(err)
	}
	f.advance(10 * 24 * time.Hour)
	if err := f.store.Save(DeepSeek, "ds-1"); err != nil {
		t.Fatal(err)
	}
	f.kv.Set(metaKey(Gemini), "{broken")

	f.now = start.Add(85*24*time.Hour + time.Hour)
	items, err := f.store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}

	if items[0].Provider != OpenAI || items[1].Provider != DeepSeek {
		t.Errorf("items out of provider order: %v, %v", items[0].Provider, items[1].Provider)
	}
	if items[0].DaysUntilExpiry != 5 || items[0].IsExpired {
		t.Errorf("openai = %+v", items[0])
	}
	if items[1].DaysUntilExpiry != 15 {
		t.Errorf("deepseek DaysUntilExpiry = %d, want 15", items[1].DaysUntilExpiry)
	}

	f.now = start.Add(91 * 24 * time.Hour)
	items, _ = f.store.List()
	if !items[0].IsExpired || items[0].DaysUntilExpiry != 0 {
		t.Errorf("expired openai = %+v", items[0])
	}
}

func TestIsExpired(t *testing.T) {
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if IsExpired(at, at) {
		t.Error("a credential is not expired at the instant of expiry")
	}
	if !IsExpired(at, at.Add(time.Nanosecond)) {
		t.Error("expected expired just after expiresAt")
	}
	if IsExpired(at, at.Add(-time.Hour)) {
		t.Error("expected not expired before expiresAt")
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		until time.Duration
		want  int
	}{
		{-48 * time.Hour, 0},
		{0, 0},
		{time.Minute, 1},
		{24 * time.Hour, 1},
		{24*time.Hour + time.Second, 2},
		{Lifetime, 90},
	}
	for _, tt := range tests {
		if got := DaysUntil(now.Add(tt.until), now); got != tt.want {
			t.Errorf("DaysUntil(+%v) = %d, want %d", tt.until, got, tt.want)
		}
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openai", OpenAI, false},
		{"  OpenAI ", OpenAI, false},
		{"AzureOpenAI", AzureOpenAI, false},
		{"xai", XAI, false},
		{"acme", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProvider(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProvidersIsACopy(t *testing.T) {
	ps := Providers()
	if len(ps) != 14 {
		t.Fatalf("expected 14 providers, got %d", len(ps))
	}
	ps[0] = "mutated"
	if Providers()[0] != OpenAI {
		t.Error("Providers exposed its backing slice")
	}
}
