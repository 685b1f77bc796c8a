package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PAL_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.RequestsPerMinute != 10 {
		t.Errorf("Server.RequestsPerMinute = %d, want 10", cfg.Server.RequestsPerMinute)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "sqlite")
	}
	if cfg.History.MaxSize != 100 {
		t.Errorf("History.MaxSize = %d, want 100", cfg.History.MaxSize)
	}
	if cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "gpt-3.5-turbo")
	}
	if cfg.LLM.MaxTokens != 250 {
		t.Errorf("LLM.MaxTokens = %d, want 250", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("LLM.Temperature = %v, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.LLM.TimeoutDuration().String() != "30s" {
		t.Errorf("LLM.TimeoutDuration = %v, want 30s", cfg.LLM.TimeoutDuration())
	}
	if cfg.Chat.RelevantResults != 2 || cfg.Chat.RecentResults != 3 {
		t.Errorf("Chat = %+v, want relevant 2, recent 3", cfg.Chat)
	}
	if !cfg.Features.Analytics || !cfg.Features.Export {
		t.Errorf("Features = %+v, want both enabled", cfg.Features)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

// TestFileValues verifies that every type of key is read from the JSON file.
func TestFileValues(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{
		"server.port": 6001,
		"storage.backend": "json",
		"storage.data_dir": "/tmp/pal-test",
		"llm.base_url": "http://localhost:11434/v1",
		"llm.temperature": 0.2,
		"llm.timeout": "5s",
		"features.export": false
	}`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6001 {
		t.Errorf("Server.Port = %d, want 6001", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "json" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/pal-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.LLM.TimeoutDuration().String() != "5s" {
		t.Errorf("LLM.TimeoutDuration = %v, want 5s", cfg.LLM.TimeoutDuration())
	}
	if cfg.Features.Export {
		t.Error("Features.Export = true, want false")
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{"server.port": 6001, "llm.model": "file-model"}`)

	t.Setenv("PAL_SERVER_PORT", "7001")
	t.Setenv("PAL_LLM_MODEL", "env-model")
	t.Setenv("PAL_FEATURES_ANALYTICS", "false")
	t.Setenv("PAL_OPENAI_API_KEY", "env-key")

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7001 {
		t.Errorf("Server.Port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "env-model")
	}
	if cfg.Features.Analytics {
		t.Error("Features.Analytics = true, want false")
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "env-key")
	}
}

// TestInvalidEnvKeepsDefault verifies a malformed env value is ignored.
func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{}`)
	t.Setenv("PAL_HISTORY_MAX_SIZE", "lots")

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.History.MaxSize != 100 {
		t.Errorf("History.MaxSize = %d, want 100", cfg.History.MaxSize)
	}
}

// TestAPIKeyFallbacks verifies the OPENAI_API_KEY and keychain fallbacks.
func TestAPIKeyFallbacks(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	clearKeyEnv(t)
	kc := &mockKeychain{values: map[string]string{"pal/openai_api_key": "keychain-secret"}}
	cfg, err := loadWith(b, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "keychain-secret" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "keychain-secret")
	}

	t.Setenv("OPENAI_API_KEY", "plain-env")
	cfg, err = loadWith(b, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "plain-env" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "plain-env")
	}
}

// TestMalformedFileFallsBackToDefaults verifies an unparsable file is ignored.
func TestMalformedFileFallsBackToDefaults(t *testing.T) {
	clearKeyEnv(t)
	b := writeTempConfig(t, `{not json`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
}

func TestSetKey(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "pal", "config.json"))

	if err := setKeyWith(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKeyWith(server.port): %v", err)
	}
	if err := setKeyWith(b, "llm.temperature", "0.3"); err != nil {
		t.Fatalf("setKeyWith(llm.temperature): %v", err)
	}
	if err := setKeyWith(b, "server.port", "eighty"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "features.export", "maybe"); err == nil {
		t.Error("expected error for non-bool flag")
	}
	if err := setKeyWith(b, "llm.api_key", "sk"); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("setting a secret: err = %v, want secret error", err)
	}
	if err := setKeyWith(b, "no.such.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	// A fresh backend reads back what was written.
	clearKeyEnv(t)
	cfg, err := loadWith(newFileBackend(b.path), &mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("LLM.Temperature = %v, want 0.3", cfg.LLM.Temperature)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sk-secret"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "llm.api_key" || ki.Value == "sk-secret" {
			t.Errorf("ShowAll leaked secret: %+v", ki)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll returned %d keys, ValidKeys %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

func TestGetAPIToken_GeneratesOnce(t *testing.T) {
	kc := &mockKeychain{}

	tok1, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok1) != 36 {
		t.Errorf("token = %q, want a UUID", tok1)
	}
	tok2, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("token changed between calls: %q -> %q", tok1, tok2)
	}
}

func TestFileKeychain_RoundTrip(t *testing.T) {
	kc := fileKeychain{path: filepath.Join(t.TempDir(), "pal", "secrets.json")}

	if _, err := kc.Get("pal", "api_token"); err != ErrSecretNotFound {
		t.Fatalf("Get on missing file: err = %v, want ErrSecretNotFound", err)
	}
	if err := kc.Set("pal", "api_token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := kc.Get("pal", "api_token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "abc" {
		t.Errorf("Get = %q, want %q", got, "abc")
	}

	info, err := os.Stat(kc.path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}
