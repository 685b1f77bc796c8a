package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	keychainService = "pal"
	apiKeyAccount   = "openai_api_key"
	apiTokenAccount = "api_token"
)

// ErrSecretNotFound is returned by Keychain.Get when no value is stored.
var ErrSecretNotFound = errors.New("secret not found")

// Keychain stores secrets outside the config file.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the keychain backed by the secrets file under the
// user's data directory.
func NewKeychain() Keychain {
	return fileKeychain{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "pal", "secrets.json")
}

// fileKeychain keeps secrets as {"service": {"account": "value"}} in a 0600 file.
type fileKeychain struct {
	path string
}

func (k fileKeychain) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (k fileKeychain) Get(service, account string) (string, error) {
	secrets, err := k.read()
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return val, nil
}

func (k fileKeychain) Set(service, account, value string) error {
	secrets, err := k.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

// GetAPIToken returns the bearer token that guards the local HTTP API,
// generating and storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	tok, err := kc.Get(keychainService, apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	tok = uuid.NewString()
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetAPIKey stores the completion service key in the secrets file.
func SetAPIKey(kc Keychain, key string) error {
	return kc.Set(keychainService, apiKeyAccount, key)
}
