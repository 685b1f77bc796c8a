package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	History  HistoryConfig
	LLM      LLMConfig
	Chat     ChatConfig
	Log      LogConfig
	Features FeaturesConfig
}

type ServerConfig struct {
	Port              int
	MaxConns          int
	RequestsPerMinute int
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type HistoryConfig struct {
	MaxSize int
}

type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     string
}

// TimeoutDuration parses Timeout, falling back to 30s when it is invalid.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type ChatConfig struct {
	RelevantResults int
	RecentResults   int
}

type LogConfig struct {
	Level string
}

type FeaturesConfig struct {
	Analytics bool
	Export    bool
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              5000,
			MaxConns:          64,
			RequestsPerMinute: 10,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			MaxSize: 100,
		},
		LLM: LLMConfig{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   250,
			Temperature: 0.7,
			Timeout:     "30s",
		},
		Chat: ChatConfig{
			RelevantResults: 2,
			RecentResults:   3,
		},
		Log: LogConfig{
			Level: "info",
		},
		Features: FeaturesConfig{
			Analytics: true,
			Export:    true,
		},
	}
}

// Load reads configuration in increasing precedence: built-in defaults, the
// JSON file at $XDG_CONFIG_HOME/pal/config.json, then PAL_* environment
// variables. A .env file in the working directory is loaded into the
// environment first without overriding variables that are already set.
//
// The completion API key comes from PAL_OPENAI_API_KEY, then OPENAI_API_KEY,
// then the secrets file. A missing key is not an error here; chat requests
// fail instead.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get(keychainService, apiKeyAccount); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}
