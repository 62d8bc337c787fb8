package config

import (
	"fmt"
	"os"
)

// Defaults for fields that are safe to leave unset in development.
const (
	DefaultListenAddr   = ":8080"
	DefaultDBPath       = "linkscout.db"
	DefaultLLMEndpoint  = "https://generativelanguage.googleapis.com"
	DefaultLLMModel     = "gemini-2.5-flash-preview-09-2025"
	DefaultAuthEndpoint = "https://identitytoolkit.googleapis.com"
)

// Config is the full runtime configuration. Everything the process needs
// is resolved here at startup; components receive values explicitly and
// never read the environment themselves.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppID is the fixed application identifier that namespaces every
	// history record. Required.
	AppID string

	// DBPath is the SQLite file backing the history store.
	DBPath string

	// APIKey authenticates against both external Google APIs. Required.
	APIKey string

	// LLMEndpoint is the text-generation API base URL (overridable so
	// tests can point at a local fake).
	LLMEndpoint string

	// LLMModel is the generation model name.
	LLMModel string

	// AuthEndpoint is the identity provider base URL.
	AuthEndpoint string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads configuration from the environment. Callers apply any CLI
// overrides and then Validate; missing required fields are an error so
// startup fails fast instead of limping along with implicit blanks.
func Load() Config {
	cfg := Config{
		ListenAddr:   getenv("LINKSCOUT_ADDR", DefaultListenAddr),
		AppID:        os.Getenv("LINKSCOUT_APP_ID"),
		DBPath:       getenv("LINKSCOUT_DB_PATH", DefaultDBPath),
		APIKey:       os.Getenv("LINKSCOUT_API_KEY"),
		LLMEndpoint:  getenv("LINKSCOUT_LLM_ENDPOINT", DefaultLLMEndpoint),
		LLMModel:     getenv("LINKSCOUT_LLM_MODEL", DefaultLLMModel),
		AuthEndpoint: getenv("LINKSCOUT_AUTH_ENDPOINT", DefaultAuthEndpoint),
	}
	return cfg
}

// Validate checks required fields. Kept separate from Load so CLI
// overrides can be applied before validating.
func (c Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("LINKSCOUT_APP_ID is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("LINKSCOUT_API_KEY is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("LINKSCOUT_DB_PATH must not be empty")
	}
	return nil
}
