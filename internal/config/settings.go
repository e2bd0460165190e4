package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgerworks/coriander/internal/common"
)

// Settings is the application configuration assembled from the config
// file, environment variables and flags.
type Settings struct {
	DatabasePath string

	AnthropicAPIKey string
	AnthropicModel  string
	MaxConcurrency  int
	RequestTimeout  time.Duration

	GoogleAPIKey         string
	GoogleSearchEngineID string
	WebSearchEnabled     bool

	SubscriptionEndpoint string
}

// SetDefaults registers configuration defaults on the global viper
// instance. Call it once before reading the config file.
func SetDefaults() {
	viper.SetDefault("llm.max_concurrency", 5)
	viper.SetDefault("llm.request_timeout", "30s")
	viper.SetDefault("search.web_enabled", true)
}

// Load reads the settings out of the global viper instance.
func Load() (Settings, error) {
	s := Settings{
		DatabasePath:         ExpandPath(viper.GetString("database.path")),
		AnthropicAPIKey:      viper.GetString("anthropic.api_key"),
		AnthropicModel:       viper.GetString("anthropic.model"),
		MaxConcurrency:       viper.GetInt("llm.max_concurrency"),
		RequestTimeout:       viper.GetDuration("llm.request_timeout"),
		GoogleAPIKey:         viper.GetString("google.api_key"),
		GoogleSearchEngineID: viper.GetString("google.search_engine_id"),
		WebSearchEnabled:     viper.GetBool("search.web_enabled"),
		SubscriptionEndpoint: viper.GetString("subscription.endpoint"),
	}

	if s.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return s, fmt.Errorf("%w: failed to resolve home directory: %v", common.ErrInvalidConfig, err)
		}
		s.DatabasePath = filepath.Join(home, ".local", "share", "coriander", "coriander.db")
	}

	return s, nil
}
