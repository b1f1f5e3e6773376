package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

const defaultPath = "infra/config"

// pathEnv overrides the config directory, mainly for tests and containers.
const pathEnv = "DESK_CONFIG_PATH"

// Desk is the top level service configuration.
type Desk struct {
	// DataDir is the directory for the file storage, empty means the default.
	DataDir string `json:"data_dir"`
	// MetricsPort exposes prometheus metrics when positive.
	MetricsPort int `json:"metrics_port"`
	// MessageLog is an optional file to append user announcements to.
	MessageLog string `json:"message_log"`
	// Dry runs the desk without persistence, nothing survives a restart.
	Dry bool `json:"dry"`
	// Debug lowers the global log level.
	Debug bool `json:"debug"`
}

// MustLoad loads the config for the given key, panicking on failure.
func MustLoad(key string, v interface{}) []byte {
	b, err := Load(key, v)
	if err != nil {
		panic(fmt.Sprintf("could not load config for %s: %s", key, err.Error()))
	}
	return b
}

// Load loads the config for the given key.
func Load(key string, v interface{}) ([]byte, error) {
	dir := os.Getenv(pathEnv)
	if dir == "" {
		dir = defaultPath
	}

	b, err := os.ReadFile(fmt.Sprintf("%s/%s.json", dir, key))
	if err != nil {
		return nil, fmt.Errorf("could not read config for %s: %w", key, err)
	}

	err = json.Unmarshal(b, v)
	if err != nil {
		return nil, fmt.Errorf("could not unmarshal the config for %s: %w", key, err)
	}

	log.Info().Str("config", key).Msg("loaded config")

	return b, nil
}
