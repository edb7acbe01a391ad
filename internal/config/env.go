package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g.
// CHUNKLOADER_SERVER_TICK_RATE=20ms.
const EnvPrefix = "CHUNKLOADER_"

// ApplyEnv overrides cfg with any CHUNKLOADER_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
