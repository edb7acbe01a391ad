package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chunkloader/internal/config"
)

const (
	envConfigJSON    = config.EnvPrefix + "CONFIG_JSON"
	envConfigYAMLB64 = config.EnvPrefix + "CONFIG_YAML_B64"
)

// writeConfigFromEnv materialises a configuration handed over by an
// orchestrator through the environment at cfgPath, so config.Load picks it up.
func writeConfigFromEnv(cfgPath string) (bool, error) {
	jsonPayload := os.Getenv(envConfigJSON)
	yamlPayload := os.Getenv(envConfigYAMLB64)

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if cfgPath == "" {
		return false, errors.New("configuration provided via environment but no --config path supplied")
	}

	cfg := config.Default()
	if jsonPayload != "" {
		if err := config.Decode([]byte(jsonPayload), config.FormatJSON, cfg); err != nil {
			return false, fmt.Errorf("decode %s: %w", envConfigJSON, err)
		}
	} else {
		data, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return false, fmt.Errorf("decode %s: %w", envConfigYAMLB64, err)
		}
		if err := config.Decode(data, config.FormatYAML, cfg); err != nil {
			return false, fmt.Errorf("parse %s: %w", envConfigYAMLB64, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("validate provided config: %w", err)
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}
