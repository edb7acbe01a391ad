package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a config-friendly wrapper around time.Duration that accepts
// human readable strings such as "150ms" in JSON, YAML and environment
// variables, while still allowing numeric nanoseconds.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.UnmarshalText([]byte(s))
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// UnmarshalText parses the string form; environment overrides go through it.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: decode string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// Config captures the tunable parameters needed to run the chunk loader.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Tracking   TrackingConfig   `json:"tracking" yaml:"tracking" envPrefix:"TRACKING_"`
	Terrain    TerrainConfig    `json:"terrain" yaml:"terrain" envPrefix:"TERRAIN_"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Debug      DebugConfig      `json:"debug" yaml:"debug" envPrefix:"DEBUG_"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation" envPrefix:"SIMULATION_"`
}

type ServerConfig struct {
	ID            string   `json:"id" yaml:"id" env:"ID"`
	Description   string   `json:"description" yaml:"description" env:"DESCRIPTION"`
	TickRate      Duration `json:"tickRate" yaml:"tickRate" env:"TICK_RATE"`                // e.g. "33ms"
	StatsInterval Duration `json:"statsInterval" yaml:"statsInterval" env:"STATS_INTERVAL"` // 0 disables periodic stats logging
}

// TrackingConfig holds the radii handed to observers that do not specify
// their own. Invalid combinations are clamped, never rejected.
type TrackingConfig struct {
	Radius        int `json:"radius" yaml:"radius" env:"RADIUS"`
	UnloadRadius  int `json:"unloadRadius" yaml:"unloadRadius" env:"UNLOAD_RADIUS"`
	PreloadRadius int `json:"preloadRadius" yaml:"preloadRadius" env:"PRELOAD_RADIUS"`
}

type TerrainConfig struct {
	Seed             int64   `json:"seed" yaml:"seed" env:"SEED"`
	Frequency        float64 `json:"frequency" yaml:"frequency" env:"FREQUENCY"`
	Amplitude        float64 `json:"amplitude" yaml:"amplitude" env:"AMPLITUDE"`
	Octaves          int     `json:"octaves" yaml:"octaves" env:"OCTAVES"`
	Persistence      float64 `json:"persistence" yaml:"persistence" env:"PERSISTENCE"`
	Lacunarity       float64 `json:"lacunarity" yaml:"lacunarity" env:"LACUNARITY"`
	Samples          int     `json:"samples" yaml:"samples" env:"SAMPLES"`                            // height samples per chunk edge
	Workers          int     `json:"workers" yaml:"workers" env:"WORKERS"`                            // simultaneous generation jobs
	PreloadPerSecond float64 `json:"preloadPerSecond" yaml:"preloadPerSecond" env:"PRELOAD_PER_SECOND"` // 0 means unthrottled
	PreloadBurst     int     `json:"preloadBurst" yaml:"preloadBurst" env:"PRELOAD_BURST"`
}

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"` // "memory" or "sqlite"
	Path   string `json:"path" yaml:"path" env:"PATH"`
}

type DebugConfig struct {
	Listen string `json:"listen" yaml:"listen" env:"LISTEN"` // empty disables the debug endpoint
}

type SimulationConfig struct {
	Observers   int     `json:"observers" yaml:"observers" env:"OBSERVERS"`
	Speed       float64 `json:"speed" yaml:"speed" env:"SPEED"` // world units per second
	ArenaChunks int     `json:"arenaChunks" yaml:"arenaChunks" env:"ARENA_CHUNKS"`
	Seed        int64   `json:"seed" yaml:"seed" env:"SEED"`
}

// Load reads configuration from a JSON or YAML file if provided, applies
// CHUNKLOADER_* environment overrides and validates the result. An empty path
// starts from defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, formatFor(path), cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Format names a supported configuration encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode checks data against the configuration schema and decodes it over
// cfg, so absent keys keep their current values.
func Decode(data []byte, format Format, cfg *Config) error {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if err := validateSchema(doc); err != nil {
		return fmt.Errorf("schema config: %w", err)
	}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:            "chunk-loader-0",
			Description:   "local development chunk loader",
			TickRate:      Duration(50 * time.Millisecond),
			StatsInterval: Duration(5 * time.Second),
		},
		Tracking: TrackingConfig{
			Radius:        2,
			UnloadRadius:  4,
			PreloadRadius: 3,
		},
		Terrain: TerrainConfig{
			Seed:             1337,
			Frequency:        0.003,
			Amplitude:        64,
			Octaves:          4,
			Persistence:      0.45,
			Lacunarity:       2.0,
			Samples:          16,
			Workers:          4,
			PreloadPerSecond: 40,
			PreloadBurst:     8,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
		},
		Debug: DebugConfig{},
		Simulation: SimulationConfig{
			Observers:   4,
			Speed:       24,
			ArenaChunks: 24,
			Seed:        1337,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Server.TickRate <= 0 {
		return errors.New("server.tickRate must be positive")
	}
	if c.Server.StatsInterval < 0 {
		return errors.New("server.statsInterval cannot be negative")
	}
	if c.Terrain.Samples <= 0 {
		return errors.New("terrain.samples must be positive")
	}
	if c.Terrain.Octaves <= 0 {
		return errors.New("terrain.octaves must be positive")
	}
	if c.Terrain.Workers < 0 {
		return errors.New("terrain.workers cannot be negative")
	}
	if c.Terrain.PreloadPerSecond < 0 {
		return errors.New("terrain.preloadPerSecond cannot be negative")
	}
	if c.Terrain.PreloadBurst < 0 {
		return errors.New("terrain.preloadBurst cannot be negative")
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Simulation.Observers < 0 {
		return errors.New("simulation.observers cannot be negative")
	}
	if c.Simulation.ArenaChunks <= 0 {
		return errors.New("simulation.arenaChunks must be positive")
	}
	return nil
}
