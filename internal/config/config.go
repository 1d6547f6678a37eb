// Package config provides configuration loading for viralsim.
// It reads YAML or TOML files and applies environment overrides on top.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/viralsim/internal/network"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".viralsim"

// AppConfig contains all viralsim settings.
type AppConfig struct {
	// Network holds the engine parameters.
	Network network.Config `json:"network" yaml:"network" toml:"network"`

	// Simulation controls how runs are driven.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation" toml:"simulation"`

	// Projection controls growth forecasts.
	Projection ProjectionConfig `json:"projection" yaml:"projection" toml:"projection"`

	// Logging configures operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
}

// SimulationConfig controls simulation runs.
type SimulationConfig struct {
	// Iterations is the number of referral rounds per run.
	Iterations int `json:"iterations" yaml:"iterations" toml:"iterations"`

	// Seed makes runs reproducible. Nil draws from the entropy source.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`

	// PersonaPolicy is "inherit" or "neutral".
	PersonaPolicy string `json:"persona_policy" yaml:"persona_policy" toml:"persona_policy"`

	// TimeSlice evaluates telemetry in windows of this width. Zero disables.
	TimeSlice time.Duration `json:"time_slice" yaml:"time_slice" toml:"time_slice"`

	// IDPrefix prefixes synthetic user ids.
	IDPrefix string `json:"id_prefix" yaml:"id_prefix" toml:"id_prefix"`
}

// ProjectionConfig controls growth forecasts.
type ProjectionConfig struct {
	// Days is the default forecast horizon.
	Days int `json:"days" yaml:"days" toml:"days"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is "error", "warn", "info" (default), "debug" or "trace".
	// "debug" and "trace" write referral decisions to DecisionDir.
	Level string `json:"level" yaml:"level" toml:"level"`

	// DecisionDir receives decisions.jsonl. Empty uses ~/.viralsim.
	DecisionDir string `json:"decision_dir,omitempty" yaml:"decision_dir,omitempty" toml:"decision_dir,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// MaxPersonas bounds the persona count of one request.
	MaxPersonas int `json:"max_personas" yaml:"max_personas" toml:"max_personas"`

	// SimulationsPerMinute limits simulation requests per client. Zero
	// disables the limit.
	SimulationsPerMinute float64 `json:"simulations_per_minute" yaml:"simulations_per_minute" toml:"simulations_per_minute"`

	// SimulationBurst is the number of simulation requests a client may
	// make back to back.
	SimulationBurst int `json:"simulation_burst" yaml:"simulation_burst" toml:"simulation_burst"`
}

// Default returns an AppConfig with sensible defaults.
func Default() *AppConfig {
	return &AppConfig{
		Network: network.DefaultConfig(),
		Simulation: SimulationConfig{
			Iterations:    3,
			PersonaPolicy: string(simulation.PolicyInherit),
			IDPrefix:      "synthetic-user-",
		},
		Projection: ProjectionConfig{
			Days: 90,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8484",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxPersonas:     10000,

			SimulationsPerMinute: 60,
			SimulationBurst:      10,
		},
	}
}

// DefaultPath returns ~/.viralsim/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// Load loads configuration from the default location and the environment.
// Order: defaults -> ~/.viralsim/config.yaml -> environment variables.
func Load() (*AppConfig, error) {
	cfg := Default()

	if path, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fileCfg, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			cfg = fileCfg
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or TOML
// (.toml) file. Fields absent from the file keep their defaults.
func LoadFromFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration, including the network parameters.
func (c *AppConfig) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return err
	}

	if c.Simulation.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", c.Simulation.Iterations)
	}
	if _, err := simulation.ParsePersonaPolicy(c.Simulation.PersonaPolicy); err != nil {
		return err
	}
	if c.Simulation.TimeSlice < 0 {
		return fmt.Errorf("time_slice must be non-negative, got %v", c.Simulation.TimeSlice)
	}
	if c.Projection.Days < 0 {
		return fmt.Errorf("projection days must be non-negative, got %d", c.Projection.Days)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Server.MaxPersonas < 1 {
		return fmt.Errorf("max_personas must be >= 1, got %d", c.Server.MaxPersonas)
	}
	if c.Server.SimulationsPerMinute < 0 {
		return fmt.Errorf("simulations_per_minute must be non-negative, got %v", c.Server.SimulationsPerMinute)
	}
	if c.Server.SimulationsPerMinute > 0 && c.Server.SimulationBurst < 1 {
		return fmt.Errorf("simulation_burst must be >= 1 when rate limiting, got %d", c.Server.SimulationBurst)
	}
	return nil
}

// DecisionDir returns the directory for the decision trace.
func (c *AppConfig) DecisionDir() string {
	if c.Logging.DecisionDir != "" {
		return c.Logging.DecisionDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, DirName)
	}
	return DirName
}

// SimulationOptions translates the simulation section into simulator
// options.
func (c *AppConfig) SimulationOptions() []simulation.Option {
	opts := []simulation.Option{
		simulation.WithPersonaPolicy(simulation.PersonaPolicy(c.Simulation.PersonaPolicy)),
		simulation.WithTimeSlice(c.Simulation.TimeSlice),
		simulation.WithIDPrefix(c.Simulation.IDPrefix),
	}
	if c.Simulation.Seed != nil {
		opts = append(opts, simulation.WithSeed(*c.Simulation.Seed))
	}
	return opts
}

// Encode writes the configuration as YAML, or TOML when format is "toml".
func (c *AppConfig) Encode(w io.Writer, format string) error {
	switch format {
	case "toml":
		return toml.NewEncoder(w).Encode(c)
	case "", "yaml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		return fmt.Errorf("unsupported config format: %q (valid: yaml, toml)", format)
	}
}

// applyEnvOverrides applies VIRALSIM_* environment variables. Malformed
// numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *AppConfig) error {
	if v := os.Getenv("VIRALSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("VIRALSIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VIRALSIM_SEED: %w", err)
		}
		cfg.Simulation.Seed = &n
	}

	if v := os.Getenv("VIRALSIM_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIRALSIM_ITERATIONS: %w", err)
		}
		cfg.Simulation.Iterations = n
	}

	if v := os.Getenv("VIRALSIM_BASE_ACCEPTANCE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VIRALSIM_BASE_ACCEPTANCE_RATE: %w", err)
		}
		cfg.Network.BaseAcceptanceRate = f
	}

	if v := os.Getenv("VIRALSIM_BASE_REFERRAL_PROBABILITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VIRALSIM_BASE_REFERRAL_PROBABILITY: %w", err)
		}
		cfg.Network.BaseReferralProbability = f
	}

	if v := os.Getenv("VIRALSIM_NETWORK_EFFECTS"); v != "" {
		cfg.Network.EnableNetworkEffects = v == "true" || v == "1"
	}

	if v := os.Getenv("VIRALSIM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return nil
}
