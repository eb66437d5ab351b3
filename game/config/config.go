package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// SessionTTL is how long an untouched session is kept in memory.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorldsConfig locates the world library.
type WorldsConfig struct {
	Dir     string `mapstructure:"dir"`
	Default string `mapstructure:"default"`
}

// SessionsConfig controls session persistence. An empty Dir keeps sessions
// in memory only.
type SessionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ProgramsConfig locates the Lua programs.
type ProgramsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig holds run limits and pacing.
type SimulationConfig struct {
	// Speed overrides the world's animation speed when >= 0.
	Speed float64 `mapstructure:"speed"`
	// Paced makes runs sleep between instructions according to the speed.
	Paced             bool          `mapstructure:"paced"`
	InstructionLimit  int           `mapstructure:"instruction_limit"`
	ScriptOpcodeLimit int           `mapstructure:"script_opcode_limit"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
}

// HistoryConfig selects the run history database. An empty Driver disables
// history.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// NgrokConfig enables a public tunnel for the server.
type NgrokConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Worlds     WorldsConfig     `mapstructure:"worlds"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Programs   ProgramsConfig   `mapstructure:"programs"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	History    HistoryConfig    `mapstructure:"history"`
	Ngrok      NgrokConfig      `mapstructure:"ngrok"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Worlds.Dir == "" {
		errs = append(errs, "worlds.dir must not be empty")
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHistory(c.History); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		errs = append(errs, "ngrok.authtoken must be set when ngrok is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.SessionTTL < 0 {
		errs = append(errs, "server.session_ttl must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.Speed > 1 {
		errs = append(errs, fmt.Sprintf("simulation.speed must be at most 1, got %g", s.Speed))
	}
	if s.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("simulation.instruction_limit must be >= 0, got %d", s.InstructionLimit))
	}
	if s.ScriptOpcodeLimit < 0 {
		errs = append(errs, fmt.Sprintf("simulation.script_opcode_limit must be >= 0, got %d", s.ScriptOpcodeLimit))
	}
	if s.RunTimeout < 0 {
		errs = append(errs, "simulation.run_timeout must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateHistory(h HistoryConfig) error {
	switch h.Driver {
	case "":
		return nil
	case "sqlite", "mysql":
		if h.DSN == "" {
			return fmt.Errorf("history.dsn must be set for driver %q", h.Driver)
		}
		return nil
	default:
		return fmt.Errorf("history.driver must be one of [sqlite, mysql] or empty, got %q", h.Driver)
	}
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. An empty path uses the
// defaults and the environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// New returns a Viper instance with the defaults and KAREL_ environment
// overrides applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KAREL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl", "24h")

	v.SetDefault("worlds.dir", "worlds")
	v.SetDefault("worlds.default", "")
	v.SetDefault("sessions.dir", "")
	v.SetDefault("programs.dir", "programs")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("simulation.speed", -1)
	v.SetDefault("simulation.paced", false)
	v.SetDefault("simulation.instruction_limit", 1_000_000)
	v.SetDefault("simulation.script_opcode_limit", 10_000_000)
	v.SetDefault("simulation.run_timeout", "1m")

	v.SetDefault("history.driver", "")
	v.SetDefault("history.dsn", "")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")
}
