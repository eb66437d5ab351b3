package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Host: "", Port: 8080, SessionTTL: time.Hour},
		Worlds:   WorldsConfig{Dir: "worlds"},
		Programs: ProgramsConfig{Dir: "programs"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Simulation: SimulationConfig{
			Speed:             -1,
			InstructionLimit:  1000,
			ScriptOpcodeLimit: 5000,
			RunTimeout:        time.Minute,
		},
	}
}

func TestValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestServerAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Host = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, "worlds", cfg.Worlds.Dir)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, -1.0, cfg.Simulation.Speed)
	assert.Equal(t, 1_000_000, cfg.Simulation.InstructionLimit)
	assert.Empty(t, cfg.History.Driver)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "karel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  session_ttl: 30m
worlds:
  dir: /srv/worlds
  default: maze
sessions:
  dir: /srv/sessions
logging:
  level: debug
  format: json
simulation:
  speed: 0.25
  paced: true
  instruction_limit: 50
history:
  driver: sqlite
  dsn: /srv/karel.db
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, "maze", cfg.Worlds.Default)
	assert.Equal(t, "/srv/sessions", cfg.Sessions.Dir)
	assert.Equal(t, 0.25, cfg.Simulation.Speed)
	assert.True(t, cfg.Simulation.Paced)
	assert.Equal(t, 50, cfg.Simulation.InstructionLimit)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	// untouched keys keep their defaults
	assert.Equal(t, "programs", cfg.Programs.Dir)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KAREL_SERVER_PORT", "7070")
	t.Setenv("KAREL_LOGGING_LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no worlds dir", func(c *Config) { c.Worlds.Dir = "" }, "worlds.dir"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"fast speed", func(c *Config) { c.Simulation.Speed = 2 }, "simulation.speed"},
		{"negative limit", func(c *Config) { c.Simulation.InstructionLimit = -1 }, "simulation.instruction_limit"},
		{"bad driver", func(c *Config) { c.History.Driver = "postgres" }, "history.driver"},
		{"missing dsn", func(c *Config) { c.History.Driver = "mysql" }, "history.dsn"},
		{"ngrok token", func(c *Config) { c.Ngrok.Enabled = true }, "ngrok.authtoken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(-100, 70000).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		err := cfg.Validate()
		if valid := port >= 1 && port <= 65535; valid != (err == nil) {
			t.Fatalf("port %d: valid=%v err=%v", port, valid, err)
		}
	})
}
