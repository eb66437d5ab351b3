// Command karel serves Karel the Robot worlds and runs robot programs.
//
// Commands:
//  1. "serve" runs the HTTP server exposing the REST API, the WebSocket trace
//     stream and an /mcp endpoint, optionally tunnelled through ngrok
//  2. "mcp" runs an MCP stdio server, reusing a running API server or
//     starting an internal one
//  3. "run" runs one program against a world and prints the outcome
//  4. "render", "validate" and "programs" inspect worlds and programs
//
// Settings come from an optional YAML config file, KAREL_* environment
// variables and .env, in increasing precedence, with flags on top.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/karel/game/config"
	"github.com/wricardo/karel/game/observability"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Karel the Robot"
)

// app carries the resolved configuration and logger into every command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

// main loads .env, then hands off to the command line.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}
	if err := a.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "karel",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.EnvVars("KAREL_CONFIG"),
			},
			&cli.StringFlag{Name: "worlds", Usage: "directory of .w world files"},
			&cli.StringFlag{Name: "programs", Usage: "directory of Lua programs"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level debug"},
		},
		Before: a.setup,
		After: func(ctx context.Context, cmd *cli.Command) error {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			return nil
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			a.serveCommand(),
			a.mcpCommand(),
			a.runCommand(),
			a.renderCommand(),
			a.validateCommand(),
			a.programsCommand(),
		},
	}
}

// setup loads the configuration, applies the global flags and builds the
// logger.
func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	v := config.New()
	if path := cmd.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ctx, fmt.Errorf("reading config file: %w", err)
		}
	}

	overrides := map[string]string{
		"worlds":     "worlds.dir",
		"programs":   "programs.dir",
		"log-level":  "logging.level",
		"log-format": "logging.format",
	}
	for flag, key := range overrides {
		if cmd.IsSet(flag) {
			v.Set(key, cmd.String(flag))
		}
	}
	if cmd.Bool("debug") {
		v.Set("logging.level", "debug")
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return ctx, err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return ctx, err
	}

	a.cfg = cfg
	a.logger = logger
	return ctx, nil
}
