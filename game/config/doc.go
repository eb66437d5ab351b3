// Package config provides Viper-based configuration loading for the Karel
// server and CLI.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML file, and KAREL_ environment variables (KAREL_SERVER_PORT,
// KAREL_HISTORY_DSN, ...). Command-line flags are applied on top by the
// CLI.
//
// Example config.yaml:
//
//	server:
//	  port: 8080
//	worlds:
//	  dir: worlds
//	sessions:
//	  dir: sessions
//	simulation:
//	  instruction_limit: 100000
//	history:
//	  driver: sqlite
//	  dsn: karel.db
package config
