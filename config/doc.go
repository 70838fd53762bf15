// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODEBOT_* environment variables. It
// supports configuration for server settings, sandbox execution parameters,
// the container pool, the orphan sweep, logging and metrics.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
