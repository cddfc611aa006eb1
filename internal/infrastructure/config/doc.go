// Package config provides 12-factor configuration for the terminal server
// and client.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP listener, base path and static files
//   - Terminal: program to run, permitted menu commands, idle reaping
//   - Auth: optional basic auth credentials
//   - Client: endpoint and transport policy for cmd/client
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Client profiles bundle an endpoint with its extra parameters and can be
// written as YAML or TOML:
//
//	url: http://localhost:8000/console/
//	extra:
//	  command: htop
//
// Example Usage:
//
//	cfg, _ := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
