// Package main is the entry point for the terminal server.
//
// Each client session runs a program in a pseudo-terminal. Clients drive it
// with the JSON channel protocol (write, read, setSize) posted under the
// base path.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Every session gets a login shell
//	./server -port 8000 -command "bash -l"
//
//	# Clients pick from a menu via extra {"command": "..."}
//	TERM_PERMITTED=htop,top,vi ./server
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
