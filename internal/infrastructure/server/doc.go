// Package server assembles the terminal server.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, request id, metrics, CORS, rate limiting, auth)
//   - Terminal session manager and its idle reaper
//   - Response compression
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Choose how sessions start their program
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server and the idle reaper
//  6. Graceful shutdown on signal, killing remaining sessions
//
// Example Usage:
//
//	cfg, _ := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
