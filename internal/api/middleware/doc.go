// Package middleware provides the HTTP middleware for the terminal server.
//
// Middleware stack includes:
//   - RequestID: tags each request with an X-Request-ID
//   - CORS: any origin by default; credentials only for a configured origin list
//   - RateLimit: Per-IP token bucket rate limiting
//   - BasicAuth: optional credentials checked against a bcrypt hash
//
// Rate Limiting:
//   - Per-IP tracking; idle clients are forgotten
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
