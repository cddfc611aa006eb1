// Package transport provides the HTTP transport adapter used by console
// channels.
//
// Built on go-resty/resty over the pooled transport from
// hashicorp/go-retryablehttp:
//   - One POST per exchange, JSON body, cookie jar enabled
//   - HTTP 200 is the only success; anything else is a *StatusError
//   - Per-request timeout, except for long-poll operations (read)
//   - Optional client-side rate limiting (golang.org/x/time/rate)
//   - Circuit breaker that fails fast while the server is unreachable
//
// Requests are never retried: a retried write could deliver keystrokes twice.
package transport
