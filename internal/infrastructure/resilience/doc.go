/*
Package resilience provides the circuit breaker used by the HTTP transport.

# Overview

When the terminal server is down, every keystroke batch, resize and read
would otherwise wait out a full network failure. The breaker counts
consecutive failures and, once tripped, rejects requests immediately until a
cooldown elapses.

# Usage

	breaker := resilience.New("terminal-server", resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         10 * time.Second,
		IsFailure:        isFailure,
	})

	body, err := resilience.Do(breaker, func() ([]byte, error) {
		return call()
	})

Settings.IsFailure picks which errors count; the transport ignores client
errors and cancellation.

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                                        |
	                                                    [failure]
	                                                        v
	                                                      Open

Half-open admits every request. A read long-poll may stay open for minutes,
so limiting half-open to a few trial requests would starve writes behind it.
*/
package resilience
