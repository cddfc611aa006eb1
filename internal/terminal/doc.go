// Package terminal runs the programs behind console channel sessions.
//
// Sessions are keyed by the identifier chosen by the client and are created
// lazily: the first request naming an unknown identifier starts a program
// through the Manager's Starter, using the extra parameters the client sent.
//
// Features:
//   - PTY-backed processes via creack/pty
//   - Fixed-command and permitted-command-menu starters
//   - Long-poll reads that wait for output, session exit or cancellation
//   - UTF-8 aware output delivery: a rune split across pty reads is held
//     back until it is complete
//   - Terminal resizing
//   - Idle session reaping and a cap on concurrent sessions
//
// Architecture:
//   - One goroutine per session pumps process output into a bounded buffer
//     and reaps the process once output ends. A full buffer stalls the pump
//     until a reader drains it.
//   - Readers wait on a notification channel rather than polling
//   - Exited sessions stay registered until reaped so that late requests get
//     ErrSessionClosed instead of spawning a fresh program
package terminal
