//go:build windows

package main

import "context"

// watchResize is a no-op; Windows consoles have no SIGWINCH.
func watchResize(context.Context, func()) (stop func()) {
	return func() {}
}
