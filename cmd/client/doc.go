// Package main is a terminal client for the console server.
//
// It puts the local terminal in raw mode, forwards keystrokes as channel
// writes, reports window size changes and prints everything the remote
// program outputs. It exits when the remote session ends.
//
// Usage:
//
//	./client -url http://localhost:8000/console/
//	./client -url http://box:8000/console/ -extra command=htop
//	./client -profile ~/.config/console/box.yaml
//
// Endpoint settings may also come from CLIENT_* environment variables.
package main
