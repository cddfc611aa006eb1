package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
)

// ErrCommandNotPermitted is returned by MenuStarter for commands outside its
// permitted list.
var ErrCommandNotPermitted = errors.New("command not permitted")

// Starter starts the program for a new session. extra holds the parameters
// sent by the client that opened the session.
type Starter interface {
	Start(extra map[string]string) (Process, error)
}

// StarterFunc adapts a function to the Starter interface.
type StarterFunc func(extra map[string]string) (Process, error)

// Start calls f(extra).
func (f StarterFunc) Start(extra map[string]string) (Process, error) {
	return f(extra)
}

// CommandStarter runs the same command for every session.
type CommandStarter struct {
	Command []string
	Dir     string
	Env     map[string]string
}

// NewCommandStarter splits command on whitespace. No shell expansion is done.
func NewCommandStarter(command string) *CommandStarter {
	return &CommandStarter{Command: strings.Fields(command)}
}

// Start ignores extra.
func (s *CommandStarter) Start(map[string]string) (Process, error) {
	return startCommand(s.Command, s.Dir, s.Env)
}

// MenuStarter runs extra["command"] if it is one of Permitted.
type MenuStarter struct {
	Permitted []string
	Dir       string
	Env       map[string]string
}

// Start validates extra["command"] before running it. Clients choose the
// command, so this is the real check.
func (s *MenuStarter) Start(extra map[string]string) (Process, error) {
	command := extra["command"]
	if !s.IsPermitted(command) {
		return nil, fmt.Errorf("%w: %q", ErrCommandNotPermitted, command)
	}
	return startCommand(strings.Fields(command), s.Dir, s.Env)
}

// IsPermitted reports whether command is in the permitted list.
func (s *MenuStarter) IsPermitted(command string) bool {
	return command != "" && slices.Contains(s.Permitted, command)
}

func startCommand(args []string, dir string, env map[string]string) (Process, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	return StartPTY(cmd)
}
