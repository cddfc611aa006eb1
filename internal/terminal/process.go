package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Default dimensions for new sessions.
const (
	DefaultColumns = 80
	DefaultRows    = 24
)

// Process is a running terminal program. Read returns its output and Write
// feeds its input.
type Process interface {
	io.ReadWriteCloser
	Resize(columns, rows int) error
	Wait() error
	Kill() error
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// StartPTY starts cmd attached to a new pseudo-terminal.
func StartPTY(cmd *exec.Cmd) (Process, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(DefaultRows),
		Cols: uint16(DefaultColumns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}
	return &ptyProcess{cmd: cmd, ptmx: ptmx}, nil
}

func (p *ptyProcess) Read(b []byte) (int, error)  { return p.ptmx.Read(b) }
func (p *ptyProcess) Write(b []byte) (int, error) { return p.ptmx.Write(b) }
func (p *ptyProcess) Close() error                { return p.ptmx.Close() }
func (p *ptyProcess) Wait() error                 { return p.cmd.Wait() }

func (p *ptyProcess) Resize(columns, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(columns),
	})
}

func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
