// Package terminaltest provides an in-memory terminal program for tests.
package terminaltest

import (
	"bytes"
	"io"
	"sync"
)

// Process is a scripted terminal program. Output is produced with Emit and
// the program ends with Exit or Kill. It satisfies terminal.Process.
type Process struct {
	out    *io.PipeReader
	outW   *io.PipeWriter
	exited chan struct{}
	once   sync.Once

	mu      sync.Mutex
	exitErr error
	input   bytes.Buffer
	sizes   [][2]int
	killed  bool
	closed  bool
}

// NewProcess returns a running Process.
func NewProcess() *Process {
	r, w := io.Pipe()
	return &Process{out: r, outW: w, exited: make(chan struct{})}
}

func (p *Process) Read(b []byte) (int, error) { return p.out.Read(b) }

func (p *Process) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *Process) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.out.Close()
}

func (p *Process) Resize(columns, rows int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizes = append(p.sizes, [2]int{columns, rows})
	return nil
}

func (p *Process) Wait() error {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(nil)
	return nil
}

// Emit writes program output. It blocks until the reader has taken it.
func (p *Process) Emit(s string) error {
	_, err := p.outW.Write([]byte(s))
	return err
}

// Exit ends the program with err. Later calls do nothing.
func (p *Process) Exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		p.outW.Close()
		close(p.exited)
	})
}

// Input returns everything written to the program.
func (p *Process) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// Sizes returns every resize in order.
func (p *Process) Sizes() [][2]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]int(nil), p.sizes...)
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Starter hands out Processes and remembers the extra parameters of each.
type Starter struct {
	// Err, when set, is returned instead of starting a program.
	Err error

	mu        sync.Mutex
	processes []*Process
	extras    []map[string]string
}

// Start records extra and returns a new Process.
func (s *Starter) Start(extra map[string]string) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p := NewProcess()
	s.processes = append(s.processes, p)
	s.extras = append(s.extras, extra)
	return p, nil
}

// Started returns how many programs were started.
func (s *Starter) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

// Process returns the i-th started program.
func (s *Starter) Process(i int) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[i]
}

// Extra returns the parameters the i-th program was started with.
func (s *Starter) Extra(i int) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extras[i]
}
