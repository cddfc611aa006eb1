package terminal

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// Session is a running program bound to a client session identifier.
type Session struct {
	ID        string
	Extra     map[string]string
	StartedAt time.Time

	process Process
	output  *Buffer
	done    chan struct{} // closed once process output has ended
	rec     Recorder

	mu         sync.RWMutex
	cols       int
	rows       int
	lastActive time.Time
	readers    int
	closed     bool
	exitErr    error
}

// SessionInfo is the public representation of a session
type SessionInfo struct {
	ID         string            `json:"id"`
	Extra      map[string]string `json:"extra,omitempty"`
	Cols       int               `json:"cols"`
	Rows       int               `json:"rows"`
	StartedAt  time.Time         `json:"started_at"`
	LastActive time.Time         `json:"last_active"`
	Active     bool              `json:"active"`
	Buffered   int               `json:"buffered"`
}

func newSession(id string, extra map[string]string, process Process, bufferSize int, rec Recorder) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Extra:      extra,
		StartedAt:  now,
		process:    process,
		output:     NewBuffer(bufferSize),
		done:       make(chan struct{}),
		rec:        rec,
		cols:       DefaultColumns,
		rows:       DefaultRows,
		lastActive: now,
	}
}

// run pumps output until the process stops producing it, then reaps it. The
// pump stalls while the output buffer is full, which in turn stalls the
// program once the pty fills up.
func (s *Session) run() {
	buf := make([]byte, 4096)
	for {
		n, err := s.process.Read(buf)
		if n > 0 {
			if _, werr := s.output.Write(buf[:n]); werr != nil {
				break
			}
			s.rec.AddOutput(n)
		}
		if err != nil {
			break
		}
	}
	close(s.done)

	err := s.process.Wait()
	s.process.Close()

	s.mu.Lock()
	s.closed = true
	s.exitErr = err
	s.mu.Unlock()
}

// Write sends input to the program.
func (s *Session) Write(data []byte) error {
	if s.isClosed() {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.ID)
	}
	s.touch()

	if _, err := s.process.Write(data); err != nil {
		return fmt.Errorf("failed to write to session %s: %w", s.ID, err)
	}
	s.rec.AddInput(len(data))
	return nil
}

// Read waits until output is available and returns it. Once the program has
// exited and its output is drained, Read returns io.EOF.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	s.readers++
	s.lastActive = time.Now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.readers--
		s.lastActive = time.Now()
		s.mu.Unlock()
	}()

	for {
		if data := s.output.ReadComplete(); len(data) > 0 {
			return data, nil
		}

		select {
		case <-s.output.Ready():
		case <-s.done:
			// nothing more will arrive; hand over any incomplete tail as is
			if data := s.output.ReadAll(); len(data) > 0 {
				return data, nil
			}
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// MaxDimension is the largest column or row count a pty accepts.
const MaxDimension = math.MaxUint16

// Resize changes the terminal dimensions.
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > MaxDimension || rows > MaxDimension {
		return fmt.Errorf("%w: invalid columns/rows: %d/%d", ErrInvalidSize, cols, rows)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.ID)
	}
	s.lastActive = time.Now()

	if err := s.process.Resize(cols, rows); err != nil {
		return fmt.Errorf("failed to resize session %s: %w", s.ID, err)
	}
	s.cols = cols
	s.rows = rows
	return nil
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:         s.ID,
		Extra:      s.Extra,
		Cols:       s.cols,
		Rows:       s.rows,
		StartedAt:  s.StartedAt,
		LastActive: s.lastActive,
		Active:     !s.closed,
		Buffered:   s.output.Len(),
	}
}

// ExitErr returns the error the program exited with, if it has exited.
func (s *Session) ExitErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitErr
}

// Done is closed once the program's output has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// kill releases a pump blocked on a full buffer and stops the program.
func (s *Session) kill() error {
	s.output.Close()
	return s.process.Kill()
}

// idleSince reports whether nothing touched the session after t. A pending
// long-poll read keeps it active.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readers == 0 && s.lastActive.Before(t)
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}
