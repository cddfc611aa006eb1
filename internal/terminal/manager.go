package terminal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrInvalidSize     = errors.New("invalid terminal size")
	ErrTooManySessions = errors.New("too many sessions")
)

// Recorder observes session activity. monitoring.Metrics implements it.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	AddInput(n int)
	AddOutput(n int)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened() {}
func (nopRecorder) SessionClosed() {}
func (nopRecorder) AddInput(int)   {}
func (nopRecorder) AddOutput(int)  {}

// Config holds session manager settings.
type Config struct {
	// BufferSize is the per-session output buffer in bytes.
	BufferSize int
	// IdleTimeout is how long a session may go without requests before it
	// is killed. Zero disables reaping.
	IdleTimeout time.Duration
	// MaxSessions caps how many sessions may be held at once, including
	// exited ones not yet killed or reaped. Zero means no limit.
	MaxSessions int
}

// DefaultConfig returns the default manager settings.
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024 * 1024, // 1MB buffer
		IdleTimeout: 30 * time.Minute,
		MaxSessions: 64,
	}
}

// Manager manages terminal sessions
type Manager struct {
	starter Starter
	cfg     Config
	logger  *zap.Logger
	rec     Recorder

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRecorder reports session activity to rec.
func WithRecorder(rec Recorder) Option {
	return func(m *Manager) {
		m.rec = rec
	}
}

// NewManager creates a new session manager
func NewManager(starter Starter, cfg Config, opts ...Option) *Manager {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	m := &Manager{
		starter:  starter,
		cfg:      cfg,
		logger:   zap.NewNop(),
		rec:      nopRecorder{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the session with the given id, starting a program with extra
// if there is none yet.
func (m *Manager) Open(id string, extra map[string]string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		return session, nil
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.cfg.MaxSessions)
	}

	process, err := m.starter.Start(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to start session %s: %w", id, err)
	}

	session := newSession(id, extra, process, m.cfg.BufferSize, m.rec)
	m.sessions[id] = session
	m.rec.SessionOpened()
	m.logger.Info("Session started", zap.String("session_id", id))

	go func() {
		session.run()
		m.logger.Info("Session finished",
			zap.String("session_id", id),
			zap.NamedError("exit", session.ExitErr()),
		)
	}()

	return session, nil
}

// Lookup returns an existing session.
func (m *Manager) Lookup(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Get retrieves session info
func (m *Manager) Get(id string) (*SessionInfo, error) {
	session, err := m.Lookup(id)
	if err != nil {
		return nil, err
	}
	info := session.Info()
	return &info, nil
}

// List returns all sessions ordered by start time.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Kill terminates a session and forgets it.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m.terminate(session)
}

// ReapIdle kills sessions untouched since before now minus the idle timeout
// and returns how many were removed.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, session := range m.sessions {
		if session.idleSince(cutoff) {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range idle {
		m.logger.Info("Reaping idle session", zap.String("session_id", session.ID))
		if err := m.terminate(session); err != nil {
			m.logger.Warn("Failed to kill idle session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.ReapIdle(now)
		}
	}
}

// Close kills every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		if err := m.terminate(session); err != nil {
			m.logger.Warn("Failed to kill session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
}

func (m *Manager) terminate(session *Session) error {
	m.rec.SessionClosed()
	if session.isClosed() {
		return nil // Already exited
	}
	return session.kill()
}
