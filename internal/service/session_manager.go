package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/coinscope/internal/config"
	"github.com/yourorg/coinscope/internal/events"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrShuttingDown    = errors.New("session manager is shutting down")
)

// SessionManager creates, tracks and reaps display sessions
type SessionManager struct {
	market      MarketData
	reporter    events.Reporter
	idleTimeout time.Duration
	maxSessions int
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	stop     chan struct{}
	stopOnce sync.Once
	reaper   sync.WaitGroup
}

// NewSessionManager creates a session manager
func NewSessionManager(market MarketData, reporter events.Reporter, cfg config.SessionConfig, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		market:      market,
		reporter:    reporter,
		idleTimeout: cfg.IdleTimeout,
		maxSessions: cfg.MaxSessions,
		logger:      logger,
		sessions:    make(map[string]*Session),
		stop:        make(chan struct{}),
	}
}

// Create starts a new session
func (m *SessionManager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.logger.Warn("Session limit reached", zap.Int("maxSessions", m.maxSessions))
		return nil, ErrTooManySessions
	}

	id := uuid.New().String()
	session := newSession(id, m.market, m.reporter, m.logger, time.Now())
	m.sessions[id] = session

	m.logger.Info("Session created",
		zap.String("sessionID", id),
		zap.Int("active", len(m.sessions)))

	return session, nil
}

// Get returns the session with the given ID
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Touch()
	return session, nil
}

// Close ends the session with the given ID
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Close()
	m.logger.Info("Session closed", zap.String("sessionID", id))
	return nil
}

// Count returns the number of active sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions unused for longer than the idle timeout and
// returns how many were closed
func (m *SessionManager) ReapIdle() int {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, session := range m.sessions {
		if session.LastActive().Before(cutoff) {
			idle = append(idle, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range idle {
		session.Close()
		m.logger.Info("Idle session reaped",
			zap.String("sessionID", session.ID),
			zap.Time("lastActive", session.LastActive()))
	}
	return len(idle)
}

// StartReaper reaps idle sessions every interval until Shutdown
func (m *SessionManager) StartReaper(interval time.Duration) {
	m.reaper.Add(1)
	go func() {
		defer m.reaper.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := m.ReapIdle(); n > 0 {
					m.logger.Debug("Reaper pass finished", zap.Int("reaped", n))
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Shutdown stops the reaper and closes every session
func (m *SessionManager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.reaper.Wait()

	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(session)
	}
	wg.Wait()

	m.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
}
