package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionManager hands out the single client session. The first client to
// connect claims it; others are turned away until it is released or times
// out.
type SessionManager struct {
	token     string
	origin    string // Bound origin for the session
	ip        string // Bound remote address for the session
	apiSecret string // Optional API secret for handshake
	timeout   time.Duration
	timer     *time.Timer
	log       *logrus.Entry
	mu        sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(apiSecret string, timeout time.Duration, log *logrus.Entry) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionManager{
		apiSecret: apiSecret,
		timeout:   timeout,
		log:       log,
	}
}

// Acquire attempts to claim the session. It returns the token, or "" if the
// secret is wrong or the session is already claimed.
func (m *SessionManager) Acquire(secret, origin, remoteAddr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.apiSecret != "" && secret != m.apiSecret {
		return ""
	}
	if m.token != "" {
		return ""
	}

	m.token = uuid.NewString()
	m.origin = origin
	m.ip = remoteAddr

	if m.timer != nil {
		m.timer.Stop()
	}
	token := m.token
	m.timer = time.AfterFunc(m.timeout, func() {
		if m.releaseToken(token) {
			m.log.Info("Session timeout - token released")
		}
	})

	m.log.Infof("Session acquired: %s... (origin: %s, ip: %s)", m.token[:8], origin, remoteAddr)
	return m.token
}

// Validate checks the token and its origin and address binding.
func (m *SessionManager) Validate(token, origin, remoteAddr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" || m.token != token {
		return false
	}
	if m.origin != "" && origin != m.origin {
		m.log.Warnf("Session validation failed: origin mismatch (expected: %s, got: %s)", m.origin, origin)
		return false
	}
	if m.ip != "" && remoteAddr != m.ip {
		m.log.Warnf("Session validation failed: IP mismatch (expected: %s, got: %s)", m.ip, remoteAddr)
		return false
	}
	return true
}

// Active reports whether the session is claimed.
func (m *SessionManager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// Release releases the current session.
func (m *SessionManager) Release() {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	m.releaseToken(token)
}

// releaseToken releases the session only if token still owns it.
func (m *SessionManager) releaseToken(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" || m.token != token {
		return false
	}
	m.log.Infof("Session released: %s...", m.token[:8])
	m.token = ""
	m.origin = ""
	m.ip = ""
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return true
}

// RefreshTimeout resets the session timeout timer
func (m *SessionManager) RefreshTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Reset(m.timeout)
	}
}
