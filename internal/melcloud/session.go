package melcloud

import "sync"

// Session is an authenticated MELCloud session.
//
// The token is fixed for the life of the session. The Fahrenheit preference
// can be flipped by a display-unit write while other goroutines read it.
type Session struct {
	token string

	mu            sync.RWMutex
	useFahrenheit bool
}

// NewSession builds a session from an existing context key.
func NewSession(token string, useFahrenheit bool) *Session {
	return &Session{token: token, useFahrenheit: useFahrenheit}
}

// Token returns the context key sent as X-MitsContextKey.
func (s *Session) Token() string {
	return s.token
}

// UseFahrenheit reports the account's display-unit preference.
func (s *Session) UseFahrenheit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useFahrenheit
}

// SetUseFahrenheit records a new display-unit preference locally.
func (s *Session) SetUseFahrenheit(v bool) {
	s.mu.Lock()
	s.useFahrenheit = v
	s.mu.Unlock()
}
