package identity

import "sync"

// Provider supplies the current user identifier, or none for guest sessions
type Provider interface {
	CurrentUserID() (string, bool)
}

// Change identity change notification
type Change struct {
	UserID string // empty for a transition to guest
}

// Notifier a Provider whose identity changes can be observed
type Notifier interface {
	Provider
	Subscribe() <-chan Change
}

// Session explicit per-process identity state. The HTTP layer feeds it from
// verified token claims, the sync coordinator and progress store consume it.
// Replaces the ambient current-user global of earlier designs
type Session struct {
	mu     sync.RWMutex
	userID string
	subs   []chan Change
}

var _ Provider = &Session{}

// NewSession create an anonymous session
func NewSession() *Session {
	return &Session{}
}

// CurrentUserID implement Provider
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// Set record the active identity, notifying subscribers only on an actual
// change
func (s *Session) Set(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	subs := make([]chan Change, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- Change{UserID: userID}:
		default:
		}
	}
}

// Subscribe register an identity change listener
func (s *Session) Subscribe() <-chan Change {
	sub := make(chan Change, 1)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}
