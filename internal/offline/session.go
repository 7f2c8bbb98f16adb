package offline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session holds per-run memory that must not outlive the process: badges
// already granted and reminders already shown. Each Tracker gets its own,
// so parallel tests never share state.
type Session struct {
	ID string

	mu       sync.Mutex
	granted  map[string]bool
	reminded map[int64]bool
}

func NewSession() *Session {
	return &Session{
		ID:       uuid.NewString(),
		granted:  make(map[string]bool),
		reminded: make(map[int64]bool),
	}
}

func (s *Session) Granted(badge string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted[badge]
}

func (s *Session) MarkGranted(badge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[badge] = true
}

// claimReminder reports whether no reminder was shown yet for the completion
// at last, and records that one now has been.
func (s *Session) claimReminder(last time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := last.UnixNano()
	if s.reminded[key] {
		return false
	}
	s.reminded[key] = true
	return true
}
