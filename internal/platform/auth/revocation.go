package auth

import (
	"sync"
	"time"
)

// RevocationList remembers the IDs of sessions ended by logout until their
// tokens would have expired anyway.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke adds a session ID to the list and drops entries already past expiry.
func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, id)
		}
	}
	l.entries[jti] = expiresAt
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.entries[jti]
	return ok
}

// Count returns the number of tracked revocations.
func (l *RevocationList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
