package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationList holds the ids (jti) of tokens signed out before expiry.
// An entry lapses when the token itself would have expired.
type RevocationList struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{until: make(map[string]time.Time), now: time.Now}
}

// Revoke rejects jti until expiresAt.
func (r *RevocationList) Revoke(jti string, expiresAt time.Time) {
	r.mu.Lock()
	r.until[jti] = expiresAt
	r.mu.Unlock()
}

// Revoked reports whether jti was signed out and has not lapsed yet.
func (r *RevocationList) Revoked(jti string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.until[jti]
	if ok && r.now().After(exp) {
		delete(r.until, jti)
		return false
	}
	return ok
}

// Len returns the number of entries, lapsed ones included until pruned.
func (r *RevocationList) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.until)
}

// Prune drops lapsed entries and returns how many were removed.
func (r *RevocationList) Prune() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for jti, exp := range r.until {
		if now.After(exp) {
			delete(r.until, jti)
			n++
		}
	}
	return n
}

// Run prunes every interval until ctx is done.
func (r *RevocationList) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune()
		}
	}
}
