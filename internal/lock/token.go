package lock

import (
	"sync"
	"time"
)

// Token proves ownership of a locked resource. It is created by Acquire,
// refreshed by Extend and invalidated by Release, expiry or a failed
// extension. A Token is never reused across acquisitions.
type Token struct {
	resource   string
	key        string
	value      string
	acquiredAt time.Time
	attempts   int

	mu        sync.Mutex
	expiresAt time.Time
	cause     error
	released  bool
	done      chan struct{}
	extended  chan struct{}
}

func newToken(resource, key, value string, acquiredAt, expiresAt time.Time, attempts int) *Token {
	return &Token{
		resource:   resource,
		key:        key,
		value:      value,
		acquiredAt: acquiredAt,
		attempts:   attempts,
		expiresAt:  expiresAt,
		done:       make(chan struct{}),
		extended:   make(chan struct{}, 1),
	}
}

// Resource returns the resource path the token guards.
func (t *Token) Resource() string { return t.resource }

// Value returns the opaque owner value stored on the lock nodes.
func (t *Token) Value() string { return t.value }

// Attempts returns how many acquisition rounds were needed.
func (t *Token) Attempts() int { return t.attempts }

// ExpiresAt returns the end of the current validity window.
func (t *Token) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt
}

// Err returns nil while the token still grants exclusivity.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cause != nil {
		return t.cause
	}
	if !time.Now().Before(t.expiresAt) {
		return ErrLockExpired
	}
	return nil
}

// Alive is the cooperative check callers run around every network round trip.
func (t *Token) Alive() bool {
	return t.Err() == nil
}

// Done is closed once the token is aborted or released. Natural expiry does
// not close it; use Err or the context handed out by WithLock for that.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

func (t *Token) abort(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cause != nil {
		return
	}
	t.cause = cause
	close(t.done)
}

// markReleased flips the token into the released state once.
func (t *Token) markReleased() bool {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return false
	}
	t.released = true
	if t.cause == nil {
		t.cause = ErrLockReleased
		close(t.done)
	}
	t.mu.Unlock()
	return true
}

// refresh moves the validity window; it fails on an aborted token.
func (t *Token) refresh(expiresAt time.Time) error {
	t.mu.Lock()
	if t.cause != nil {
		t.mu.Unlock()
		return t.cause
	}
	t.expiresAt = expiresAt
	t.mu.Unlock()

	select {
	case t.extended <- struct{}{}:
	default:
	}
	return nil
}
