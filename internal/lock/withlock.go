package lock

import (
	"context"
	"fmt"
	"time"
)

// Body is a critical section. ctx is canceled as soon as token stops granting
// exclusivity; pass token down to nested sections explicitly.
type Body func(ctx context.Context, token *Token) error

// WithLock acquires resource, runs body and releases the lock on every exit
// path, including panics, which are re-raised after release.
func (m *Manager) WithLock(ctx context.Context, resource string, ttl time.Duration, body Body) error {
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	token, err := m.Acquire(ctx, resource, ttl)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithCancelCause(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		m.watch(lockCtx, cancel, token, ttl)
	}()

	defer func() {
		cancel(ErrLockReleased)
		<-watchDone
		if relErr := m.Release(context.WithoutCancel(ctx), token); relErr != nil {
			m.logger.Warn("release after critical section", "resource", resource, "error", relErr)
		}
	}()

	return m.run(lockCtx, token, body)
}

// WithHeldLock runs body under a token obtained by an outer WithLock or
// Acquire. The stores are not contacted.
func (m *Manager) WithHeldLock(ctx context.Context, token *Token, body Body) error {
	if token == nil {
		return ErrNilToken
	}
	return m.run(ctx, token, body)
}

func (m *Manager) run(ctx context.Context, token *Token, body Body) error {
	if err := token.Err(); err != nil {
		return fmt.Errorf("%s: %w", token.resource, err)
	}
	if err := context.Cause(ctx); err != nil {
		return fmt.Errorf("%s: %w", token.resource, err)
	}
	return body(ctx, token)
}

// watch cancels ctx when token expires or is aborted, extending it first when
// auto extension is enabled.
func (m *Manager) watch(ctx context.Context, cancel context.CancelCauseFunc, token *Token, ttl time.Duration) {
	threshold := m.cfg.AutoExtendThreshold
	autoExtend := threshold > 0 && threshold < ttl

	for {
		wait := time.Until(token.ExpiresAt())
		if autoExtend {
			wait -= threshold
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-token.Done():
			timer.Stop()
			cancel(token.Err())
			return
		case <-token.extended:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if ctx.Err() != nil {
			return
		}
		if autoExtend {
			if _, err := m.Extend(ctx, token, ttl); err != nil {
				if ctx.Err() == nil {
					cancel(err)
				}
				return
			}
			continue
		}
		if err := token.Err(); err != nil {
			cancel(err)
			return
		}
	}
}
