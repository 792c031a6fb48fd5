package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/PuraVida-Technologies/galoy/internal/metrics"
)

var tracer = otel.Tracer("services.lock")

// Manager coordinates quorum locks over a fixed set of independent stores.
// It is safe for concurrent use.
type Manager struct {
	stores []Store
	quorum int
	cfg    Config
	logger *slog.Logger
	held   *xsync.MapOf[string, *Token]
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager validates cfg and builds a manager over stores.
func NewManager(stores []Store, cfg Config, opts ...Option) (*Manager, error) {
	if len(stores) == 0 {
		return nil, ErrNoStores
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		stores: stores,
		quorum: len(stores)/2 + 1,
		cfg:    cfg.withDefaults(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		held:   xsync.NewMapOf[string, *Token](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Quorum returns the number of nodes that must agree.
func (m *Manager) Quorum() int { return m.quorum }

// Held returns the number of tokens this manager currently holds.
func (m *Manager) Held() int { return m.held.Size() }

// WalletResource scopes a lock to a wallet.
func WalletResource(walletID string) string { return walletID }

// Acquire obtains the resource lock or fails with ErrLockContention once the
// attempt budget is spent. A non-positive ttl falls back to Config.TTL.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	ctx, span := tracer.Start(ctx, "services.lock.acquire", trace.WithAttributes(
		attribute.String("lock.resource", resource),
		attribute.Int64("lock.ttl_ms", ttl.Milliseconds()),
	))
	defer span.End()

	key := m.cfg.KeyPrefix + resource
	value := uuid.NewString()
	attempts := m.cfg.RetryCount + 1
	drift := m.cfg.drift(ttl)

	var lastErr error
	backendOnly := true
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, m.retryDelay()); err != nil {
				metrics.LockAcquisitions.WithLabelValues("canceled").Inc()
				return nil, fmt.Errorf("acquire %s: %w", resource, err)
			}
		}
		if err := ctx.Err(); err != nil {
			metrics.LockAcquisitions.WithLabelValues("canceled").Inc()
			return nil, fmt.Errorf("acquire %s: %w", resource, err)
		}

		metrics.LockAttempts.Inc()
		start := time.Now()
		t := m.fanOut(ctx, func(ctx context.Context, s Store) (bool, error) {
			return s.SetIfAbsent(ctx, key, value, ttl)
		})
		expiresAt := start.Add(ttl - drift)

		if t.votes >= m.quorum && time.Now().Before(expiresAt) {
			token := newToken(resource, key, value, start, expiresAt, attempt)
			m.held.Store(value, token)
			metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
			span.SetAttributes(attribute.Int("lock.attempts", attempt))
			m.logger.Debug("lock acquired", "resource", resource, "attempt", attempt, "votes", t.votes)
			return token, nil
		}

		if t.refusals > 0 || t.votes > 0 {
			backendOnly = false
		}
		if err := t.err(); err != nil {
			lastErr = err
			m.logger.Warn("lock node errors", "resource", resource, "attempt", attempt, "error", err)
		}
		// undo partial holds so the losing round does not block others until ttl
		m.fanOut(context.WithoutCancel(ctx), func(ctx context.Context, s Store) (bool, error) {
			return s.DeleteIfOwner(ctx, key, value)
		})
	}

	if backendOnly && lastErr != nil {
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		err := &UnknownLockServiceError{Resource: resource, Err: lastErr}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock backend unavailable")
		return nil, err
	}

	metrics.LockAcquisitions.WithLabelValues("contention").Inc()
	span.SetStatus(codes.Error, "lock contention")
	m.logger.Info("lock contention", "resource", resource, "attempts", attempts)
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrLockContention, resource, attempts)
}

// Extend refreshes the token validity to ttl from now across the quorum. An
// expired or aborted token is rejected without touching the stores; a failed
// extension aborts the token.
func (m *Manager) Extend(ctx context.Context, token *Token, ttl time.Duration) (*Token, error) {
	if token == nil {
		return nil, ErrNilToken
	}
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	ctx, span := tracer.Start(ctx, "services.lock.extend", trace.WithAttributes(
		attribute.String("lock.resource", token.resource),
	))
	defer span.End()

	if err := token.Err(); err != nil {
		metrics.LockExtensions.WithLabelValues("expired").Inc()
		span.SetStatus(codes.Error, "token not alive")
		return nil, fmt.Errorf("extend %s: %w", token.resource, err)
	}

	start := time.Now()
	t := m.fanOut(ctx, func(ctx context.Context, s Store) (bool, error) {
		return s.ExtendIfOwner(ctx, token.key, token.value, ttl)
	})
	expiresAt := start.Add(ttl - m.cfg.drift(ttl))

	if t.votes >= m.quorum && time.Now().Before(expiresAt) {
		if err := token.refresh(expiresAt); err != nil {
			metrics.LockExtensions.WithLabelValues("expired").Inc()
			return nil, fmt.Errorf("extend %s: %w", token.resource, err)
		}
		metrics.LockExtensions.WithLabelValues("extended").Inc()
		return token, nil
	}

	// A caller that gave up did not lose the lock; Release still follows.
	if cause := context.Cause(ctx); cause != nil {
		span.SetStatus(codes.Error, "canceled")
		return nil, fmt.Errorf("extend %s: %w", token.resource, cause)
	}
	err := fmt.Errorf("%w: %s got %d of %d votes", ErrExtensionFailed, token.resource, t.votes, m.quorum)
	if nodeErr := t.err(); nodeErr != nil {
		err = fmt.Errorf("%w: %w", err, nodeErr)
	}
	token.abort(err)
	metrics.LockExtensions.WithLabelValues("failed").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "extension failed")
	m.logger.Warn("lock extension failed", "resource", token.resource, "votes", t.votes, "error", err)
	return nil, err
}

// Release frees the token on every node. It is idempotent and runs even when
// ctx is already canceled.
func (m *Manager) Release(ctx context.Context, token *Token) error {
	if token == nil {
		return ErrNilToken
	}
	if !token.markReleased() {
		return nil
	}
	m.held.Delete(token.value)
	metrics.LockHeld.Observe(time.Since(token.acquiredAt).Seconds())

	ctx, span := tracer.Start(context.WithoutCancel(ctx), "services.lock.release", trace.WithAttributes(
		attribute.String("lock.resource", token.resource),
	))
	defer span.End()

	t := m.fanOut(ctx, func(ctx context.Context, s Store) (bool, error) {
		return s.DeleteIfOwner(ctx, token.key, token.value)
	})
	if len(t.errs) > 0 && t.votes+t.refusals < m.quorum {
		err := &UnknownLockServiceError{Resource: token.resource, Err: t.err()}
		span.RecordError(err)
		m.logger.Warn("lock release incomplete, waiting for ttl", "resource", token.resource, "error", err)
		return err
	}
	m.logger.Debug("lock released", "resource", token.resource)
	return nil
}

// Close releases every token still held by this manager.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	m.held.Range(func(_ string, token *Token) bool {
		if err := m.Release(ctx, token); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

func (m *Manager) retryDelay() time.Duration {
	d := m.cfg.RetryDelay
	if m.cfg.RetryJitter > 0 {
		d += rand.N(m.cfg.RetryJitter)
	}
	return d
}

type tally struct {
	votes    int
	refusals int
	errs     []error
}

func (t tally) err() error {
	return errors.Join(t.errs...)
}

// fanOut runs op against every store concurrently and counts the answers.
func (m *Manager) fanOut(ctx context.Context, op func(context.Context, Store) (bool, error)) tally {
	type answer struct {
		ok  bool
		err error
	}
	answers := make([]answer, len(m.stores))

	var g errgroup.Group
	for i, s := range m.stores {
		g.Go(func() error {
			nodeCtx, cancel := context.WithTimeout(ctx, m.cfg.NodeTimeout)
			defer cancel()
			ok, err := op(nodeCtx, s)
			answers[i] = answer{ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var t tally
	for i, a := range answers {
		switch {
		case a.err != nil:
			t.errs = append(t.errs, fmt.Errorf("node %d: %w", i, a.err))
		case a.ok:
			t.votes++
		default:
			t.refusals++
		}
	}
	return t
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
