package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrLockContention is returned when the attempt budget is exhausted while
	// other holders keep the resource. It is an expected outcome under load.
	ErrLockContention = errors.New("lock: resource attempts exhausted")

	// ErrLockExpired indicates the token validity window has passed.
	ErrLockExpired = errors.New("lock: token expired")

	// ErrExtensionFailed indicates the quorum did not confirm an extension. The
	// token is aborted and the critical section must not continue.
	ErrExtensionFailed = errors.New("lock: extension failed")

	// ErrLockReleased is the abort cause of a token after Release.
	ErrLockReleased = errors.New("lock: token released")

	// ErrNilToken is returned when a nil token is handed to the manager.
	ErrNilToken = errors.New("lock: token is nil")

	// ErrNoStores is returned by NewManager without any lock store.
	ErrNoStores = errors.New("lock: at least one store is required")
)

// UnknownLockServiceError wraps an unexpected fault of the lock backend, such
// as every node being unreachable.
type UnknownLockServiceError struct {
	Resource string
	Err      error
}

func (e *UnknownLockServiceError) Error() string {
	return fmt.Sprintf("lock: unknown lock service error on %s: %v", e.Resource, e.Err)
}

func (e *UnknownLockServiceError) Unwrap() error {
	return e.Err
}

// IsContention reports whether err is a lock contention outcome.
func IsContention(err error) bool {
	return errors.Is(err, ErrLockContention)
}
