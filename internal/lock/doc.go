// Package lock implements a quorum based distributed mutex (Redlock) over one
// or more independent Redis nodes.
//
// A lock is held only when a strict majority of nodes accepted the owner value
// within the lock validity window, after subtracting the estimated clock drift.
// Acquisition returns a Token: an explicit ownership handle that must be passed
// to Extend, Release or WithHeldLock. Nested critical sections on the same
// resource must receive the outer Token; acquiring again without it competes
// with the outer holder and ends in ErrLockContention.
package lock
