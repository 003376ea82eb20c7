package watchdir

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Open and Watcher methods. Wrap these with
// fmt.Errorf("%w: ...") at the call site when more context is available,
// the same way backend_inotify.go wraps ErrNonExistentWatch.
var (
	// ErrInotifyInit is returned by Open when the inotify facility could
	// not be acquired from the kernel.
	ErrInotifyInit = errors.New("watchdir: failed to initialize inotify")

	// ErrClosed is returned by Watcher methods called after Close.
	ErrClosed = errors.New("watchdir: watcher closed")

	// ErrOverflow is never returned to callers directly; it documents the
	// condition that produces an Overflow HighEvent.
	ErrOverflow = errors.New("watchdir: kernel event queue overflowed")
)

// RootInvalidError is returned by Open when the root argument is not usable
// as a watch root.
type RootInvalidError struct {
	Path   string
	Reason string
}

func (e *RootInvalidError) Error() string {
	return fmt.Sprintf("watchdir: invalid root %q: %s", e.Path, e.Reason)
}

// registryBugError represents an invariant violation in the path registry:
// an operation on an unknown watch id, or a path lying outside the root
// prefix. Per the error taxonomy this is a programmer error, not a runtime
// condition a caller can recover from; the recognizer aborts on it.
type registryBugError struct {
	op   string
	path string
}

func (e *registryBugError) Error() string {
	return fmt.Sprintf("watchdir: registry invariant violated during %s: %q", e.op, e.path)
}

func newPrefixMismatchError(path string) error {
	return &registryBugError{op: "prefix check", path: path}
}

func newValueNotFoundError(wd WatchID) error {
	return &registryBugError{op: "lookup", path: fmt.Sprintf("wd=%d", wd)}
}

func newPathNotFoundError(path string) error {
	return &registryBugError{op: "path lookup", path: path}
}
