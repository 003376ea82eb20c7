package watchdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// TimestampedEvent pairs a HighEvent with the wall-clock instant its raw
// record was read off the inotify descriptor, in UTC; offset conversion for
// display is the caller's concern.
type TimestampedEvent struct {
	Event HighEvent
	Time  time.Time
}

// Option configures a Watcher at Open time.
type Option func(*openConfig)

type openConfig struct {
	includeDotDirs bool
	extra          []ExtraEvent
	warn           func(format string, args ...any)
	trace          func(RawEvent)
}

// WithIncludeDotDirs disables the default dot-directory exclusion: entries
// whose basename begins with "." are watched and reported like any other.
func WithIncludeDotDirs() Option {
	return func(c *openConfig) { c.includeDotDirs = true }
}

// WithExtraEvents opts into one or more optional event categories
// (Modify/Access/Attrib/Open/Close) that are not part of the always-on mask.
func WithExtraEvents(events ...ExtraEvent) Option {
	return func(c *openConfig) { c.extra = append(c.extra, events...) }
}

// WithWarnFunc installs a callback for non-fatal diagnostics (a per-watch
// install failure, a swallowed uninstall error). The default is silent.
func WithWarnFunc(warn func(format string, args ...any)) Option {
	return func(c *openConfig) { c.warn = warn }
}

// WithTraceFunc installs a callback invoked with every raw record the
// decoder parses, before recognition. Intended for debug logging; the
// default does nothing.
func WithTraceFunc(trace func(RawEvent)) Option {
	return func(c *openConfig) { c.trace = trace }
}

// Watcher observes a single root directory and its entire subtree for
// filesystem changes, translating inotify's raw record stream into
// HighEvents.
//
// A Watcher should not be copied; pass it by pointer.
//
// Exactly one background goroutine owns the decoder, recognizer, registry
// and installer for the lifetime of the Watcher — the design in §5 deliberately
// rejects cross-goroutine sharing of that state, so no locking is needed
// there. The public surface communicates with that goroutine only through
// the channels below.
type Watcher struct {
	root string

	events chan TimestampedEvent
	errs   chan error

	done     chan struct{} // closed by Close to abandon pending sends
	doneResp chan struct{} // closed by the goroutine when it has exited

	closeOnce sync.Once
	dec       *decoder

	// bufEvent/bufErr hold a value already pulled off events/errs by
	// HasNext but not yet handed to a Next call — the facade's own
	// one-slot cache, the same idiom the recognizer uses for lookahead.
	bufEvent *TimestampedEvent
	bufErr   error
}

// Open installs a watch on root and its entire subtree and starts observing
// it in the background. It fails with a *RootInvalidError if root is not a
// readable directory, or wraps ErrInotifyInit if the kernel facility could
// not be acquired.
func Open(root string, opts ...Option) (*Watcher, error) {
	cfg := &openConfig{warn: func(string, ...any) {}}
	for _, o := range opts {
		o(cfg)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &RootInvalidError{Path: root, Reason: err.Error()}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &RootInvalidError{Path: root, Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &RootInvalidError{Path: root, Reason: "not a directory"}
	}
	if err := unix.Access(abs, unix.R_OK); err != nil {
		return nil, &RootInvalidError{Path: root, Reason: "not readable: " + err.Error()}
	}

	fd, errno := unix.InotifyInit1(unix.IN_CLOEXEC)
	if fd == -1 {
		return nil, fmt.Errorf("%w: %s", ErrInotifyInit, errno)
	}

	mask := eventMask(cfg.extra)
	ins := newInstaller(fd, mask, cfg.includeDotDirs, cfg.warn)
	reg := newRegistry(abs)

	topWD, err := initializeTree(ins, reg, abs)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("watchdir: installing root %q: %w", abs, err)
	}

	dec := newDecoder(fd)
	if cfg.trace != nil {
		dec.trace = cfg.trace
	}
	rec := newRecognizer(dec, reg, ins, topWD, abs, cfg.warn)

	w := &Watcher{
		root:     abs,
		events:   make(chan TimestampedEvent),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		doneResp: make(chan struct{}),
		dec:      dec,
	}
	go w.run(rec)
	return w, nil
}

// Root returns the absolute path the Watcher was opened on. After a MoveTop
// event this path no longer refers to the directory that was watched.
func (w *Watcher) Root() string { return w.root }

// run is the single goroutine that owns the recognizer and everything
// beneath it. A registryBugError panicking out of the recognizer (per the
// error taxonomy, a programmer error) is converted into a fatal error here
// rather than crashing the process.
func (w *Watcher) run(rec *recognizer) {
	defer close(w.doneResp)
	defer func() {
		if p := recover(); p != nil {
			err, ok := p.(error)
			if !ok {
				err = fmt.Errorf("%v", p)
			}
			w.sendError(fmt.Errorf("watchdir: internal error: %w", err))
		}
	}()

	for {
		ev, err := rec.Next()
		now := time.Now().UTC()
		if err != nil {
			w.sendError(err)
			return
		}
		if ev.Kind == Noise {
			continue
		}
		if !w.sendEvent(TimestampedEvent{Event: ev, Time: now}) {
			return
		}
	}
}

func (w *Watcher) sendEvent(e TimestampedEvent) bool {
	select {
	case w.events <- e:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) sendError(err error) bool {
	select {
	case w.errs <- err:
		return true
	case <-w.done:
		return false
	}
}

func (w *Watcher) isClosed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Next blocks until the next HighEvent is available, ctx is done, or the
// Watcher is closed. It returns ErrClosed after Close, and otherwise the
// error the recognizer or decoder failed with. Once the root is deleted,
// unmounted or renamed away, the DeleteTop, UnmountTop or MoveTop event is
// delivered first and the call after it returns an error.
func (w *Watcher) Next(ctx context.Context) (HighEvent, time.Time, error) {
	if w.bufEvent != nil {
		e := *w.bufEvent
		w.bufEvent = nil
		return e.Event, e.Time, nil
	}
	if w.bufErr != nil {
		err := w.bufErr
		w.bufErr = nil
		return HighEvent{}, time.Time{}, err
	}

	select {
	case e := <-w.events:
		return e.Event, e.Time, nil
	case err := <-w.errs:
		return HighEvent{}, time.Time{}, err
	case <-w.done:
		return HighEvent{}, time.Time{}, ErrClosed
	case <-ctx.Done():
		return HighEvent{}, time.Time{}, ctx.Err()
	}
}

// HasNext reports whether a call to Next would return immediately, without
// blocking. Like Next, it is meant to be called from a single consumer
// goroutine at a time.
func (w *Watcher) HasNext() bool {
	if w.bufEvent != nil || w.bufErr != nil {
		return true
	}
	select {
	case e := <-w.events:
		w.bufEvent = &e
		return true
	case err := <-w.errs:
		w.bufErr = err
		return true
	default:
		return false
	}
}

// Events returns the channel of delivered events, for callers that prefer a
// channel-based consumption style (e.g. inside a select alongside other
// work) over calling Next in a loop.
func (w *Watcher) Events() <-chan TimestampedEvent { return w.events }

// Errors returns the channel of fatal errors. At most one value is ever
// sent, immediately before the Watcher stops.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the Watcher: any event already enqueued but not yet
// delivered is dropped, the inotify descriptor is closed (which atomically
// tears down every outstanding kernel watch), and Close waits for the
// background goroutine to exit before returning.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	err := w.dec.Close()
	<-w.doneResp
	return err
}
