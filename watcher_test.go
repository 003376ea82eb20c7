package watchdir

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rydesun/watchdir/internal/testtree"
)

// nextEvent waits up to a few seconds for the next HighEvent, skipping
// Ignored, which is implementation detail rather than something a test
// scenario drives deliberately (Noise never reaches a consumer).
func nextEvent(t *testing.T, w *Watcher) HighEvent {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ev, _, err := w.Next(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Next: %s", err)
		}
		if ev.Kind == Ignored {
			continue
		}
		return ev
	}
}

func openWatcher(t *testing.T, root string, opts ...Option) *Watcher {
	t.Helper()
	w, err := Open(root, opts...)
	if err != nil {
		t.Fatalf("Open(%q): %s", root, err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcherCreateFile(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	path := testtree.Touch(t, root, "hello.txt")

	ev := nextEvent(t, w)
	if ev.Kind != Create || ev.Path != path || ev.Type != File {
		t.Fatalf("got %s, want Create(%s, file)", ev, path)
	}
}

func TestWatcherCreateDirIsAmplified(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	sub := filepath.Join(root, "sub")
	testtree.Mkdir(t, sub)
	testtree.Mkdir(t, sub, "nested")

	ev := nextEvent(t, w)
	if ev.Kind != Create || ev.Path != sub || ev.Type != Dir {
		t.Fatalf("got %s, want Create(%s, dir)", ev, sub)
	}

	// The new directory is itself watched immediately, so its own child is
	// reported as an ordinary Create, not folded into the amplification.
	nested := filepath.Join(sub, "nested")
	ev = nextEvent(t, w)
	if ev.Kind != Create || ev.Path != nested || ev.Type != Dir {
		t.Fatalf("got %s, want Create(%s, dir)", ev, nested)
	}
}

// TestWatcherCreateMultiLevelDirIsAmplifiedInOnePass creates an entire
// multi-level subtree in a single mkdir -p, so the top-level CREATE record
// is the only one the kernel ever produces for it: installAmplified must
// discover x/y and x/y/z itself during the recursive install and queue a
// Create for each, in pre-order.
func TestWatcherCreateMultiLevelDirIsAmplifiedInOnePass(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	x := filepath.Join(root, "x")
	y := filepath.Join(x, "y")
	z := filepath.Join(x, "y", "z")
	testtree.MkdirAll(t, z)

	want := []string{x, y, z}
	for _, path := range want {
		ev := nextEvent(t, w)
		if ev.Kind != Create || ev.Path != path || ev.Type != Dir {
			t.Fatalf("got %s, want Create(%s, dir)", ev, path)
		}
	}
}

func TestWatcherDotDirExcludedThenAdmittedOnRename(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	hidden := testtree.Mkdir(t, root, ".hidden")
	_ = nextEvent(t, w)                     // Create(.hidden, dir)
	testtree.Touch(t, hidden, "inside.txt") // never watched, never reported

	renamed := filepath.Join(root, "visible")
	testtree.Move(t, hidden, renamed)

	ev := nextEvent(t, w)
	if ev.Kind != Move || ev.OldPath != hidden || ev.Path != renamed || ev.Type != Dir {
		t.Fatalf("got %s, want Move(%s -> %s, dir)", ev, hidden, renamed)
	}

	// Now that the directory is admitted, a file created inside it is
	// reported like any other.
	inner := testtree.Touch(t, renamed, "now-visible.txt")
	ev = nextEvent(t, w)
	if ev.Kind != Create || ev.Path != inner {
		t.Fatalf("got %s, want Create(%s)", ev, inner)
	}
}

func TestWatcherIncludeDotDirs(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root, WithIncludeDotDirs())

	hidden := filepath.Join(root, ".hidden")
	testtree.Mkdir(t, hidden)

	ev := nextEvent(t, w)
	if ev.Kind != Create || ev.Path != hidden || ev.Type != Dir {
		t.Fatalf("got %s, want Create(%s, dir)", ev, hidden)
	}

	inner := testtree.Touch(t, hidden, "child.txt")
	ev = nextEvent(t, w)
	if ev.Kind != Create || ev.Path != inner {
		t.Fatalf("got %s, want Create(%s)", ev, inner)
	}
}

func TestWatcherMoveWithinRoot(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	sub := testtree.Mkdir(t, root, "sub")
	_ = nextEvent(t, w) // Create(sub, dir)

	renamed := filepath.Join(root, "renamed")
	testtree.Move(t, sub, renamed)

	ev := nextEvent(t, w)
	if ev.Kind != Move || ev.OldPath != sub || ev.Path != renamed || ev.Type != Dir {
		t.Fatalf("got %s, want Move(%s -> %s, dir)", ev, sub, renamed)
	}

	// The registry's rename updated the moved directory's path: a file
	// created in its new location resolves under the new name.
	inner := testtree.Touch(t, renamed, "child.txt")
	ev = nextEvent(t, w)
	if ev.Kind != Create || ev.Path != inner {
		t.Fatalf("got %s, want Create(%s)", ev, inner)
	}
}

func TestWatcherMoveFileWithinRoot(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	f := testtree.Touch(t, root, "a.txt")
	_ = nextEvent(t, w) // Create(a.txt, file)

	renamed := filepath.Join(root, "b.txt")
	testtree.Move(t, f, renamed)

	ev := nextEvent(t, w)
	if ev.Kind != Move || ev.OldPath != f || ev.Path != renamed || ev.Type != File {
		t.Fatalf("got %s, want Move(%s -> %s, file)", ev, f, renamed)
	}
}

func TestWatcherMoveOutOfRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	w := openWatcher(t, root)

	sub := testtree.Mkdir(t, root, "sub")
	_ = nextEvent(t, w) // Create(sub, dir)

	dst := filepath.Join(outside, "sub")
	testtree.Move(t, sub, dst)

	ev := nextEvent(t, w)
	if ev.Kind != MoveAway || ev.Path != sub || ev.Type != Dir {
		t.Fatalf("got %s, want MoveAway(%s, dir)", ev, sub)
	}
}

func TestWatcherMoveIntoRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	src := testtree.Mkdir(t, outside, "incoming")
	w := openWatcher(t, root)

	dst := filepath.Join(root, "incoming")
	testtree.Move(t, src, dst)

	ev := nextEvent(t, w)
	if ev.Kind != MoveInto || ev.Path != dst || ev.Type != Dir {
		t.Fatalf("got %s, want MoveInto(%s, dir)", ev, dst)
	}

	// The moved-in directory is now watched: a child create is reported.
	inner := testtree.Touch(t, dst, "child.txt")
	ev = nextEvent(t, w)
	if ev.Kind != Create || ev.Path != inner {
		t.Fatalf("got %s, want Create(%s)", ev, inner)
	}
}

func TestWatcherDeleteFile(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	f := testtree.Touch(t, root, "gone.txt")
	_ = nextEvent(t, w) // Create

	testtree.Remove(t, f)
	ev := nextEvent(t, w)
	if ev.Kind != Delete || ev.Path != f || ev.Type != File {
		t.Fatalf("got %s, want Delete(%s, file)", ev, f)
	}
}

func TestWatcherDeleteDir(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	sub := testtree.Mkdir(t, root, "sub")
	_ = nextEvent(t, w) // Create(sub, dir)

	testtree.Remove(t, sub)
	ev := nextEvent(t, w)
	if ev.Kind != Delete || ev.Path != sub || ev.Type != Dir {
		t.Fatalf("got %s, want Delete(%s, dir)", ev, sub)
	}
}

func TestWatcherDeleteRoot(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	testtree.RemoveAll(t, root)

	ev := nextEvent(t, w)
	if ev.Kind != DeleteTop || ev.Path != root {
		t.Fatalf("got %s, want DeleteTop(%s)", ev, root)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := w.Next(ctx); err != errDone {
		t.Fatalf("Next after DeleteTop = %v, want errDone", err)
	}
}

func TestWatcherMoveRoot(t *testing.T) {
	parent := t.TempDir()
	root := testtree.Mkdir(t, parent, "root")
	w := openWatcher(t, root)

	renamed := filepath.Join(parent, "moved")
	testtree.Move(t, root, renamed)

	ev := nextEvent(t, w)
	if ev.Kind != MoveTop || ev.Path != root {
		t.Fatalf("got %s, want MoveTop(%s)", ev, root)
	}
}

func TestWatcherModifyThrottleIsCallerConcern(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root, WithExtraEvents(ExtraModify))

	f := testtree.Touch(t, root, "f.txt")
	_ = nextEvent(t, w) // Create

	testtree.Write(t, "hello", f)
	ev := nextEvent(t, w)
	if ev.Kind != Modify || ev.Path != f {
		t.Fatalf("got %s, want Modify(%s)", ev, f)
	}
}

func TestWatcherRejectsNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	f := testtree.Touch(t, root, "file.txt")

	_, err := Open(f)
	if err == nil {
		t.Fatal("Open on a regular file should fail")
	}
	if _, ok := err.(*RootInvalidError); !ok {
		t.Fatalf("Open err = %v (%T), want *RootInvalidError", err, err)
	}
}

func TestWatcherCloseUnblocksNext(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, _, err := w.Next(ctx); err != ErrClosed {
			t.Errorf("Next after Close = %v, want ErrClosed", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}

func TestWatcherHasNext(t *testing.T) {
	root := t.TempDir()
	w := openWatcher(t, root)

	if w.HasNext() {
		t.Fatal("HasNext is true with nothing to report")
	}

	path := testtree.Touch(t, root, "f.txt")

	deadline := time.After(2 * time.Second)
	for !w.HasNext() {
		select {
		case <-deadline:
			t.Fatal("HasNext never became true")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, _, err := w.Next(ctx)
	if err != nil {
		t.Fatalf("Next after HasNext: %s", err)
	}
	if ev.Kind != Create || ev.Path != path {
		t.Fatalf("got %s, want Create(%s)", ev, path)
	}
}
