package watchdir

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/rydesun/watchdir/internal/testtree"
)

func TestDecoderNextDecodesCreate(t *testing.T) {
	root := t.TempDir()

	fd, errno := unix.InotifyInit1(unix.IN_CLOEXEC)
	if fd == -1 {
		t.Fatalf("inotify_init1: %s", errno)
	}
	wd, err := unix.InotifyAddWatch(fd, root, unix.IN_CREATE)
	if wd == -1 {
		t.Fatalf("inotify_add_watch: %s", err)
	}

	d := newDecoder(fd)
	defer d.Close()

	testtree.Touch(t, root, "new.txt")

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}
	if ev.WD != WatchID(wd) {
		t.Errorf("WD = %d, want %d", ev.WD, wd)
	}
	if ev.Mask&unix.IN_CREATE == 0 {
		t.Errorf("Mask %#x missing IN_CREATE", ev.Mask)
	}
	if ev.Name != "new.txt" {
		t.Errorf("Name = %q, want %q", ev.Name, "new.txt")
	}
	if ev.IsDir {
		t.Error("IsDir = true for a regular file")
	}
}

func TestDecoderTraceHookFires(t *testing.T) {
	root := t.TempDir()

	fd, errno := unix.InotifyInit1(unix.IN_CLOEXEC)
	if fd == -1 {
		t.Fatalf("inotify_init1: %s", errno)
	}
	if wd, err := unix.InotifyAddWatch(fd, root, unix.IN_CREATE); wd == -1 {
		t.Fatalf("inotify_add_watch: %s", err)
	}

	d := newDecoder(fd)
	defer d.Close()

	var traced []RawEvent
	d.trace = func(e RawEvent) { traced = append(traced, e) }

	testtree.Touch(t, root, "x.txt")
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next: %s", err)
	}
	if len(traced) != 1 || traced[0].Name != "x.txt" {
		t.Errorf("trace hook saw %v, want one record for x.txt", traced)
	}
}

func TestDecoderHasReady(t *testing.T) {
	root := t.TempDir()

	fd, errno := unix.InotifyInit1(unix.IN_CLOEXEC)
	if fd == -1 {
		t.Fatalf("inotify_init1: %s", errno)
	}
	if wd, err := unix.InotifyAddWatch(fd, root, unix.IN_CREATE); wd == -1 {
		t.Fatalf("inotify_add_watch: %s", err)
	}

	d := newDecoder(fd)
	defer d.Close()

	if d.HasReady() {
		t.Fatal("HasReady is true with nothing pending")
	}

	testtree.Touch(t, root, "y.txt")

	deadline := 0
	for !d.HasReady() && deadline < 2000 {
		deadline++
	}
	if !d.HasReady() {
		t.Fatal("HasReady never became true after a create")
	}
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next: %s", err)
	}
}
