// Package testtree provides small filesystem helpers for exercising a real
// inotify watch against a real temp directory tree, in the style of
// fsnotify's own helpers_test.go: each helper does one syscall, fails the
// test on error, and gives the kernel a short moment to deliver the event
// before the next operation runs.
package testtree

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Settle is slept after most operations so that a slow CI kernel has time
// to queue the corresponding inotify record before the test reads it.
func Settle() { time.Sleep(50 * time.Millisecond) }

func Mkdir(t *testing.T, path ...string) string {
	t.Helper()
	p := filepath.Join(path...)
	if err := os.Mkdir(p, 0o755); err != nil {
		t.Fatalf("mkdir(%q): %s", p, err)
	}
	Settle()
	return p
}

// MkdirAll creates every missing directory in path with a single mkdir -p
// call, so the kernel observes it as one recursive-create burst rather than
// a sequence of independently-watched levels.
func MkdirAll(t *testing.T, path ...string) string {
	t.Helper()
	p := filepath.Join(path...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir -p(%q): %s", p, err)
	}
	Settle()
	return p
}

func Touch(t *testing.T, path ...string) string {
	t.Helper()
	p := filepath.Join(path...)
	fp, err := os.Create(p)
	if err != nil {
		t.Fatalf("touch(%q): %s", p, err)
	}
	if err := fp.Close(); err != nil {
		t.Fatalf("touch(%q): %s", p, err)
	}
	Settle()
	return p
}

func Write(t *testing.T, data string, path ...string) {
	t.Helper()
	p := filepath.Join(path...)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write(%q): %s", p, err)
	}
	Settle()
}

func Move(t *testing.T, src string, dst ...string) string {
	t.Helper()
	d := filepath.Join(dst...)
	if err := os.Rename(src, d); err != nil {
		t.Fatalf("mv(%q, %q): %s", src, d, err)
	}
	Settle()
	return d
}

func Remove(t *testing.T, path ...string) {
	t.Helper()
	p := filepath.Join(path...)
	if err := os.Remove(p); err != nil {
		t.Fatalf("rm(%q): %s", p, err)
	}
	Settle()
}

func RemoveAll(t *testing.T, path ...string) {
	t.Helper()
	p := filepath.Join(path...)
	if err := os.RemoveAll(p); err != nil {
		t.Fatalf("rm -r(%q): %s", p, err)
	}
	Settle()
}
