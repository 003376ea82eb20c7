package watchdir

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// baseEventMask is the set of inotify flags installed on every watch
// regardless of user configuration. ONLYDIR makes inotify_add_watch fail
// outright if asked to watch a non-directory, which is the cheapest way to
// enforce "only directories are watched" (registry invariant 3).
const baseEventMask = unix.IN_CREATE |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_MOVE_SELF |
	unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_UNMOUNT |
	unix.IN_ONLYDIR

// ExtraEvent names an optional event category a caller can opt into via
// WithExtraEvents.
type ExtraEvent uint8

const (
	ExtraModify ExtraEvent = iota
	ExtraAccess
	ExtraAttrib
	ExtraOpen
	ExtraClose
)

func eventMask(extra []ExtraEvent) uint32 {
	mask := uint32(baseEventMask)
	for _, e := range extra {
		switch e {
		case ExtraModify:
			mask |= unix.IN_MODIFY
		case ExtraAccess:
			mask |= unix.IN_ACCESS
		case ExtraAttrib:
			mask |= unix.IN_ATTRIB
		case ExtraOpen:
			mask |= unix.IN_OPEN
		case ExtraClose:
			mask |= unix.IN_CLOSE_WRITE | unix.IN_CLOSE_NOWRITE
		}
	}
	return mask
}

// installResult pairs an installed directory's path with the watch id the
// kernel assigned to it.
type installResult struct {
	Path string
	WD   WatchID
}

// installer talks to the kernel inotify facility: registering and removing
// watches, and walking a directory tree to install one watch per admitted
// descendant. It never touches the registry; per the recognizer's ownership
// rule (component D is the only thing that mutates the registry), installer
// only ever reports back what it installed, and lets the caller decide what
// to do with the registry and with emitted events.
type installer struct {
	fd             int
	mask           uint32
	includeDotDirs bool
	warn           func(format string, args ...any)
}

func newInstaller(fd int, mask uint32, includeDotDirs bool, warn func(string, ...any)) *installer {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &installer{fd: fd, mask: mask, includeDotDirs: includeDotDirs, warn: warn}
}

// admit decides whether path is eligible to receive a watch: it must be a
// directory, and (unless it is the root, or dot-directory inclusion is
// enabled) its basename must not start with a dot.
func (in *installer) admit(path string, ft FileType, isRoot bool) bool {
	if ft != Dir {
		return false
	}
	if isRoot {
		return true
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return in.includeDotDirs
	}
	return true
}

// install registers a single directory with the kernel.
func (in *installer) install(path string) (WatchID, error) {
	wd, err := unix.InotifyAddWatch(in.fd, path, in.mask)
	if wd == -1 {
		return 0, fmt.Errorf("watchdir: watching %q: %w", path, err)
	}
	return WatchID(wd), nil
}

// uninstall removes a single watch. Errors are logged and swallowed: the
// watch may already be gone because the kernel tore it down itself
// (IN_IGNORED, e.g. after a delete).
func (in *installer) uninstall(wd WatchID) {
	if _, err := unix.InotifyRmWatch(in.fd, int(wd)); err != nil {
		in.warn("removing watch %d: %s", wd, err)
	}
}

// installTree installs root (which is always admitted, regardless of its
// name) and then walks its subtree depth-first, installing a watch on every
// admitted descendant directory and skipping the subtree of any directory
// that is not admitted. A per-directory installation failure (permission
// denied, descriptor-table exhaustion, the path disappearing mid-walk) is
// logged as a warning and that subtree is skipped; it does not abort the
// rest of the walk.
func (in *installer) installTree(root string) (installResult, []installResult, error) {
	rootWD, err := in.install(root)
	if err != nil {
		return installResult{}, nil, err
	}
	top := installResult{Path: root, WD: rootWD}

	var descendants []installResult
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			if err != nil {
				return err
			}
			return nil
		}
		if err != nil {
			in.warn("walking %q: %s", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if !in.admit(path, Dir, false) {
			return filepath.SkipDir
		}

		wd, err := in.install(path)
		if err != nil {
			in.warn("%s", err)
			return filepath.SkipDir
		}
		descendants = append(descendants, installResult{Path: path, WD: wd})
		return nil
	})
	if walkErr != nil {
		in.warn("walking %q: %s", root, walkErr)
	}
	return top, descendants, nil
}
