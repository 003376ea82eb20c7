package watchdir

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxNameLen bounds a single inotify record's variable-length name field;
// it is the kernel's own NAME_MAX, padded to a NUL terminator by the
// kernel. A buffer of header-size plus this many bytes is always large
// enough to hold one record (backend_inotify.go instead sizes its buffer to
// hold thousands of records at once; this decoder is pull-based and only
// ever needs room for one).
const maxNameLen = unix.NAME_MAX + 1

const maxRecordSize = unix.SizeofInotifyEvent + maxNameLen

// RawEvent is one decoded inotify record: the watch it concerns, the raw
// kernel mask, the rename-pairing cookie (zero unless the record is half of
// a MOVED_FROM/MOVED_TO pair), and the child name the record is about (empty
// when the record concerns the watched directory itself).
type RawEvent struct {
	WD     WatchID
	Mask   uint32
	Cookie uint32
	Name   string
	IsDir  bool
}

func (e RawEvent) hasName() bool { return e.Name != "" }

// decoder pulls raw, fixed-header records out of a non-seekable inotify
// descriptor one at a time. It mirrors the buffer-parsing loop in
// backend_inotify.go's readEvents, but exposes a pull (Next/HasReady) API
// instead of pushing onto a channel, per this package's single-goroutine
// ownership model (see Watcher).
type decoder struct {
	file   *os.File
	fd     int
	buf    [maxRecordSize]byte
	length int
	offset int

	trace func(RawEvent)
}

func newDecoder(fd int) *decoder {
	// A non-blocking descriptor lets os.NewFile register it with the runtime
	// poller, so that closing the file wakes a Read blocked in Next.
	unix.SetNonblock(fd, true)
	return &decoder{
		fd:    fd,
		file:  os.NewFile(uintptr(fd), "inotify"),
		trace: func(RawEvent) {},
	}
}

// Next blocks until one raw record is available and returns it. Records
// whose Wd is non-positive (a kernel sentinel) are silently discarded and
// the next record is tried.
func (d *decoder) Next() (RawEvent, error) {
	for {
		if d.offset >= d.length {
			n, err := d.file.Read(d.buf[:])
			if err != nil {
				return RawEvent{}, fmt.Errorf("watchdir: reading inotify descriptor: %w", err)
			}
			if n == 0 {
				return RawEvent{}, errors.New("watchdir: inotify descriptor closed")
			}
			if n < unix.SizeofInotifyEvent {
				return RawEvent{}, errors.New("watchdir: short read from inotify descriptor")
			}
			d.length = n
			d.offset = 0
		}

		raw := (*unix.InotifyEvent)(unsafe.Pointer(&d.buf[d.offset]))
		recordSize := unix.SizeofInotifyEvent + int(raw.Len)
		if d.offset+recordSize > len(d.buf) {
			return RawEvent{}, errors.New("watchdir: inotify record overflows decode buffer")
		}

		if raw.Wd <= 0 {
			d.offset += recordSize
			continue
		}

		var name string
		if raw.Len > 0 {
			nameBytes := d.buf[d.offset+unix.SizeofInotifyEvent : d.offset+recordSize]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}

		event := RawEvent{
			WD:     WatchID(raw.Wd),
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
			Name:   name,
			IsDir:  raw.Mask&unix.IN_ISDIR != 0,
		}
		d.offset += recordSize
		d.trace(event)
		return event, nil
	}
}

// HasReady reports whether a record is available without consuming it: true
// immediately if the internal buffer still holds unread bytes, otherwise it
// polls the descriptor for readiness with a short (1ms) timeout.
func (d *decoder) HasReady() bool {
	if d.offset < d.length {
		return true
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	const pollTimeoutMS = 1
	n, err := unix.Poll(fds, pollTimeoutMS)
	return err == nil && n > 0
}

func (d *decoder) Close() error {
	return d.file.Close()
}
