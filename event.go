// Package watchdir implements a recursive, inotify-backed directory-change
// observer for Linux. It watches a single root directory and its entire
// subtree, and turns the kernel's low-level inotify record stream into a
// semantic stream of creates, deletes, moves, modifications, metadata
// changes, opens, closes, accesses and unmounts.
package watchdir

import "fmt"

// WatchID is the opaque kernel handle identifying a single installed
// directory watch. It is unique for the lifetime of the inotify descriptor.
type WatchID int32

// FileType distinguishes the two kinds of entry this package watches:
// directories (which get their own watch) and everything else.
type FileType uint8

const (
	// File is a regular file, symlink, device, or any non-directory entry.
	File FileType = iota
	// Dir is a directory; directories receive their own inotify watch.
	Dir
)

func (t FileType) String() string {
	if t == Dir {
		return "dir"
	}
	return "file"
}

// Kind identifies the semantic variant a HighEvent carries. It plays the
// role the Rust source's tagged Event enum plays, rendered as a Go
// enum-plus-struct pair rather than a sum type.
type Kind uint8

const (
	// Create announces a new entry (file or directory) under the watched
	// subtree. For a newly created, admitted directory this is followed by
	// one Create per admitted descendant directory found during the
	// recursive install.
	Create Kind = iota
	// Delete announces an entry removed from the watched subtree.
	Delete
	// Move announces a rename whose source and destination are both inside
	// the watched subtree.
	Move
	// MoveAway announces an entry that was renamed out of the watched
	// subtree (its new location is no longer observed).
	MoveAway
	// MoveInto announces an entry that was renamed into the watched subtree
	// from outside it.
	MoveInto
	// Modify announces a write to a regular file's contents.
	Modify
	// Access announces a read of an entry's contents.
	Access
	// Attrib announces a metadata change (permissions, timestamps, xattrs,
	// link count).
	Attrib
	// Open announces an entry being opened.
	Open
	// Close announces an entry being closed.
	Close
	// Unmount announces that the filesystem backing a watched (non-root)
	// directory was unmounted.
	Unmount
	// MoveTop announces that the watched root itself was renamed. The
	// observer's idea of the root path is now stale, and no further event
	// follows it.
	MoveTop
	// DeleteTop announces that the watched root itself was deleted. This is
	// a normal terminal condition, not an error.
	DeleteTop
	// UnmountTop announces that the filesystem backing the watched root was
	// unmounted. Also a normal terminal condition.
	UnmountTop
	// AccessTop, AttribTop, OpenTop and CloseTop are the root-directory
	// counterparts of Access, Attrib, Open and Close: the kernel reports
	// these without a child name when they target the watched directory
	// itself, and the root has no parent watch to report them against.
	AccessTop
	AttribTop
	OpenTop
	CloseTop
	// Overflow announces that the kernel's event queue overflowed; some
	// events were lost and observer state may be stale.
	Overflow
	// Noise marks a name-less Access/Attrib/Open/Close record on a non-root
	// watch, which duplicates the name-bearing record on its parent. It is
	// suppressed by the facade (see Watcher) and never delivered to a
	// consumer.
	Noise
	// Ignored is a diagnostic signal that a watch was automatically torn
	// down by the kernel (IN_IGNORED). Not suppressed.
	Ignored
	// Unknown is a diagnostic catch-all for kernel masks this package does
	// not recognize.
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "Create"
	case Delete:
		return "Delete"
	case Move:
		return "Move"
	case MoveAway:
		return "MoveAway"
	case MoveInto:
		return "MoveInto"
	case Modify:
		return "Modify"
	case Access:
		return "Access"
	case Attrib:
		return "Attrib"
	case Open:
		return "Open"
	case Close:
		return "Close"
	case Unmount:
		return "Unmount"
	case MoveTop:
		return "MoveTop"
	case DeleteTop:
		return "DeleteTop"
	case UnmountTop:
		return "UnmountTop"
	case AccessTop:
		return "AccessTop"
	case AttribTop:
		return "AttribTop"
	case OpenTop:
		return "OpenTop"
	case CloseTop:
		return "CloseTop"
	case Overflow:
		return "Overflow"
	case Noise:
		return "Noise"
	case Ignored:
		return "Ignored"
	default:
		return "Unknown"
	}
}

// HighEvent is a single semantic, higher-level filesystem event. Path is the
// event's subject (the destination for Move). OldPath is only populated for
// Move, and holds the rename's source path. Type is meaningful for every
// Kind except Modify, the root-directory kinds (MoveTop, DeleteTop,
// UnmountTop, AccessTop, AttribTop, OpenTop, CloseTop), Overflow, Noise,
// Ignored and Unknown, which do not carry file-type information.
type HighEvent struct {
	Kind    Kind
	Path    string
	OldPath string
	Type    FileType
}

func (e HighEvent) String() string {
	switch e.Kind {
	case Move:
		return fmt.Sprintf("%s(%s, %s, %s)", e.Kind, e.OldPath, e.Path, e.Type)
	case Modify, Overflow, Noise, Ignored, Unknown:
		if e.Path == "" {
			return e.Kind.String()
		}
		return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
	default:
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Path, e.Type)
	}
}

func createEvent(path string, ft FileType) HighEvent {
	return HighEvent{Kind: Create, Path: path, Type: ft}
}

func deleteEvent(path string, ft FileType) HighEvent {
	return HighEvent{Kind: Delete, Path: path, Type: ft}
}

func moveEvent(from, to string, ft FileType) HighEvent {
	return HighEvent{Kind: Move, OldPath: from, Path: to, Type: ft}
}

func moveAwayEvent(path string, ft FileType) HighEvent {
	return HighEvent{Kind: MoveAway, Path: path, Type: ft}
}

func moveIntoEvent(path string, ft FileType) HighEvent {
	return HighEvent{Kind: MoveInto, Path: path, Type: ft}
}
