package watchdir

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errDone is returned by Next once the observed root has been deleted,
// unmounted, or renamed away. Per the top-event idempotence guarantee, no
// further event ever follows one of those three.
var errDone = errors.New("watchdir: root is gone")

// recognizer is the state machine that turns a stream of RawEvents into
// HighEvents. It is the only component that ever mutates the registry or
// calls the installer's mutating operations (install/uninstall/installTree);
// the decoder and installer themselves are pure kernel-facing pipes.
//
// Compound patterns need up to two records of lookahead; cached holds the
// one record the recognizer has read from the decoder but not yet consumed,
// playing the role the source's recursive one-record cache plays, without
// the recursion.
type recognizer struct {
	dec *decoder
	reg *registry
	ins *installer

	topWD  WatchID
	topDir string

	cached  *RawEvent
	pending []HighEvent

	done bool
	warn func(format string, args ...any)
}

func newRecognizer(dec *decoder, reg *registry, ins *installer, topWD WatchID, topDir string, warn func(string, ...any)) *recognizer {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &recognizer{dec: dec, reg: reg, ins: ins, topWD: topWD, topDir: topDir, warn: warn}
}

// initializeTree installs root and every admitted descendant directory
// present at open time, silently: per §4.4.2 the initial recursive install
// never produces Create events, since nothing was actually created, it was
// merely discovered.
func initializeTree(ins *installer, reg *registry, root string) (WatchID, error) {
	top, descendants, err := ins.installTree(root)
	if err != nil {
		return 0, err
	}
	if err := reg.insert(top.Path, top.WD); err != nil {
		return 0, err
	}
	for _, d := range descendants {
		if err := reg.insert(d.Path, d.WD); err != nil {
			return 0, err
		}
	}
	return top.WD, nil
}

// Next produces the next HighEvent, blocking on the kernel descriptor if
// necessary. It returns errDone once the watched root is gone.
func (r *recognizer) Next() (HighEvent, error) {
	if len(r.pending) > 0 {
		ev := r.pending[0]
		r.pending = r.pending[1:]
		return ev, nil
	}
	if r.done {
		return HighEvent{}, errDone
	}

	raw, err := r.nextRaw()
	if err != nil {
		return HighEvent{}, err
	}
	return r.recognize(raw)
}

func (r *recognizer) nextRaw() (RawEvent, error) {
	if r.cached != nil {
		raw := *r.cached
		r.cached = nil
		return raw, nil
	}
	return r.dec.Next()
}

// lookahead reports the next raw record without blocking indefinitely: if
// one is already cached it is returned as-is; otherwise has_ready's bounded
// poll decides whether requesting one would stall. The record, once read,
// stays cached until consumeLookahead is called — so a lookahead that turns
// out not to close a pattern is simply left in place for the next Next call.
func (r *recognizer) lookahead() (RawEvent, bool, error) {
	if r.cached != nil {
		return *r.cached, true, nil
	}
	if !r.dec.HasReady() {
		return RawEvent{}, false, nil
	}
	raw, err := r.dec.Next()
	if err != nil {
		return RawEvent{}, false, err
	}
	r.cached = &raw
	return raw, true, nil
}

func (r *recognizer) consumeLookahead() {
	r.cached = nil
}

func fileType(isDir bool) FileType {
	if isDir {
		return Dir
	}
	return File
}

// mustFullPath calls registry.fullPath and panics on a registry bug: per the
// error taxonomy, an inconsistency here is a programmer error, not a
// recoverable runtime condition.
func (r *recognizer) mustFullPath(wd WatchID, name string) string {
	path, err := r.reg.fullPath(wd, name)
	if err != nil {
		panic(err)
	}
	return path
}

func (r *recognizer) mustPath(wd WatchID) string {
	path, err := r.reg.path(wd)
	if err != nil {
		panic(err)
	}
	return path
}

func (r *recognizer) mustInsert(path string, wd WatchID) {
	if err := r.reg.insert(path, wd); err != nil {
		panic(err)
	}
}

func (r *recognizer) mustRename(wd WatchID, newPath string) {
	if err := r.reg.rename(wd, newPath); err != nil {
		panic(err)
	}
}

// uninstallSubtree deletes wd's subtree from the registry and tears down
// every watch it held.
func (r *recognizer) uninstallSubtree(wd WatchID) {
	wds, err := r.reg.delete(wd)
	if err != nil {
		panic(err)
	}
	for _, w := range wds {
		r.ins.uninstall(w)
	}
}

// installSilently installs path's subtree and adds every node to the
// registry without queuing any Create events for the descendants: used by
// MoveInto and by the dot-directory un-exclusion case (§4.4.5, §4.4.6),
// where the directory already existed, it is only newly observed.
func (r *recognizer) installSilently(path string) {
	top, descendants, err := r.ins.installTree(path)
	if err != nil {
		r.warn("%s", err)
		return
	}
	r.mustInsert(top.Path, top.WD)
	for _, d := range descendants {
		r.mustInsert(d.Path, d.WD)
	}
}

// installAmplified installs path's subtree and queues a Create event for
// every admitted descendant directory, in pre-order: used for a genuinely
// new directory (§4.4.5's amplified Create).
func (r *recognizer) installAmplified(path string) {
	top, descendants, err := r.ins.installTree(path)
	if err != nil {
		r.warn("%s", err)
		return
	}
	r.mustInsert(top.Path, top.WD)
	for _, d := range descendants {
		r.mustInsert(d.Path, d.WD)
		r.pending = append(r.pending, createEvent(d.Path, Dir))
	}
}

func (r *recognizer) recognize(raw RawEvent) (HighEvent, error) {
	switch {
	case raw.Mask&unix.IN_Q_OVERFLOW != 0:
		return HighEvent{Kind: Overflow}, nil

	case raw.Mask&unix.IN_IGNORED != 0:
		return HighEvent{Kind: Ignored}, nil

	case raw.Mask&unix.IN_CREATE != 0:
		return r.onCreate(raw), nil

	case raw.Mask&unix.IN_MOVED_FROM != 0:
		return r.onMovedFrom(raw)

	case raw.Mask&unix.IN_MOVED_TO != 0:
		return r.onMovedToStandalone(raw), nil

	case raw.Mask&unix.IN_MOVE_SELF != 0:
		return r.onMoveSelfStandalone(raw), nil

	case raw.Mask&unix.IN_DELETE != 0:
		return r.onDelete(raw)

	case raw.Mask&unix.IN_DELETE_SELF != 0:
		return r.onDeleteSelfStandalone(raw), nil

	case raw.Mask&unix.IN_MODIFY != 0:
		return HighEvent{Kind: Modify, Path: r.mustFullPath(raw.WD, raw.Name)}, nil

	case raw.Mask&(unix.IN_ACCESS|unix.IN_ATTRIB|unix.IN_OPEN|unix.IN_CLOSE_WRITE|unix.IN_CLOSE_NOWRITE) != 0:
		return r.onNoDedicatedMask(raw), nil

	case raw.Mask&unix.IN_UNMOUNT != 0:
		return r.onUnmount(raw), nil

	default:
		return HighEvent{Kind: Unknown}, nil
	}
}

func (r *recognizer) onCreate(raw RawEvent) HighEvent {
	path := r.mustFullPath(raw.WD, raw.Name)
	ft := fileType(raw.IsDir)
	ev := createEvent(path, ft)

	if ft == Dir && r.ins.admit(path, Dir, false) {
		r.installAmplified(path)
	}
	return ev
}

// onMovedFrom implements patterns MV-internal, MV-internal-file and MV-out,
// each keyed off how far the lookahead gets before the pattern closes.
func (r *recognizer) onMovedFrom(fromRaw RawEvent) (HighEvent, error) {
	fromPath := r.mustFullPath(fromRaw.WD, fromRaw.Name)

	next, ok, err := r.lookahead()
	if err != nil {
		return HighEvent{}, err
	}
	if !ok {
		return moveAwayEvent(fromPath, File), nil
	}

	switch {
	case next.Mask&unix.IN_MOVE_SELF != 0:
		if next.WD != r.topWD {
			r.consumeLookahead()
			r.uninstallSubtree(next.WD)
			return moveAwayEvent(fromPath, Dir), nil
		}
		// MOVE_SELF(top_wd): this is the root itself leaving, not the
		// entry we were tracking. Leave it cached; it will be recognized
		// as MV-top on the next call.
		return moveAwayEvent(fromPath, File), nil

	case next.Mask&unix.IN_MOVED_TO != 0 && next.Cookie == fromRaw.Cookie:
		r.consumeLookahead()
		toPath := r.mustFullPath(next.WD, next.Name)

		self, ok2, err2 := r.lookahead()
		if err2 != nil {
			return HighEvent{}, err2
		}
		if ok2 && self.Mask&unix.IN_MOVE_SELF != 0 {
			r.consumeLookahead()
			r.mustRename(self.WD, toPath)
			if !r.ins.admit(toPath, Dir, false) {
				r.uninstallSubtree(self.WD)
			}
			return moveEvent(fromPath, toPath, Dir), nil
		}

		// No MOVE_SELF follows. Per the kernel guarantee this means the
		// moved entry was never itself a watched directory — either it
		// is a regular file, or it was a dot-excluded directory. The
		// kernel's own IS_DIR bit on the MOVED_TO record tells us which;
		// the dot-directory un-exclusion case (§4.4.6) requires Dir here
		// even though no watch existed to rename.
		toFT := fileType(next.IsDir)
		if toFT == Dir && r.ins.admit(toPath, Dir, false) {
			r.installSilently(toPath)
		}
		return moveEvent(fromPath, toPath, toFT), nil

	default:
		// Different cookie, or any other record: the rename has no
		// matching companion in our stream. Leave the peeked record
		// cached for the caller's next Next call.
		return moveAwayEvent(fromPath, File), nil
	}
}

// onMovedToStandalone handles a MOVED_TO pulled directly off the decoder
// (not via onMovedFrom's lookahead), i.e. its cookie matched nothing we were
// tracking: the entry arrived from outside the watched subtree.
func (r *recognizer) onMovedToStandalone(raw RawEvent) HighEvent {
	path := r.mustFullPath(raw.WD, raw.Name)
	ft := fileType(raw.IsDir)
	ev := moveIntoEvent(path, ft)

	if ft == Dir && r.ins.admit(path, Dir, false) {
		r.installSilently(path)
	}
	return ev
}

// onMoveSelfStandalone handles a MOVE_SELF pulled directly off the decoder.
// The only such record the recognizer should ever see unpaired is the root
// renaming away (pattern MV-top); MOVE_SELF for any other watch is always
// consumed as part of onMovedFrom's lookahead.
func (r *recognizer) onMoveSelfStandalone(raw RawEvent) HighEvent {
	if raw.WD == r.topWD {
		r.done = true
		return HighEvent{Kind: MoveTop, Path: r.topDir}
	}
	return HighEvent{Kind: Unknown}
}

// onDelete implements pattern DEL. Per guarantee (b), DELETE_SELF for the
// deleted entry follows immediately only when that entry was itself a
// watched directory; a confirmed Dir type therefore only ever comes from
// that self-event, never from the DELETE record's own IS_DIR bit.
func (r *recognizer) onDelete(raw RawEvent) (HighEvent, error) {
	path := r.mustFullPath(raw.WD, raw.Name)

	next, ok, err := r.lookahead()
	if err != nil {
		return HighEvent{}, err
	}
	if !ok || next.Mask&unix.IN_DELETE_SELF == 0 {
		return deleteEvent(path, File), nil
	}

	if next.WD == r.topWD {
		// Return DELETE_SELF(top_wd) to the cache; the next Next call
		// will recognize it as DEL-top.
		return deleteEvent(path, File), nil
	}

	r.consumeLookahead()
	r.uninstallSubtree(next.WD)
	return deleteEvent(path, Dir), nil
}

// onDeleteSelfStandalone handles a DELETE_SELF pulled directly off the
// decoder: pattern DEL-top, since any other DELETE_SELF is consumed inside
// onDelete's own lookahead.
func (r *recognizer) onDeleteSelfStandalone(raw RawEvent) HighEvent {
	if raw.WD == r.topWD {
		r.done = true
		r.uninstallSubtree(r.topWD)
		return HighEvent{Kind: DeleteTop, Path: r.topDir}
	}
	path := r.mustPath(raw.WD)
	r.uninstallSubtree(raw.WD)
	return HighEvent{Kind: Delete, Path: path, Type: Dir}
}

// onNoDedicatedMask handles ACCESS, ATTRIB, OPEN and CLOSE_WRITE/NOWRITE,
// which all follow the same name-present/name-absent shape.
func (r *recognizer) onNoDedicatedMask(raw RawEvent) HighEvent {
	if raw.hasName() {
		path := r.mustFullPath(raw.WD, raw.Name)
		ft := fileType(raw.IsDir)
		return HighEvent{Kind: kindFor(raw.Mask, false), Path: path, Type: ft}
	}
	if raw.WD == r.topWD {
		return HighEvent{Kind: kindFor(raw.Mask, true), Path: r.topDir}
	}
	// A directory-only record duplicating the name-bearing one already
	// reported against its parent (§9, extra-event duplication).
	return HighEvent{Kind: Noise}
}

func kindFor(mask uint32, top bool) Kind {
	switch {
	case mask&unix.IN_ACCESS != 0:
		if top {
			return AccessTop
		}
		return Access
	case mask&unix.IN_ATTRIB != 0:
		if top {
			return AttribTop
		}
		return Attrib
	case mask&unix.IN_OPEN != 0:
		if top {
			return OpenTop
		}
		return Open
	default: // IN_CLOSE_WRITE | IN_CLOSE_NOWRITE
		if top {
			return CloseTop
		}
		return Close
	}
}

func (r *recognizer) onUnmount(raw RawEvent) HighEvent {
	if raw.WD == r.topWD {
		r.done = true
		r.uninstallSubtree(r.topWD)
		return HighEvent{Kind: UnmountTop, Path: r.topDir}
	}
	path := r.mustPath(raw.WD)
	r.uninstallSubtree(raw.WD)
	return HighEvent{Kind: Unmount, Path: path, Type: Dir}
}
