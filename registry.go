package watchdir

import (
	"path/filepath"
	"sort"
	"strings"
)

// registry maintains the live mapping from WatchID to absolute path for
// every directory currently watched under a single root. It is a prefix
// tree, not a flat map, because a directory rename must update the path of
// every descendant watch in one logical step; a flat map of full paths
// would make that O(subtree · depth) where this representation makes it
// O(1) (plus O(depth) on-demand reconstruction in path).
//
// Nodes live in a flat slab (arena) addressed by integer index, with an
// explicit integer parent link, rather than the reference-counted,
// weak-back-pointer tree the original implementation used. This form has no
// reference cycles and needs no interior mutability.
//
// A registry is not safe for concurrent use; by design exactly one
// goroutine (the recognizer's event loop, see Watcher) ever touches it.
type registry struct {
	prefix  string
	nodes   []regNode
	index   map[WatchID]int
	rootIdx int
}

type regNode struct {
	segment  string
	wd       WatchID
	parent   int // -1 for the root node, or for a freed node
	children map[string]int
	live     bool
}

func newRegistry(prefix string) *registry {
	return &registry{
		prefix:  filepath.Clean(prefix),
		index:   make(map[WatchID]int),
		rootIdx: -1,
	}
}

func (r *registry) newNode(segment string, wd WatchID, parent int) int {
	idx := len(r.nodes)
	r.nodes = append(r.nodes, regNode{
		segment:  segment,
		wd:       wd,
		parent:   parent,
		children: make(map[string]int),
		live:     true,
	})
	return idx
}

// relParts splits an absolute path into the path segments between the
// registry's root prefix and path. It reports a registry bug error if path
// does not lie under the prefix.
func (r *registry) relParts(path string) ([]string, error) {
	rel, err := filepath.Rel(r.prefix, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, newPrefixMismatchError(path)
	}
	if rel == "." {
		return nil, nil
	}
	return strings.Split(rel, string(filepath.Separator)), nil
}

func (r *registry) walk(from int, parts []string) (int, bool) {
	cur := from
	for _, p := range parts {
		if cur < 0 || !r.nodes[cur].live {
			return -1, false
		}
		next, ok := r.nodes[cur].children[p]
		if !ok {
			return -1, false
		}
		cur = next
	}
	return cur, true
}

// insert associates wd with path. The first call establishes the root; every
// later call requires path's parent to already be present.
func (r *registry) insert(path string, wd WatchID) error {
	parts, err := r.relParts(path)
	if err != nil {
		return err
	}

	if len(parts) == 0 {
		if r.rootIdx != -1 {
			return newPrefixMismatchError(path)
		}
		idx := r.newNode(filepath.Base(r.prefix), wd, -1)
		r.rootIdx = idx
		r.index[wd] = idx
		return nil
	}

	if r.rootIdx == -1 {
		return newPathNotFoundError(path)
	}
	parentParts, name := parts[:len(parts)-1], parts[len(parts)-1]
	parentIdx, ok := r.walk(r.rootIdx, parentParts)
	if !ok {
		return newPathNotFoundError(path)
	}

	idx := r.newNode(name, wd, parentIdx)
	r.nodes[parentIdx].children[name] = idx
	r.index[wd] = idx
	return nil
}

// delete removes the subtree rooted at wd's node and returns every WatchID
// in that subtree, in pre-order (the node itself first, then its children
// depth-first in lexical order of their segment, for determinism).
func (r *registry) delete(wd WatchID) ([]WatchID, error) {
	idx, ok := r.index[wd]
	if !ok {
		return nil, newValueNotFoundError(wd)
	}

	values := r.collect(idx)

	if idx == r.rootIdx {
		r.rootIdx = -1
	} else {
		parent := r.nodes[idx].parent
		delete(r.nodes[parent].children, r.nodes[idx].segment)
	}
	for _, v := range values {
		i := r.index[v]
		r.nodes[i].live = false
		r.nodes[i].children = nil
		delete(r.index, v)
	}
	return values, nil
}

func (r *registry) collect(idx int) []WatchID {
	values := []WatchID{r.nodes[idx].wd}

	names := make([]string, 0, len(r.nodes[idx].children))
	for name := range r.nodes[idx].children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values = append(values, r.collect(r.nodes[idx].children[name])...)
	}
	return values
}

// rename detaches wd's node from its current parent and reattaches it under
// newPath's parent, renaming the segment. It does not touch wd's children;
// their paths change implicitly because path reconstructs them from the
// parent links on every call.
func (r *registry) rename(wd WatchID, newPath string) error {
	idx, ok := r.index[wd]
	if !ok {
		return newValueNotFoundError(wd)
	}
	if idx == r.rootIdx {
		return newPrefixMismatchError(newPath)
	}

	parts, err := r.relParts(newPath)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return newPrefixMismatchError(newPath)
	}
	parentParts, name := parts[:len(parts)-1], parts[len(parts)-1]
	newParentIdx, ok := r.walk(r.rootIdx, parentParts)
	if !ok {
		return newPathNotFoundError(newPath)
	}

	oldParent := r.nodes[idx].parent
	delete(r.nodes[oldParent].children, r.nodes[idx].segment)

	r.nodes[idx].segment = name
	r.nodes[idx].parent = newParentIdx
	r.nodes[newParentIdx].children[name] = idx
	return nil
}

// path reconstructs the live absolute path for wd by walking from its node
// up to the root.
func (r *registry) path(wd WatchID) (string, error) {
	idx, ok := r.index[wd]
	if !ok {
		return "", newValueNotFoundError(wd)
	}
	if idx == r.rootIdx {
		return r.prefix, nil
	}

	var segs []string
	for cur := idx; cur != r.rootIdx; cur = r.nodes[cur].parent {
		if cur < 0 {
			return "", newValueNotFoundError(wd)
		}
		segs = append(segs, r.nodes[cur].segment)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return filepath.Join(append([]string{r.prefix}, segs...)...), nil
}

// fullPath is path(wd) joined with name; name may be empty, in which case
// it is equivalent to path(wd).
func (r *registry) fullPath(wd WatchID, name string) (string, error) {
	p, err := r.path(wd)
	if err != nil || name == "" {
		return p, err
	}
	return filepath.Join(p, name), nil
}

// values returns every live WatchID in the registry, in no particular
// order. Used at shutdown to uninstall every remaining watch.
func (r *registry) values() []WatchID {
	out := make([]WatchID, 0, len(r.index))
	for wd := range r.index {
		out = append(out, wd)
	}
	return out
}
