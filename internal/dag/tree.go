package dag

import (
	"fmt"
	"path"
	"sort"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"
)

// TreeEntry maps a tracked path to the blob holding its content.
type TreeEntry struct {
	Path string
	Blob gocid.Cid
}

// Tree is an immutable snapshot of the tracked file tree. Entries are sorted
// by path, byte-wise, so equal entry sets always share one CID.
type Tree struct {
	ID      gocid.Cid
	Entries []TreeEntry
}

// TreeChild is one name inside a directory of a Tree.
type TreeChild struct {
	Name string
	Dir  bool
	Blob gocid.Cid // undefined for directories
}

func sortEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// BuildTree stores a snapshot of entries and returns it. The input order does
// not matter. Every blob must already be in the store.
func BuildTree(store *ObjectStore, entries []TreeEntry) (*Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	if err := checkEntries(sorted); err != nil {
		return nil, err
	}

	node := treeNode{V: 1, Entries: make([]treeEntryNode, len(sorted))}
	for i, e := range sorted {
		if !store.Has(e.Blob) {
			return nil, errcat.Errorf(ErrNotFound, "tree entry %s references missing blob %s", e.Path, e.Blob)
		}
		node.Entries[i] = treeEntryNode{Path: e.Path, Blob: e.Blob.Bytes()}
	}

	data, err := encodeObject(node)
	if err != nil {
		return nil, fmt.Errorf("serialize tree: %w", err)
	}
	c, err := store.put(objectCodec, data)
	if err != nil {
		return nil, fmt.Errorf("store tree: %w", err)
	}
	return &Tree{ID: c, Entries: sorted}, nil
}

// checkEntries rejects duplicate paths and paths that are both a file and a directory.
func checkEntries(sorted []TreeEntry) error {
	files := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		if files[e.Path] {
			return errcat.Errorf(ErrInvalidPath, "duplicate tree path %q", e.Path)
		}
		files[e.Path] = true
	}
	for _, e := range sorted {
		for dir := path.Dir(e.Path); dir != "."; dir = path.Dir(dir) {
			if files[dir] {
				return errcat.Errorf(ErrInvalidPath, "%q is a file but %q needs it as a directory", dir, e.Path)
			}
		}
	}
	return nil
}

// pathSet holds a set of file paths and the directories they imply.
type pathSet struct {
	files map[string]bool
	dirs  map[string]bool
}

func newPathSet(paths ...string) pathSet {
	s := pathSet{files: make(map[string]bool, len(paths)), dirs: make(map[string]bool)}
	for _, p := range paths {
		s.files[p] = true
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			s.dirs[dir] = true
		}
	}
	return s
}

// displaces reports whether the file p has to give way to the set: p is a
// directory of the set, or one of p's parents is a file of the set.
func (s pathSet) displaces(p string) bool {
	if s.dirs[p] {
		return true
	}
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		if s.files[dir] {
			return true
		}
	}
	return false
}

// GetTree reads and decodes a tree by CID.
func GetTree(store *ObjectStore, c gocid.Cid) (*Tree, error) {
	if c.Defined() && c.Type() != objectCodec {
		return nil, errcat.Errorf(ErrCorruptObject, "object %s is not a tree", c)
	}
	data, err := store.Get(c)
	if err != nil {
		return nil, err
	}
	var node treeNode
	if err := decodeObject(data, &node); err != nil {
		return nil, errcat.Errorf(ErrCorruptObject, "decode tree %s: %s", c, err)
	}
	tree := &Tree{ID: c, Entries: make([]TreeEntry, len(node.Entries))}
	for i, e := range node.Entries {
		blob, err := gocid.Cast(e.Blob)
		if err != nil {
			return nil, errcat.Errorf(ErrCorruptObject, "tree %s entry %q: %s", c, e.Path, err)
		}
		tree.Entries[i] = TreeEntry{Path: e.Path, Blob: blob}
	}
	return tree, nil
}

// Lookup returns the blob stored at path.
func (t *Tree) Lookup(p string) (gocid.Cid, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Path >= p })
	if i < len(t.Entries) && t.Entries[i].Path == p {
		return t.Entries[i].Blob, true
	}
	return gocid.Undef, false
}

// Children lists the immediate children of dir ("" for the root), files and
// directories interleaved in name order.
func (t *Tree) Children(dir string) []TreeChild {
	prefix := ""
	if dir != "" {
		prefix = strings.TrimSuffix(dir, "/") + "/"
	}
	var out []TreeChild
	seen := make(map[string]bool)
	for _, e := range t.Entries {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		rest := e.Path[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			name := rest[:i]
			if !seen[name] {
				seen[name] = true
				out = append(out, TreeChild{Name: name, Dir: true})
			}
			continue
		}
		out = append(out, TreeChild{Name: rest, Blob: e.Blob})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsDir reports whether dir names a directory in the tree. The root always is.
func (t *Tree) IsDir(dir string) bool {
	if dir == "" {
		return true
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Path >= prefix })
	return i < len(t.Entries) && strings.HasPrefix(t.Entries[i].Path, prefix)
}
