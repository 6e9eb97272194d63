package dag

import (
	"sort"

	gocid "github.com/ipfs/go-cid"
)

// ChangeKind says how a path differs between a commit and its parent.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted" // a file or directory took over the path
)

// Change is one path that differs between two trees.
type Change struct {
	Path string
	Kind ChangeKind
	Old  gocid.Cid // undefined for additions
	New  gocid.Cid // undefined for deletions
}

// ChangeView is the JSON shape of a Change.
type ChangeView struct {
	Path string `refmt:"path"`
	Kind string `refmt:"kind"`
	Old  string `refmt:"old,omitempty"`
	New  string `refmt:"new,omitempty"`
}

func (c Change) View() ChangeView {
	v := ChangeView{Path: c.Path, Kind: string(c.Kind)}
	if c.Old.Defined() {
		v.Old = c.Old.String()
	}
	if c.New.Defined() {
		v.New = c.New.String()
	}
	return v
}

// diffTrees compares two trees path by path. Either may be nil (an empty tree).
// The result is sorted by path.
func diffTrees(parent, child *Tree) []Change {
	before := make(map[string]gocid.Cid)
	if parent != nil {
		for _, e := range parent.Entries {
			before[e.Path] = e.Blob
		}
	}
	after := make(map[string]gocid.Cid)
	if child != nil {
		for _, e := range child.Entries {
			after[e.Path] = e.Blob
		}
	}

	var changes []Change
	for p, blob := range after {
		old, exists := before[p]
		switch {
		case !exists:
			changes = append(changes, Change{Path: p, Kind: ChangeAdded, New: blob})
		case !old.Equals(blob):
			changes = append(changes, Change{Path: p, Kind: ChangeModified, Old: old, New: blob})
		}
	}
	for p, blob := range before {
		if _, exists := after[p]; !exists {
			changes = append(changes, Change{Path: p, Kind: ChangeDeleted, Old: blob})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
