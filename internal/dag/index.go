package dag

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"
)

// IndexStore persists the staged entries between processes.
type IndexStore interface {
	LoadIndex() ([]TreeEntry, error)
	SaveIndex(entries []TreeEntry) error
}

var (
	_ IndexStore = (*FileIndex)(nil)
	_ IndexStore = (*MemoryIndex)(nil)
)

// FileIndex keeps the staged entries in one CBOR file, replaced atomically on
// every save.
type FileIndex struct {
	path string
}

func NewFileIndex(path string) *FileIndex {
	return &FileIndex{path: path}
}

func (f *FileIndex) LoadIndex() ([]TreeEntry, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var node treeNode
	if err := decodeObject(data, &node); err != nil {
		return nil, errcat.Errorf(ErrCorruptObject, "decode index: %s", err)
	}
	entries := make([]TreeEntry, 0, len(node.Entries))
	for _, e := range node.Entries {
		blob, err := gocid.Cast(e.Blob)
		if err != nil {
			return nil, errcat.Errorf(ErrCorruptObject, "index entry %q: %s", e.Path, err)
		}
		entries = append(entries, TreeEntry{Path: e.Path, Blob: blob})
	}
	return entries, nil
}

func (f *FileIndex) SaveIndex(entries []TreeEntry) error {
	node := treeNode{V: 1, Entries: make([]treeEntryNode, len(entries))}
	for i, e := range entries {
		node.Entries[i] = treeEntryNode{Path: e.Path, Blob: e.Blob.Bytes()}
	}
	data, err := encodeObject(node)
	if err != nil {
		return fmt.Errorf("serialize index: %w", err)
	}
	if err := SafeWrite(f.path, data, 0644); err != nil {
		return errcat.Errorf(ErrStoreUnwritable, "write index: %s", err)
	}
	return nil
}

// MemoryIndex keeps the staged entries in memory.
type MemoryIndex struct {
	mu      sync.Mutex
	entries []TreeEntry
}

func (m *MemoryIndex) LoadIndex() ([]TreeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TreeEntry(nil), m.entries...), nil
}

func (m *MemoryIndex) SaveIndex(entries []TreeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]TreeEntry(nil), entries...)
	return nil
}

// CleanPath turns a user-supplied path into the slash-separated, relative form
// used as a tree path. Empty paths, absolute paths, paths leaving the worktree
// and paths inside the metadata directory are rejected.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errcat.Errorf(ErrInvalidPath, "empty path")
	}
	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(slashed, "/") {
		return "", errcat.Errorf(ErrInvalidPath, "path %q is absolute", p)
	}
	clean := path.Clean(slashed)
	switch {
	case clean == ".":
		return "", errcat.Errorf(ErrInvalidPath, "path %q names the worktree root", p)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", errcat.Errorf(ErrInvalidPath, "path %q leaves the worktree", p)
	case clean == MetaDir || strings.HasPrefix(clean, MetaDir+"/"):
		return "", errcat.Errorf(ErrInvalidPath, "path %q is inside %s", p, MetaDir)
	}
	return clean, nil
}

// StagingIndex is the mutable set of path -> blob mappings waiting for the next
// commit. Every change is persisted before it becomes visible; a failed save
// leaves the in-memory view untouched.
type StagingIndex struct {
	mu      sync.RWMutex
	store   *ObjectStore
	persist IndexStore
	entries map[string]gocid.Cid
}

// NewStagingIndex loads the staged entries from persist.
func NewStagingIndex(store *ObjectStore, persist IndexStore) (*StagingIndex, error) {
	loaded, err := persist.LoadIndex()
	if err != nil {
		return nil, err
	}
	idx := &StagingIndex{
		store:   store,
		persist: persist,
		entries: make(map[string]gocid.Cid, len(loaded)),
	}
	for _, e := range loaded {
		idx.entries[e.Path] = e.Blob
	}
	return idx, nil
}

// Stage stores data as a blob and maps p to it, replacing any earlier mapping.
// A staged file that p turns into a directory, or staged files below p, are
// dropped.
func (idx *StagingIndex) Stage(p string, data []byte) (gocid.Cid, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return gocid.Undef, err
	}
	blob, err := idx.store.Put(data)
	if err != nil {
		return gocid.Undef, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	next := make(map[string]gocid.Cid, len(idx.entries)+1)
	staged := newPathSet(clean)
	for k, v := range idx.entries {
		if !staged.displaces(k) {
			next[k] = v
		}
	}
	next[clean] = blob
	if err := idx.persist.SaveIndex(sortedEntries(next)); err != nil {
		return gocid.Undef, err
	}
	idx.entries = next
	return blob, nil
}

// Clear empties the index.
func (idx *StagingIndex) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.persist.SaveIndex(nil); err != nil {
		return err
	}
	idx.entries = make(map[string]gocid.Cid)
	return nil
}

func (idx *StagingIndex) IsEmpty() bool {
	return idx.Len() == 0
}

func (idx *StagingIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Lookup returns the blob staged at p.
func (idx *StagingIndex) Lookup(p string) (gocid.Cid, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.entries[p]
	return c, ok
}

// Entries returns the staged entries sorted by path.
func (idx *StagingIndex) Entries() []TreeEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sortedEntries(idx.entries)
}

func sortedEntries(m map[string]gocid.Cid) []TreeEntry {
	entries := make([]TreeEntry, 0, len(m))
	for p, c := range m {
		entries = append(entries, TreeEntry{Path: p, Blob: c})
	}
	sortEntries(entries)
	return entries
}
