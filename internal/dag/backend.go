package dag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"
)

// Backend is the persistence boundary under the ObjectStore.
// Put must not return before the bytes are durable; the store links objects
// only after they have been written.
type Backend interface {
	Put(c gocid.Cid, data []byte) error
	Get(c gocid.Cid) ([]byte, error) // ErrNotFound if absent
	Has(c gocid.Cid) bool
	Keys() ([]gocid.Cid, error)
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)

// FileBackend keeps one file per object in a flat directory, named by the
// base32 encoding of the CID.
type FileBackend struct {
	dir string // path to objects/ directory
}

// NewFileBackend creates a FileBackend at the given directory.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(c gocid.Cid) string {
	return filepath.Join(b.dir, CIDToFilename(c))
}

// Put writes data atomically. Concurrent writers of the same object race
// harmlessly: both rename identical bytes into place.
func (b *FileBackend) Put(c gocid.Cid, data []byte) error {
	return SafeWrite(b.path(c), data, 0644)
}

func (b *FileBackend) Get(c gocid.Cid) ([]byte, error) {
	data, err := os.ReadFile(b.path(c))
	switch {
	case err == nil:
		return data, nil
	case os.IsNotExist(err):
		return nil, errcat.Errorf(ErrNotFound, "object %s not found", c)
	default:
		return nil, fmt.Errorf("read object %s: %w", c, err)
	}
}

func (b *FileBackend) Has(c gocid.Cid) bool {
	_, err := os.Stat(b.path(c))
	return err == nil
}

func (b *FileBackend) Keys() ([]gocid.Cid, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	keys := make([]gocid.Cid, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue // temp files from in-flight writes
		}
		c, err := CIDFromFilename(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, c)
	}
	return keys, nil
}

// MemoryBackend holds objects in a map. Used by tests and embedded repositories.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte // CID key string -> bytes
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (b *MemoryBackend) Put(c gocid.Cid, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[c.KeyString()] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Get(c gocid.Cid) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[c.KeyString()]
	if !ok {
		return nil, errcat.Errorf(ErrNotFound, "object %s not found", c)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Has(c gocid.Cid) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[c.KeyString()]
	return ok
}

func (b *MemoryBackend) Keys() ([]gocid.Cid, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]gocid.Cid, 0, len(b.objects))
	for k := range b.objects {
		c, err := gocid.Cast([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("memory backend key: %w", err)
		}
		keys = append(keys, c)
	}
	return keys, nil
}
