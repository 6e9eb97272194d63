package dag

import (
	"testing"
	"time"

	gocid "github.com/ipfs/go-cid"
)

// replace overwrites stored bytes without rehashing, simulating on-disk damage.
func (b *MemoryBackend) replace(c gocid.Cid, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[c.KeyString()] = append([]byte(nil), data...)
}

// drop removes an object, simulating a lost file.
func (b *MemoryBackend) drop(c gocid.Cid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, c.KeyString())
}

func (b *MemoryBackend) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

func newTestStore(t *testing.T) (*ObjectStore, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	store, err := NewObjectStore(backend, DefaultHash)
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	return store, backend
}

// stepClock returns a clock that starts at start and advances one second per call.
func stepClock(start time.Time) Clock {
	next := start
	return ClockFunc(func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	})
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestRepo returns an in-memory repository with a deterministic clock.
func newTestRepo(t *testing.T, opts ...Option) (*Repository, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	store, err := NewObjectStore(backend, DefaultHash)
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	repo, err := NewRepository(store, &MemoryHead{}, &MemoryIndex{},
		append([]Option{WithClock(stepClock(epoch))}, opts...)...)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return repo, backend
}

func mustStage(t *testing.T, repo *Repository, path, content string) gocid.Cid {
	t.Helper()
	c, err := repo.Stage(path, []byte(content))
	if err != nil {
		t.Fatalf("Stage(%s): %v", path, err)
	}
	return c
}

func mustCommit(t *testing.T, repo *Repository, message string) *Commit {
	t.Helper()
	c, err := repo.Commit(message)
	if err != nil {
		t.Fatalf("Commit(%q): %v", message, err)
	}
	return c
}
