package dag

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"
)

// HeadStore persists the single mutable pointer of a repository: the CID of
// the newest commit, or CidUndef before the first one.
type HeadStore interface {
	ReadHead() (gocid.Cid, error)
	WriteHead(c gocid.Cid) error
}

// FileHead stores HEAD as a single-line file holding the base32 CID.
type FileHead struct {
	path string
}

func NewFileHead(path string) *FileHead {
	return &FileHead{path: path}
}

func (h *FileHead) ReadHead() (gocid.Cid, error) {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return gocid.Undef, nil
	}
	if err != nil {
		return gocid.Undef, fmt.Errorf("read HEAD: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return gocid.Undef, nil
	}
	c, err := CIDFromFilename(s)
	if err != nil {
		return gocid.Undef, errcat.Errorf(ErrCorruptHistory, "HEAD holds an invalid CID: %s", err)
	}
	return c, nil
}

func (h *FileHead) WriteHead(c gocid.Cid) error {
	content := ""
	if c.Defined() {
		content = CIDToFilename(c) + "\n"
	}
	if err := SafeWrite(h.path, []byte(content), 0644); err != nil {
		return errcat.Errorf(ErrStoreUnwritable, "write HEAD: %s", err)
	}
	return nil
}

// MemoryHead keeps HEAD in memory.
type MemoryHead struct {
	mu   sync.RWMutex
	head gocid.Cid
}

func (h *MemoryHead) ReadHead() (gocid.Cid, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.head, nil
}

func (h *MemoryHead) WriteHead(c gocid.Cid) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = c
	return nil
}

// CommitLog manages the append-only commit chain and its head pointer.
type CommitLog struct {
	head  HeadStore
	store *ObjectStore
}

// NewCommitLog creates a CommitLog over the given head pointer and object store.
func NewCommitLog(head HeadStore, store *ObjectStore) *CommitLog {
	return &CommitLog{head: head, store: store}
}

// Head returns the CID of the current HEAD commit, or CidUndef if none.
func (cl *CommitLog) Head() (gocid.Cid, error) {
	return cl.head.ReadHead()
}

// SetHead moves HEAD. Only used to undo a commit whose follow-up steps failed.
func (cl *CommitLog) SetHead(c gocid.Cid) error {
	return cl.head.WriteHead(c)
}

// Commit stores a new commit for tree on top of parent and moves HEAD to it.
// parent must be the current HEAD (CidUndef for the first commit): history is linear.
func (cl *CommitLog) Commit(message string, tree, parent gocid.Cid, ts time.Time) (*Commit, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errcat.Errorf(ErrEmptyMessage, "commit message is empty")
	}
	if !cl.store.Has(tree) {
		return nil, errcat.Errorf(ErrNotFound, "commit tree %s is not stored", tree)
	}
	head, err := cl.Head()
	if err != nil {
		return nil, err
	}
	if !head.Equals(parent) {
		return nil, errcat.Errorf(ErrCorruptHistory, "parent %s is not the current head %s", parent, head)
	}
	if parent.Defined() && !cl.store.Has(parent) {
		return nil, errcat.Errorf(ErrCorruptHistory, "parent commit %s is not stored", parent)
	}

	ts = normalizeTime(ts)
	data, err := encodeCommit(message, ts, tree, parent)
	if err != nil {
		return nil, err
	}
	c, err := cl.store.put(objectCodec, data)
	if err != nil {
		return nil, fmt.Errorf("store commit: %w", err)
	}
	if err := cl.head.WriteHead(c); err != nil {
		return nil, err
	}
	return &Commit{ID: c, Message: message, Timestamp: ts, Tree: tree, Parent: parent}, nil
}

// GetCommit reads and decodes a commit by CID.
func (cl *CommitLog) GetCommit(c gocid.Cid) (*Commit, error) {
	if c.Defined() && c.Type() != objectCodec {
		return nil, errcat.Errorf(ErrCorruptObject, "object %s is not a commit", c)
	}
	data, err := cl.store.Get(c)
	if err != nil {
		return nil, err
	}
	return decodeCommit(c, data)
}

// Walk visits commits from HEAD along parent links, newest first, until fn
// returns false or the root commit has been visited. Each call starts again
// from the current HEAD.
func (cl *CommitLog) Walk(fn func(*Commit) bool) error {
	head, err := cl.Head()
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for current := head; current.Defined(); {
		if seen[current.KeyString()] {
			return errcat.Errorf(ErrCorruptHistory, "commit %s appears twice in history", current)
		}
		seen[current.KeyString()] = true

		commit, err := cl.GetCommit(current)
		if err != nil {
			return errcat.Errorf(ErrCorruptHistory, "history broken at %s: %s", current, err)
		}
		if !fn(commit) {
			return nil
		}
		current = commit.Parent
	}
	return nil
}

// Log walks the parent chain from HEAD, returning up to n commits (newest first).
// n <= 0 means the whole history.
func (cl *CommitLog) Log(n int) ([]*Commit, error) {
	var commits []*Commit
	err := cl.Walk(func(c *Commit) bool {
		commits = append(commits, c)
		return n <= 0 || len(commits) < n
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// History returns every commit reachable from HEAD, newest first.
// It is empty before the first commit.
func (cl *CommitLog) History() ([]*Commit, error) {
	return cl.Log(0)
}
