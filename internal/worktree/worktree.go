// Package worktree reads and writes the user's files next to a repository.
// The version-control core never touches the filesystem itself; it receives
// bytes through a Worktree.
package worktree

import (
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Worktree is a file tree rooted at one directory.
type Worktree struct {
	fs billy.Filesystem
}

// New returns a Worktree over the directory root. Paths cannot escape root.
func New(root string) *Worktree {
	return &Worktree{fs: osfs.New(root, osfs.WithBoundOS())}
}

// NewMemory returns an empty in-memory Worktree.
func NewMemory() *Worktree {
	return &Worktree{fs: memfs.New()}
}

// Root returns the worktree's root directory.
func (w *Worktree) Root() string {
	return w.fs.Root()
}

// ReadFile returns the full content of the file at the slash-separated path p.
func (w *Worktree) ReadFile(p string) ([]byte, error) {
	info, err := w.fs.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	return util.ReadFile(w.fs, p)
}

// WriteFile writes data to p, creating parent directories.
func (w *Worktree) WriteFile(p string, data []byte) error {
	if dir := path.Dir(p); dir != "." {
		if err := w.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return util.WriteFile(w.fs, p, data, 0644)
}
