package fuse

import (
	"context"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/mxgit/internal/dag"
)

const maxLogEntries = 64

// LogDir exposes recent commits as files in the FUSE tree.
// Layout: log/0 (newest commit JSON), log/1, ...
type LogDir struct {
	fs.Inode
	repo *dag.Repository
}

var _ = (fs.NodeLookuper)((*LogDir)(nil))
var _ = (fs.NodeReaddirer)((*LogDir)(nil))
var _ = (fs.NodeGetattrer)((*LogDir)(nil))

func (d *LogDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("log")
	return fs.OK
}

func (d *LogDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	commits, err := d.repo.Log(maxLogEntries)
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, len(commits))
	for i, c := range commits {
		entries[i] = fuse.DirEntry{
			Name: strconv.Itoa(i),
			Mode: syscall.S_IFREG,
			Ino:  stableIno("log/" + c.ID.KeyString()),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *LogDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || idx >= maxLogEntries || strconv.Itoa(idx) != name {
		return nil, syscall.ENOENT
	}
	commits, err := d.repo.Log(idx + 1)
	if err != nil {
		return nil, syscall.EIO
	}
	if idx >= len(commits) {
		return nil, syscall.ENOENT
	}

	// log/N moves as history grows; the inode follows the commit, not the name.
	commit := commits[idx]
	ino := stableIno("log/" + commit.ID.KeyString())
	f := &DataFile{ino: ino, load: func() ([]byte, error) { return commitJSON(commit) }}
	return d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino}), fs.OK
}

func commitJSON(c *dag.Commit) ([]byte, error) {
	return dag.EncodeJSON(c.View(), true)
}
