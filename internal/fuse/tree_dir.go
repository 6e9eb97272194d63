package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/mxgit/internal/dag"
)

// CommitsDir holds one directory per commit reachable from HEAD, named by CID.
type CommitsDir struct {
	fs.Inode
	repo *dag.Repository
}

var _ = (fs.NodeLookuper)((*CommitsDir)(nil))
var _ = (fs.NodeReaddirer)((*CommitsDir)(nil))
var _ = (fs.NodeGetattrer)((*CommitsDir)(nil))

func (d *CommitsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("commits")
	return fs.OK
}

func (d *CommitsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	commits, err := d.repo.History()
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, len(commits))
	for i, c := range commits {
		name := c.ID.String()
		entries[i] = fuse.DirEntry{
			Name: name,
			Mode: syscall.S_IFDIR,
			Ino:  stableIno("commits/" + name),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *CommitsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	c, err := gocid.Decode(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	commit, err := d.repo.GetCommit(c)
	if err != nil {
		return nil, syscall.ENOENT
	}
	tree, err := d.repo.GetTree(commit.Tree)
	if err != nil {
		return nil, syscall.EIO
	}
	ns := "commits/" + c.String()
	dir := &TreeDir{repo: d.repo, ns: ns, resolve: func() (*dag.Tree, error) { return tree, nil }}
	return d.NewInode(ctx, dir, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno(ns)}), fs.OK
}

// TreeDir is one directory of a snapshot. resolve yields the snapshot's tree on
// every call, so head/ follows HEAD while commits/<cid>/ stays fixed.
type TreeDir struct {
	fs.Inode
	repo    *dag.Repository
	ns      string // inode namespace: "head" or "commits/<cid>"
	dir     string // "" for the snapshot root
	resolve func() (*dag.Tree, error)
}

var _ = (fs.NodeLookuper)((*TreeDir)(nil))
var _ = (fs.NodeReaddirer)((*TreeDir)(nil))
var _ = (fs.NodeGetattrer)((*TreeDir)(nil))

func (d *TreeDir) key(name string) string {
	if d.dir == "" {
		return name
	}
	return d.dir + "/" + name
}

func (d *TreeDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(d.ns + "/" + d.dir)
	return fs.OK
}

func (d *TreeDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	tree, err := d.resolve()
	if err != nil {
		return nil, syscall.EIO
	}
	children := tree.Children(d.dir)
	entries := make([]fuse.DirEntry, len(children))
	for i, c := range children {
		entries[i] = fuse.DirEntry{Name: c.Name, Mode: syscall.S_IFREG, Ino: blobIno(d.ns, d.key(c.Name), c.Blob)}
		if c.Dir {
			entries[i].Mode = syscall.S_IFDIR
			entries[i].Ino = stableIno(d.ns + "/" + d.key(c.Name))
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *TreeDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	tree, err := d.resolve()
	if err != nil {
		return nil, syscall.EIO
	}
	p := d.key(name)
	if blob, ok := tree.Lookup(p); ok {
		ino := blobIno(d.ns, p, blob)
		f := &DataFile{ino: ino, load: func() ([]byte, error) { return d.repo.Object(blob) }}
		return d.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino}), fs.OK
	}
	if tree.IsDir(p) {
		sub := &TreeDir{repo: d.repo, ns: d.ns, dir: p, resolve: d.resolve}
		return d.NewInode(ctx, sub, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno(d.ns + "/" + p)}), fs.OK
	}
	return nil, syscall.ENOENT
}

// blobIno changes with the blob, so a file under head/ gets a fresh inode
// (and a fresh page cache) when its content moves on.
func blobIno(ns, path string, blob gocid.Cid) uint64 {
	return stableIno(ns + "/" + path + "@" + blob.KeyString())
}
