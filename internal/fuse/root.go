package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/mxgit/internal/dag"
)

// RootNode is the mountpoint directory. Contains "HEAD", "log/", "commits/" and "head/".
type RootNode struct {
	fs.Inode
	repo *dag.Repository
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) OnAdd(ctx context.Context) {
	r.AddChild("HEAD", r.NewPersistentInode(ctx, newHeadFile(r.repo), fs.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  stableIno("HEAD"),
	}), true)

	logDir := &LogDir{repo: r.repo}
	r.AddChild("log", r.NewPersistentInode(ctx, logDir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("log"),
	}), true)

	commitsDir := &CommitsDir{repo: r.repo}
	r.AddChild("commits", r.NewPersistentInode(ctx, commitsDir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("commits"),
	}), true)

	headDir := &TreeDir{repo: r.repo, ns: "head", resolve: func() (*dag.Tree, error) { return headTree(r.repo) }}
	r.AddChild("head", r.NewPersistentInode(ctx, headDir, fs.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  stableIno("head"),
	}), true)
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno("/")
	return fs.OK
}

// newHeadFile serves HEAD. Its inode outlives commits, so its pages are never cached.
func newHeadFile(repo *dag.Repository) *DataFile {
	return &DataFile{
		ino:      stableIno("HEAD"),
		volatile: true,
		load:     func() ([]byte, error) { return headBytes(repo), nil },
	}
}

func headBytes(repo *dag.Repository) []byte {
	head, err := repo.Head()
	if err != nil || !head.Defined() {
		return []byte("(none)\n")
	}
	return []byte(head.String() + "\n")
}

// headTree returns the tree of the head commit, or an empty tree before the first commit.
func headTree(repo *dag.Repository) (*dag.Tree, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	if !head.Defined() {
		return &dag.Tree{}, nil
	}
	commit, err := repo.GetCommit(head)
	if err != nil {
		return nil, err
	}
	return repo.GetTree(commit.Tree)
}

// DataFile is a read-only file whose body is produced on demand. Unless
// volatile, the body is fixed for the life of the inode and the kernel may
// keep its pages.
type DataFile struct {
	fs.Inode
	ino      uint64
	volatile bool
	load     func() ([]byte, error)
}

var _ = (fs.NodeGetattrer)((*DataFile)(nil))
var _ = (fs.NodeReader)((*DataFile)(nil))
var _ = (fs.NodeOpener)((*DataFile)(nil))

func (f *DataFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, err := f.load()
	if err != nil {
		return syscall.EIO
	}
	out.Mode = 0444
	out.Size = uint64(len(data))
	out.Ino = f.ino
	return fs.OK
}

func (f *DataFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if f.volatile {
		return nil, 0, fs.OK
	}
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *DataFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := f.load()
	if err != nil {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(readAt(data, dest, off)), fs.OK
}
