package dag

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"

	"github.com/systemshift/mxgit/internal/config"
)

// MetaDir is the repository metadata directory inside the worktree root.
const MetaDir = ".mxgit"

const (
	headFile    = "HEAD"
	indexFile   = "index"
	headLogFile = "headlog.jsonl"
	objectsDir  = "objects"
)

// FileReader supplies file content to Add. The core never opens files itself.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// RepoState is the lifecycle position of a repository.
type RepoState int

const (
	StateEmpty       RepoState = iota // initialised, no commit yet
	StateHasHistory                   // at least one commit
)

func (s RepoState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHasHistory:
		return "has-history"
	}
	return fmt.Sprintf("RepoState(%d)", int(s))
}

// Repository ties the object store, staging index and commit log together.
// Stage and Commit are serialised by one lock; reads of stored objects are not.
type Repository struct {
	mu      sync.Mutex
	root    string // empty for in-memory repositories
	cfg     *config.Config
	store   *ObjectStore
	commits *CommitLog
	index   *StagingIndex
	journal HeadJournal
	reader  FileReader
	clock   Clock
	logger  *log.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the source of commit timestamps.
func WithClock(c Clock) Option {
	return func(r *Repository) { r.clock = c }
}

// WithReader sets the collaborator Add reads files through.
func WithReader(fr FileReader) Option {
	return func(r *Repository) { r.reader = fr }
}

// WithLogger routes repository events to l.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithJournal replaces the head journal.
func WithJournal(j HeadJournal) Option {
	return func(r *Repository) { r.journal = j }
}

// NewRepository assembles a repository from its collaborators.
func NewRepository(store *ObjectStore, head HeadStore, persist IndexStore, opts ...Option) (*Repository, error) {
	index, err := NewStagingIndex(store, persist)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	r := &Repository{
		cfg:     config.Default(),
		store:   store,
		commits: NewCommitLog(head, store),
		index:   index,
		journal: &MemoryHeadLog{},
		clock:   SystemClock,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewMemoryRepository returns an empty repository that lives only in memory,
// hashing with DefaultHash.
func NewMemoryRepository(opts ...Option) (*Repository, error) {
	store, err := NewObjectStore(NewMemoryBackend(), DefaultHash)
	if err != nil {
		return nil, err
	}
	return NewRepository(store, &MemoryHead{}, &MemoryIndex{}, opts...)
}

// InitRepository creates a repository under root/.mxgit and opens it. It refuses
// to touch an existing repository. A nil cfg means config.FromEnv().
func InitRepository(root string, cfg *config.Config, opts ...Option) (*Repository, error) {
	if cfg == nil {
		cfg = config.FromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errcat.Errorf(ErrConfigInvalid, "%s", err)
	}
	if _, err := HashFromName(cfg.Hash); err != nil {
		return nil, err
	}

	mxDir := filepath.Join(root, MetaDir)
	if _, err := os.Stat(mxDir); err == nil {
		return nil, errcat.Errorf(ErrRepositoryExists, "repository already exists at %s", mxDir)
	}
	if err := os.MkdirAll(filepath.Join(mxDir, objectsDir), 0755); err != nil {
		return nil, errcat.Errorf(ErrStoreUnwritable, "create %s: %s", mxDir, err)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := SafeWrite(filepath.Join(mxDir, config.FileName), data, 0644); err != nil {
		return nil, errcat.Errorf(ErrStoreUnwritable, "write config: %s", err)
	}
	if err := NewFileIndex(filepath.Join(mxDir, indexFile)).SaveIndex(nil); err != nil {
		return nil, err
	}
	return OpenRepository(root, opts...)
}

// OpenRepository opens the repository under root/.mxgit.
func OpenRepository(root string, opts ...Option) (*Repository, error) {
	mxDir := filepath.Join(root, MetaDir)
	if info, err := os.Stat(mxDir); err != nil || !info.IsDir() {
		return nil, errcat.Errorf(ErrNotARepository, "no repository at %s", root)
	}

	cfg, err := config.LoadFromFile(filepath.Join(mxDir, config.FileName))
	if err != nil {
		return nil, errcat.Errorf(ErrConfigInvalid, "%s", err)
	}
	hash, err := HashFromName(cfg.Hash)
	if err != nil {
		return nil, err
	}

	backend, err := NewFileBackend(filepath.Join(mxDir, objectsDir))
	if err != nil {
		return nil, errcat.Errorf(ErrStoreUnwritable, "%s", err)
	}
	store, err := NewObjectStore(backend, hash)
	if err != nil {
		return nil, err
	}

	base := []Option{WithJournal(NewFileHeadLog(filepath.Join(mxDir, headLogFile)))}
	if cfg.Verbose {
		base = append(base, WithLogger(log.New(os.Stderr, "mxgit: ", log.LstdFlags)))
	}
	r, err := NewRepository(store,
		NewFileHead(filepath.Join(mxDir, headFile)),
		NewFileIndex(filepath.Join(mxDir, indexFile)),
		append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	r.root = root
	r.cfg = cfg
	return r, nil
}

// Root returns the worktree root, or "" for an in-memory repository.
func (r *Repository) Root() string {
	return r.root
}

// DataDir returns the path to the .mxgit/ directory.
func (r *Repository) DataDir() string {
	if r.root == "" {
		return ""
	}
	return filepath.Join(r.root, MetaDir)
}

// Config returns the repository's settings.
func (r *Repository) Config() *config.Config {
	return r.cfg
}

// Store exposes the object store for read access.
func (r *Repository) Store() *ObjectStore {
	return r.store
}

// Stage records data as the content of path for the next commit.
func (r *Repository) Stage(path string, data []byte) (gocid.Cid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, err := r.index.Stage(path, data)
	if err != nil {
		return gocid.Undef, err
	}
	r.logger.Printf("staged %s as %s", path, blob)
	return blob, nil
}

// Add stages the file at path, read through the repository's FileReader.
func (r *Repository) Add(path string) (gocid.Cid, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return gocid.Undef, err
	}
	if r.reader == nil {
		return gocid.Undef, errcat.Errorf(ErrFileUnreadable, "cannot read %s: no file reader configured", clean)
	}
	data, err := r.reader.ReadFile(clean)
	if err != nil {
		return gocid.Undef, errcat.Errorf(ErrFileUnreadable, "read %s: %s", clean, err)
	}
	return r.Stage(clean, data)
}

// Staged returns the staged entries sorted by path.
func (r *Repository) Staged() []TreeEntry {
	return r.index.Entries()
}

// Commit snapshots the staged entries on top of HEAD's tree, appends a commit
// and clears the index. It either completes or leaves HEAD and the index as
// they were.
func (r *Repository) Commit(message string) (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(message) == "" {
		return nil, errcat.Errorf(ErrEmptyMessage, "commit message is empty")
	}
	if r.index.IsEmpty() {
		return nil, errcat.Errorf(ErrNothingToCommit, "nothing staged")
	}

	parent, err := r.commits.Head()
	if err != nil {
		return nil, err
	}
	entries, err := r.snapshot(parent, r.index.Entries())
	if err != nil {
		return nil, err
	}
	tree, err := BuildTree(r.store, entries)
	if err != nil {
		return nil, err
	}

	commit, err := r.commits.Commit(message, tree.ID, parent, r.clock.Now())
	if err != nil {
		return nil, err
	}
	r.record(parent, commit.ID, "commit: "+commit.Summary())

	if err := r.index.Clear(); err != nil {
		if rerr := r.commits.SetHead(parent); rerr != nil {
			return nil, errcat.Errorf(ErrCorruptHistory, "clear index: %s; restoring head %s: %s", err, parent, rerr)
		}
		r.record(commit.ID, parent, "rollback: index not cleared")
		r.logger.Printf("rolled back commit %s: %s", commit.ID, err)
		return nil, err
	}
	r.logger.Printf("committed %s tree %s (%d entries)", commit.ID, tree.ID, len(tree.Entries))
	return commit, nil
}

// snapshot overlays staged on the tree of parent. Staged paths win, including
// over parent files they turn into directories and parent files below them.
func (r *Repository) snapshot(parent gocid.Cid, staged []TreeEntry) ([]TreeEntry, error) {
	if !parent.Defined() {
		return staged, nil
	}
	prev, err := r.commits.GetCommit(parent)
	if err != nil {
		return nil, errcat.Errorf(ErrCorruptHistory, "read head commit: %s", err)
	}
	prevTree, err := GetTree(r.store, prev.Tree)
	if err != nil {
		return nil, errcat.Errorf(ErrCorruptHistory, "read head tree: %s", err)
	}
	paths := make([]string, len(staged))
	for i, e := range staged {
		paths[i] = e.Path
	}
	set := newPathSet(paths...)
	merged := make(map[string]gocid.Cid, len(prevTree.Entries)+len(staged))
	for _, e := range prevTree.Entries {
		if set.displaces(e.Path) {
			r.logger.Printf("replacing %s", e.Path)
			continue
		}
		merged[e.Path] = e.Blob
	}
	for _, e := range staged {
		merged[e.Path] = e.Blob
	}
	return sortedEntries(merged), nil
}

// record journals a head movement. The journal is advisory, so failures are
// only logged.
func (r *Repository) record(from, to gocid.Cid, message string) {
	if err := r.journal.Append(newHeadLogEntry(from, to, message, r.clock.Now())); err != nil {
		r.logger.Printf("head log warning: %v", err)
	}
}

// Head returns the CID of the newest commit, or CidUndef before the first one.
func (r *Repository) Head() (gocid.Cid, error) {
	return r.commits.Head()
}

// State reports whether the repository has any history.
func (r *Repository) State() (RepoState, error) {
	head, err := r.commits.Head()
	if err != nil {
		return StateEmpty, err
	}
	if head.Defined() {
		return StateHasHistory, nil
	}
	return StateEmpty, nil
}

// History returns all commits, newest first.
func (r *Repository) History() ([]*Commit, error) {
	return r.commits.History()
}

// Log returns at most n commits, newest first. n <= 0 means all.
func (r *Repository) Log(n int) ([]*Commit, error) {
	return r.commits.Log(n)
}

// Resolve turns "HEAD" or a printed CID into a commit CID.
func (r *Repository) Resolve(rev string) (gocid.Cid, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" || strings.EqualFold(rev, headFile) {
		head, err := r.commits.Head()
		if err != nil {
			return gocid.Undef, err
		}
		if !head.Defined() {
			return gocid.Undef, errcat.Errorf(ErrNotFound, "no commits yet")
		}
		return head, nil
	}
	return ParseCID(rev)
}

// GetCommit reads one commit.
func (r *Repository) GetCommit(c gocid.Cid) (*Commit, error) {
	return r.commits.GetCommit(c)
}

// GetTree reads one tree.
func (r *Repository) GetTree(c gocid.Cid) (*Tree, error) {
	return GetTree(r.store, c)
}

// Object returns the raw bytes of any stored object.
func (r *Repository) Object(c gocid.Cid) ([]byte, error) {
	return r.store.Get(c)
}

// ReadFile returns the content of path as of commit c.
func (r *Repository) ReadFile(c gocid.Cid, path string) ([]byte, error) {
	commit, err := r.commits.GetCommit(c)
	if err != nil {
		return nil, err
	}
	tree, err := GetTree(r.store, commit.Tree)
	if err != nil {
		return nil, err
	}
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	blob, ok := tree.Lookup(clean)
	if !ok {
		return nil, errcat.Errorf(ErrNotFound, "%s not in commit %s", clean, c)
	}
	return r.store.Get(blob)
}

// Changes lists what commit c changed relative to its parent.
func (r *Repository) Changes(c gocid.Cid) ([]Change, error) {
	commit, err := r.commits.GetCommit(c)
	if err != nil {
		return nil, err
	}
	tree, err := GetTree(r.store, commit.Tree)
	if err != nil {
		return nil, err
	}
	var parentTree *Tree
	if !commit.IsRoot() {
		parent, err := r.commits.GetCommit(commit.Parent)
		if err != nil {
			return nil, errcat.Errorf(ErrCorruptHistory, "parent of %s: %s", c, err)
		}
		if parentTree, err = GetTree(r.store, parent.Tree); err != nil {
			return nil, errcat.Errorf(ErrCorruptHistory, "parent tree of %s: %s", c, err)
		}
	}
	return diffTrees(parentTree, tree), nil
}

// Reflog returns the head journal, newest first.
func (r *Repository) Reflog() ([]HeadLogEntry, error) {
	entries, err := r.journal.Entries()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Verify checks every object reachable from HEAD.
func (r *Repository) Verify() (*VerifyReport, error) {
	head, err := r.commits.Head()
	if err != nil {
		return nil, err
	}
	return verifyHistory(r.store, r.commits, head)
}
