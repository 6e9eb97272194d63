package dag

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/multiformats/go-multihash"

	"github.com/systemshift/mxgit/internal/config"
)

type mapReader map[string]string

func (m mapReader) ReadFile(path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(s), nil
}

func TestRepository_EmptyHistory(t *testing.T) {
	repo, _ := newTestRepo(t)
	commits, err := repo.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 0 {
		t.Fatalf("got %d commits, want 0", len(commits))
	}
	state, _ := repo.State()
	if state != StateEmpty {
		t.Fatalf("state = %s, want empty", state)
	}
	if _, err := repo.Resolve("HEAD"); !IsCategory(err, ErrNotFound) {
		t.Fatalf("Resolve(HEAD) err = %v", err)
	}
}

func TestRepository_NothingToCommit(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.Commit("nothing"); !IsCategory(err, ErrNothingToCommit) {
		t.Fatalf("err = %v, want %s", err, ErrNothingToCommit)
	}

	mustStage(t, repo, "a.txt", "a")
	first := mustCommit(t, repo, "first")
	if _, err := repo.Commit("again"); !IsCategory(err, ErrNothingToCommit) {
		t.Fatalf("err = %v, want %s", err, ErrNothingToCommit)
	}
	head, _ := repo.Head()
	if !head.Equals(first.ID) {
		t.Fatalf("head moved to %s", head)
	}
}

func TestRepository_CommitClearsIndex(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a.txt", "a")
	mustStage(t, repo, "b.txt", "b")
	mustCommit(t, repo, "two files")
	if staged := repo.Staged(); len(staged) != 0 {
		t.Fatalf("staged after commit = %+v", staged)
	}
	state, _ := repo.State()
	if state != StateHasHistory {
		t.Fatalf("state = %s, want has-history", state)
	}
}

func TestRepository_HistoryOrderAndLength(t *testing.T) {
	repo, _ := newTestRepo(t)
	messages := []string{"one", "two", "three", "four"}
	for i, m := range messages {
		mustStage(t, repo, "counter", strings.Repeat("x", i+1))
		mustCommit(t, repo, m)
	}
	commits, err := repo.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != len(messages) {
		t.Fatalf("got %d commits, want %d", len(commits), len(messages))
	}
	for i, c := range commits {
		want := messages[len(messages)-1-i]
		if c.Message != want {
			t.Errorf("commit %d = %q, want %q", i, c.Message, want)
		}
		if i > 0 && !commits[i-1].Timestamp.After(c.Timestamp) {
			t.Errorf("commit %d is not older than commit %d", i, i-1)
		}
	}
	last2, _ := repo.Log(2)
	if len(last2) != 2 || last2[1].Message != "three" {
		t.Fatalf("Log(2) = %+v", last2)
	}
}

func TestRepository_EmptyMessageCreatesNothing(t *testing.T) {
	repo, backend := newTestRepo(t)
	mustStage(t, repo, "a.txt", "a")
	before := backend.count()

	for _, msg := range []string{"", "   ", "\n\t"} {
		if _, err := repo.Commit(msg); !IsCategory(err, ErrEmptyMessage) {
			t.Fatalf("Commit(%q) err = %v, want %s", msg, err, ErrEmptyMessage)
		}
	}
	if after := backend.count(); after != before {
		t.Fatalf("objects %d -> %d after rejected commits", before, after)
	}
	if head, _ := repo.Head(); head.Defined() {
		t.Fatalf("head = %s, want none", head)
	}
	if len(repo.Staged()) != 1 {
		t.Fatal("rejected commit touched the index")
	}
}

func TestRepository_Add(t *testing.T) {
	reader := mapReader{"a.txt": "alpha", "dir/b.txt": "beta"}
	repo, _ := newTestRepo(t, WithReader(reader))

	if _, err := repo.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.Add("missing.txt"); !IsCategory(err, ErrFileUnreadable) {
		t.Fatalf("Add(missing) err = %v, want %s", err, ErrFileUnreadable)
	}
	if _, err := repo.Add("./dir/b.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	staged := repo.Staged()
	if len(staged) != 2 || staged[0].Path != "a.txt" || staged[1].Path != "dir/b.txt" {
		t.Fatalf("staged = %+v", staged)
	}
}

func TestRepository_AddWithoutReader(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.Add("a.txt"); !IsCategory(err, ErrFileUnreadable) {
		t.Fatalf("err = %v, want %s", err, ErrFileUnreadable)
	}
}

func TestRepository_SnapshotAccumulates(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a.txt", "a1")
	mustStage(t, repo, "b.txt", "b1")
	first := mustCommit(t, repo, "first")
	mustStage(t, repo, "a.txt", "a2")
	mustStage(t, repo, "c.txt", "c1")
	second := mustCommit(t, repo, "second")

	tree, err := repo.GetTree(second.Tree)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(tree.Entries) != 3 {
		t.Fatalf("tree has %d entries, want 3", len(tree.Entries))
	}
	for path, want := range map[string]string{"a.txt": "a2", "b.txt": "b1", "c.txt": "c1"} {
		got, err := repo.ReadFile(second.ID, path)
		if err != nil || string(got) != want {
			t.Errorf("ReadFile(%s) = %q, %v; want %q", path, got, err, want)
		}
	}
	old, _ := repo.ReadFile(first.ID, "a.txt")
	if string(old) != "a1" {
		t.Errorf("first a.txt = %q, want %q", old, "a1")
	}
	if _, err := repo.ReadFile(first.ID, "c.txt"); !IsCategory(err, ErrNotFound) {
		t.Errorf("c.txt in first commit: err = %v", err)
	}

	changes, err := repo.Changes(second.ID)
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != 2 || changes[0].Path != "a.txt" || changes[0].Kind != ChangeModified ||
		changes[1].Path != "c.txt" || changes[1].Kind != ChangeAdded {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestRepository_FileReplacedByDirectory(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a", "file")
	mustCommit(t, repo, "file a")

	mustStage(t, repo, "a/b", "nested")
	second := mustCommit(t, repo, "dir a")
	tree, err := repo.GetTree(second.Tree)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].Path != "a/b" {
		t.Fatalf("tree = %+v, want only a/b", tree.Entries)
	}
	changes, err := repo.Changes(second.ID)
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != 2 || changes[0].Path != "a" || changes[0].Kind != ChangeDeleted ||
		changes[1].Path != "a/b" || changes[1].Kind != ChangeAdded {
		t.Fatalf("changes = %+v", changes)
	}

	mustStage(t, repo, "c", "more")
	mustCommit(t, repo, "still committable")
	if commits, _ := repo.History(); len(commits) != 3 {
		t.Fatalf("history has %d commits, want 3", len(commits))
	}
}

func TestRepository_DirectoryReplacedByFile(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "d/e", "e")
	mustStage(t, repo, "d/f/g", "g")
	mustStage(t, repo, "dx", "kept")
	mustCommit(t, repo, "dir d")

	mustStage(t, repo, "d", "now a file")
	second := mustCommit(t, repo, "file d")
	tree, _ := repo.GetTree(second.Tree)
	var paths []string
	for _, e := range tree.Entries {
		paths = append(paths, e.Path)
	}
	if strings.Join(paths, ",") != "d,dx" {
		t.Fatalf("tree paths = %v, want [d dx]", paths)
	}
	changes, _ := repo.Changes(second.ID)
	var kinds []string
	for _, c := range changes {
		kinds = append(kinds, c.Path+":"+string(c.Kind))
	}
	if got := strings.Join(kinds, " "); got != "d:added d/e:deleted d/f/g:deleted" {
		t.Fatalf("changes = %s", got)
	}
}

func TestRepository_StagedConflictDoesNotWedge(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a", "file")
	mustStage(t, repo, "a/b", "nested")
	if staged := repo.Staged(); len(staged) != 1 || staged[0].Path != "a/b" {
		t.Fatalf("staged = %+v, want only a/b", staged)
	}
	mustCommit(t, repo, "first")

	mustStage(t, repo, "c", "c")
	mustCommit(t, repo, "second")
	if len(repo.Staged()) != 0 {
		t.Fatal("index not empty after commit")
	}
}

func TestRepository_ConcurrentStageAndCommit(t *testing.T) {
	repo, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("NewMemoryRepository: %v", err)
	}
	const writers, perWriter = 4, 10

	var (
		writersWG sync.WaitGroup
		readersWG sync.WaitGroup
		mu        sync.Mutex
		committed int
		done      = make(chan struct{})
	)
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for i := 0; i < perWriter; i++ {
				p := fmt.Sprintf("w%d/f%d", w, i)
				if _, err := repo.Stage(p, []byte(p)); err != nil {
					t.Errorf("Stage(%s): %v", p, err)
					return
				}
				_, err := repo.Commit("add " + p)
				switch {
				case err == nil:
					mu.Lock()
					committed++
					mu.Unlock()
				case !IsCategory(err, ErrNothingToCommit):
					t.Errorf("Commit: %v", err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		readersWG.Add(1)
		go func() {
			defer readersWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				commits, err := repo.History()
				if err != nil {
					t.Errorf("History: %v", err)
					return
				}
				for _, c := range commits {
					if _, err := repo.Store().Get(c.Tree); err != nil {
						t.Errorf("Get(%s): %v", c.Tree, err)
						return
					}
				}
			}
		}()
	}
	writersWG.Wait()
	close(done)
	readersWG.Wait()

	commits, err := repo.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if committed == 0 || len(commits) != committed {
		t.Fatalf("history has %d commits, %d commits succeeded", len(commits), committed)
	}
	if staged := repo.Staged(); len(staged) != 0 {
		t.Fatalf("index holds %d entries after the last commit", len(staged))
	}
	tree, err := repo.GetTree(commits[0].Tree)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(tree.Entries) != writers*perWriter {
		t.Fatalf("head tree has %d entries, want %d", len(tree.Entries), writers*perWriter)
	}
}

type clearFailIndex struct {
	MemoryIndex
}

func (c *clearFailIndex) SaveIndex(entries []TreeEntry) error {
	if len(entries) == 0 {
		return errors.New("index is read-only")
	}
	return c.MemoryIndex.SaveIndex(entries)
}

func TestRepository_CommitRollsBackHead(t *testing.T) {
	store, _ := newTestStore(t)
	var logged bytes.Buffer
	repo, err := NewRepository(store, &MemoryHead{}, &clearFailIndex{},
		WithClock(stepClock(epoch)), WithLogger(log.New(&logged, "", 0)))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	mustStage(t, repo, "a.txt", "a")
	if _, err := repo.Commit("doomed"); err == nil {
		t.Fatal("expected commit to fail")
	}
	if head, _ := repo.Head(); head.Defined() {
		t.Fatalf("head = %s after failed commit", head)
	}
	if len(repo.Staged()) != 1 {
		t.Fatal("index lost the staged entry")
	}
	reflog, _ := repo.Reflog()
	if len(reflog) != 2 || !strings.HasPrefix(reflog[0].Message, "rollback") || reflog[0].New != "" {
		t.Fatalf("reflog = %+v", reflog)
	}
	if !strings.Contains(logged.String(), "rolled back") {
		t.Fatalf("log = %q", logged.String())
	}
}

func TestRepository_Reflog(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a", "1")
	first := mustCommit(t, repo, "first\n\nbody text")
	mustStage(t, repo, "a", "2")
	second := mustCommit(t, repo, "second")

	entries, err := repo.Reflog()
	if err != nil {
		t.Fatalf("Reflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].New != second.ID.String() || entries[0].Old != first.ID.String() {
		t.Fatalf("newest entry = %+v", entries[0])
	}
	if entries[1].Message != "commit: first" {
		t.Fatalf("oldest message = %q", entries[1].Message)
	}
}

func TestRepository_Resolve(t *testing.T) {
	repo, _ := newTestRepo(t)
	mustStage(t, repo, "a", "1")
	c := mustCommit(t, repo, "first")
	for _, rev := range []string{"", "HEAD", "head", c.ID.String(), CIDToFilename(c.ID)} {
		got, err := repo.Resolve(rev)
		if err != nil || !got.Equals(c.ID) {
			t.Errorf("Resolve(%q) = %s, %v", rev, got, err)
		}
	}
}

func TestInitRepository(t *testing.T) {
	root := t.TempDir()
	repo, err := InitRepository(root, config.Default(), WithClock(stepClock(epoch)))
	if err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	for _, name := range []string{config.FileName, indexFile, objectsDir} {
		if _, err := os.Stat(filepath.Join(root, MetaDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, MetaDir, headFile)); !os.IsNotExist(err) {
		t.Errorf("HEAD exists before the first commit")
	}
	if repo.DataDir() != filepath.Join(root, MetaDir) {
		t.Errorf("DataDir = %s", repo.DataDir())
	}

	if _, err := InitRepository(root, nil); !IsCategory(err, ErrRepositoryExists) {
		t.Fatalf("second init err = %v, want %s", err, ErrRepositoryExists)
	}
}

func TestOpenRepository_NotARepository(t *testing.T) {
	if _, err := OpenRepository(t.TempDir()); !IsCategory(err, ErrNotARepository) {
		t.Fatalf("err = %v, want %s", err, ErrNotARepository)
	}
}

func TestOpenRepository_BadConfig(t *testing.T) {
	root := t.TempDir()
	if _, err := InitRepository(root, nil); err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	os.WriteFile(filepath.Join(root, MetaDir, config.FileName), []byte("hash: md5\n"), 0644)
	if _, err := OpenRepository(root); !IsCategory(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want %s", err, ErrConfigInvalid)
	}
}

func TestFileRepository_Persists(t *testing.T) {
	root := t.TempDir()
	repo, err := InitRepository(root, &config.Config{Hash: "blake3"}, WithClock(stepClock(epoch)))
	if err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	mustStage(t, repo, "a.txt", "hello")
	first := mustCommit(t, repo, "first")
	mustStage(t, repo, "b.txt", "staged, not committed")

	reopened, err := OpenRepository(root)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	if reopened.Store().Hash() != multihash.BLAKE3 {
		t.Fatalf("hash = %s, want blake3", HashName(reopened.Store().Hash()))
	}
	head, _ := reopened.Head()
	if !head.Equals(first.ID) {
		t.Fatalf("head = %s, want %s", head, first.ID)
	}
	if first.ID.Prefix().MhType != multihash.BLAKE3 {
		t.Fatalf("commit hashed with %s", HashName(first.ID.Prefix().MhType))
	}
	staged := reopened.Staged()
	if len(staged) != 1 || staged[0].Path != "b.txt" {
		t.Fatalf("staged = %+v", staged)
	}
	reflog, _ := reopened.Reflog()
	if len(reflog) != 1 {
		t.Fatalf("reflog has %d entries, want 1", len(reflog))
	}
	data, err := reopened.ReadFile(head, "a.txt")
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
}

func TestInitRepository_HashFromEnv(t *testing.T) {
	t.Setenv(config.HashEnv, "sha2-512")
	root := t.TempDir()
	repo, err := InitRepository(root, nil)
	if err != nil {
		t.Fatalf("InitRepository: %v", err)
	}
	if repo.Config().Hash != "sha2-512" {
		t.Fatalf("config hash = %q", repo.Config().Hash)
	}

	t.Setenv(config.HashEnv, "crc32")
	if _, err := InitRepository(t.TempDir(), nil); !IsCategory(err, ErrConfigInvalid) {
		t.Fatalf("err = %v, want %s", err, ErrConfigInvalid)
	}
}
