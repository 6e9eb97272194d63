package dag

import (
	"testing"

	gocid "github.com/ipfs/go-cid"
)

func putBlobs(t *testing.T, store *ObjectStore, contents ...string) []gocid.Cid {
	t.Helper()
	out := make([]gocid.Cid, len(contents))
	for i, s := range contents {
		c, err := store.Put([]byte(s))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		out[i] = c
	}
	return out
}

func TestBuildTree_OrderIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	b := putBlobs(t, store, "x", "y", "z")

	t1, err := BuildTree(store, []TreeEntry{
		{Path: "src/main.go", Blob: b[0]},
		{Path: "README", Blob: b[1]},
		{Path: "src/util.go", Blob: b[2]},
	})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	t2, err := BuildTree(store, []TreeEntry{
		{Path: "src/util.go", Blob: b[2]},
		{Path: "src/main.go", Blob: b[0]},
		{Path: "README", Blob: b[1]},
	})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if !t1.ID.Equals(t2.ID) {
		t.Fatalf("tree CIDs differ: %s vs %s", t1.ID, t2.ID)
	}
	if t1.ID.Type() != gocid.DagCBOR {
		t.Fatalf("codec = %x, want dag-cbor", t1.ID.Type())
	}
	want := []string{"README", "src/main.go", "src/util.go"}
	for i, e := range t1.Entries {
		if e.Path != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Path, want[i])
		}
	}
}

func TestBuildTree_ContentChangesID(t *testing.T) {
	store, _ := newTestStore(t)
	b := putBlobs(t, store, "one", "two")
	t1, _ := BuildTree(store, []TreeEntry{{Path: "f", Blob: b[0]}})
	t2, _ := BuildTree(store, []TreeEntry{{Path: "f", Blob: b[1]}})
	t3, _ := BuildTree(store, []TreeEntry{{Path: "g", Blob: b[0]}})
	if t1.ID.Equals(t2.ID) || t1.ID.Equals(t3.ID) {
		t.Fatal("different trees share a CID")
	}
}

func TestBuildTree_Rejects(t *testing.T) {
	store, _ := newTestStore(t)
	b := putBlobs(t, store, "a", "b")
	missing, _ := ComputeCID([]byte("not stored"))

	tests := []struct {
		name    string
		entries []TreeEntry
		want    ErrorCategory
	}{
		{"duplicate", []TreeEntry{{Path: "a", Blob: b[0]}, {Path: "a", Blob: b[1]}}, ErrInvalidPath},
		{"file and dir", []TreeEntry{{Path: "a", Blob: b[0]}, {Path: "a/b", Blob: b[1]}}, ErrInvalidPath},
		{"missing blob", []TreeEntry{{Path: "a", Blob: missing}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildTree(store, tt.entries); !IsCategory(err, tt.want) {
				t.Fatalf("err = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestGetTree_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	b := putBlobs(t, store, "1", "2")
	built, err := BuildTree(store, []TreeEntry{{Path: "docs/a.md", Blob: b[0]}, {Path: "b.txt", Blob: b[1]}})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	got, err := GetTree(store, built.ID)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(got.Entries))
	}
	blob, ok := got.Lookup("docs/a.md")
	if !ok || !blob.Equals(b[0]) {
		t.Fatalf("Lookup(docs/a.md) = %s, %v", blob, ok)
	}
	if _, ok := got.Lookup("docs"); ok {
		t.Fatal("Lookup(docs) found a directory")
	}

	if _, err := GetTree(store, b[0]); !IsCategory(err, ErrCorruptObject) {
		t.Fatalf("GetTree(blob): err = %v, want %s", err, ErrCorruptObject)
	}
}

func TestTree_Children(t *testing.T) {
	store, _ := newTestStore(t)
	b := putBlobs(t, store, "1", "2", "3", "4")
	tree, err := BuildTree(store, []TreeEntry{
		{Path: "z.txt", Blob: b[0]},
		{Path: "lib/a.go", Blob: b[1]},
		{Path: "lib/sub/b.go", Blob: b[2]},
		{Path: "a.txt", Blob: b[3]},
	})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	root := tree.Children("")
	names := make([]string, len(root))
	for i, c := range root {
		names[i] = c.Name
	}
	want := []string{"a.txt", "lib", "z.txt"}
	if len(names) != len(want) {
		t.Fatalf("root children = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("root children = %v, want %v", names, want)
		}
	}
	if !root[1].Dir {
		t.Fatal("lib is not a directory")
	}

	lib := tree.Children("lib")
	if len(lib) != 2 || lib[0].Name != "a.go" || lib[1].Name != "sub" || !lib[1].Dir {
		t.Fatalf("lib children = %+v", lib)
	}
	if !tree.IsDir("lib/sub") || tree.IsDir("lib/a.go") || tree.IsDir("li") {
		t.Fatal("IsDir answers wrong")
	}
}
