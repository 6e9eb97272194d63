package dag

import (
	"fmt"
	"strings"
	"time"

	gocid "github.com/ipfs/go-cid"
	"github.com/warpfork/go-errcat"
)

// Commit is one snapshot in the linear history. Its ID is the CID of its
// serialized form, which covers exactly the message, the timestamp, the tree
// and the parent.
type Commit struct {
	ID        gocid.Cid
	Message   string
	Timestamp time.Time // UTC, nanosecond precision
	Tree      gocid.Cid
	Parent    gocid.Cid // CidUndef on the root commit
}

// IsRoot reports whether c is the first commit of the history.
func (c *Commit) IsRoot() bool {
	return !c.Parent.Defined()
}

// Summary is the first non-blank line of the message, trimmed.
func (c *Commit) Summary() string {
	s := strings.TrimSpace(c.Message)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// CommitView is the JSON shape of a commit for logs and the history filesystem.
type CommitView struct {
	ID        string `refmt:"id"`
	Message   string `refmt:"message"`
	Timestamp string `refmt:"timestamp"`
	Tree      string `refmt:"tree"`
	Parent    string `refmt:"parent,omitempty"`
}

// View returns the printable form of c.
func (c *Commit) View() CommitView {
	v := CommitView{
		ID:        c.ID.String(),
		Message:   c.Message,
		Timestamp: c.Timestamp.Format(time.RFC3339Nano),
		Tree:      c.Tree.String(),
	}
	if c.Parent.Defined() {
		v.Parent = c.Parent.String()
	}
	return v
}

// normalizeTime drops the monotonic reading and location so a timestamp
// survives a round trip through the store unchanged.
func normalizeTime(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}

func encodeCommit(message string, ts time.Time, tree, parent gocid.Cid) ([]byte, error) {
	node := commitNode{
		V:         1,
		Message:   message,
		Timestamp: ts.UnixNano(),
		Tree:      tree.Bytes(),
		Parent:    cidBytes(parent),
	}
	data, err := encodeObject(node)
	if err != nil {
		return nil, fmt.Errorf("serialize commit: %w", err)
	}
	return data, nil
}

func decodeCommit(c gocid.Cid, data []byte) (*Commit, error) {
	var node commitNode
	if err := decodeObject(data, &node); err != nil {
		return nil, errcat.Errorf(ErrCorruptObject, "decode commit %s: %s", c, err)
	}
	tree, err := gocid.Cast(node.Tree)
	if err != nil {
		return nil, errcat.Errorf(ErrCorruptObject, "commit %s tree: %s", c, err)
	}
	parent, err := cidFromBytes(node.Parent)
	if err != nil {
		return nil, errcat.Errorf(ErrCorruptObject, "commit %s parent: %s", c, err)
	}
	return &Commit{
		ID:        c,
		Message:   node.Message,
		Timestamp: time.Unix(0, node.Timestamp).UTC(),
		Tree:      tree,
		Parent:    parent,
	}, nil
}

// CommitID computes the CID a commit with these fields gets under the given
// hash, without storing anything.
func CommitID(hash uint64, message string, ts time.Time, tree, parent gocid.Cid) (gocid.Cid, error) {
	data, err := encodeCommit(message, normalizeTime(ts), tree, parent)
	if err != nil {
		return gocid.Undef, err
	}
	return computeCID(objectCodec, hash, data)
}
