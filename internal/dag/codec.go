package dag

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/cbor"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"
)

// Structured objects (trees, commits) are CBOR with a fixed field order, so the
// same logical value always encodes to the same bytes and the same CID.
// Blobs are stored as-is under the raw codec.
const objectCodec = gocid.DagCBOR

// treeNode is the serial form of a Tree and of the persisted staging index.
type treeNode struct {
	V       int             `refmt:"v"`
	Entries []treeEntryNode `refmt:"entries"`
}

type treeEntryNode struct {
	Path string `refmt:"path"`
	Blob []byte `refmt:"blob"` // CID bytes
}

// commitNode is the serial form of a Commit. Only these fields feed the commit's CID.
type commitNode struct {
	V         int    `refmt:"v"`
	Message   string `refmt:"message"`
	Timestamp int64  `refmt:"timestamp"` // unix nanoseconds, UTC
	Tree      []byte `refmt:"tree"`      // CID bytes
	Parent    []byte `refmt:"parent"`    // CID bytes, empty on the root commit
}

var objectAtlas = atlas.MustBuild(
	atlas.BuildEntry(treeNode{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(treeEntryNode{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(commitNode{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(CommitView{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ChangeView{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(HeadLogEntry{}).StructMap().Autogenerate().Complete(),
)

func encodeObject(v interface{}) ([]byte, error) {
	return refmt.MarshalAtlased(cbor.EncodeOptions{}, v, objectAtlas)
}

func decodeObject(data []byte, v interface{}) error {
	return refmt.UnmarshalAtlased(cbor.DecodeOptions{}, data, v, objectAtlas)
}

// EncodeJSON renders one of the package's view types (CommitView, HeadLogEntry)
// as JSON with a stable key order. indent adds newlines, tab indentation and a
// trailing newline.
func EncodeJSON(v interface{}, indent bool) ([]byte, error) {
	opts := json.EncodeOptions{}
	if indent {
		opts.Line = []byte{'\n'}
		opts.Indent = []byte{'\t'}
	}
	data, err := refmt.MarshalAtlased(opts, v, objectAtlas)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// DecodeJSON is the inverse of EncodeJSON.
func DecodeJSON(data []byte, v interface{}) error {
	if err := refmt.UnmarshalAtlased(json.DecodeOptions{}, data, v, objectAtlas); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func cidBytes(c gocid.Cid) []byte {
	if !c.Defined() {
		return []byte{}
	}
	return c.Bytes()
}

func cidFromBytes(b []byte) (gocid.Cid, error) {
	if len(b) == 0 {
		return gocid.Undef, nil
	}
	return gocid.Cast(b)
}
