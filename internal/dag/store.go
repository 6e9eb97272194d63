package dag

import (
	"fmt"
	"sort"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/warpfork/go-errcat"
)

// CidUndef is the undefined/zero CID value. It stands for "no commit yet" as a head
// and for "no parent" on a root commit.
var CidUndef = gocid.Undef

// DefaultHash is the multihash function used when the configuration names none.
const DefaultHash = multihash.SHA2_256

// minDigestBits is the shortest digest accepted as an object identity.
const minDigestBits = 160

// ObjectStore manages CID-addressed immutable objects on top of a Backend.
// Written objects never change, so reads need no locking.
type ObjectStore struct {
	backend Backend
	hash    uint64 // multihash code for new objects
}

// NewObjectStore creates an ObjectStore writing new objects with the given multihash function.
func NewObjectStore(backend Backend, hash uint64) (*ObjectStore, error) {
	if err := checkHash(hash); err != nil {
		return nil, err
	}
	return &ObjectStore{backend: backend, hash: hash}, nil
}

// HashFromName resolves a multihash function name such as "sha2-256" or "blake3".
func HashFromName(name string) (uint64, error) {
	code, ok := multihash.Names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errcat.Errorf(ErrConfigInvalid, "unknown hash function %q", name)
	}
	if err := checkHash(code); err != nil {
		return 0, err
	}
	return code, nil
}

// HashName returns the multihash name of a hash code.
func HashName(code uint64) string {
	if name, ok := multihash.Codes[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", code)
}

func checkHash(code uint64) error {
	length, ok := multihash.DefaultLengths[code]
	if !ok || length < 0 {
		return errcat.Errorf(ErrConfigInvalid, "hash function %s has no fixed digest length", HashName(code))
	}
	if length*8 < minDigestBits {
		return errcat.Errorf(ErrConfigInvalid, "hash function %s is too short (%d bits, need %d)", HashName(code), length*8, minDigestBits)
	}
	if _, err := multihash.Sum(nil, code, -1); err != nil {
		return errcat.Errorf(ErrConfigInvalid, "hash function %s unavailable: %s", HashName(code), err)
	}
	return nil
}

// ComputeCID computes a CIDv1 (raw codec, SHA2-256) for the given data.
func ComputeCID(data []byte) (gocid.Cid, error) {
	return computeCID(gocid.Raw, DefaultHash, data)
}

func computeCID(codec, hash uint64, data []byte) (gocid.Cid, error) {
	p := gocid.Prefix{Version: 1, Codec: codec, MhType: hash, MhLength: -1}
	c, err := p.Sum(data)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return c, nil
}

// CIDToFilename returns the base32lower encoding of a CID for use as a filename.
func CIDToFilename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// CIDFromFilename parses a name produced by CIDToFilename.
func CIDFromFilename(name string) (gocid.Cid, error) {
	_, cidBytes, err := multibase.Decode(strings.TrimSpace(name))
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode CID %q: %w", name, err)
	}
	return gocid.Cast(cidBytes)
}

// ParseCID accepts any multibase-encoded CID string, as printed by the CLI.
func ParseCID(s string) (gocid.Cid, error) {
	c, err := gocid.Decode(strings.TrimSpace(s))
	if err != nil {
		return gocid.Undef, errcat.Errorf(ErrNotFound, "not a valid object id %q: %s", s, err)
	}
	return c, nil
}

// Hash returns the multihash code used for new objects.
func (s *ObjectStore) Hash() uint64 {
	return s.hash
}

// Put writes a blob to the object store, returning its CID.
// If the object already exists, this is a no-op.
func (s *ObjectStore) Put(data []byte) (gocid.Cid, error) {
	return s.put(gocid.Raw, data)
}

func (s *ObjectStore) put(codec uint64, data []byte) (gocid.Cid, error) {
	c, err := computeCID(codec, s.hash, data)
	if err != nil {
		return gocid.Undef, err
	}
	if s.backend.Has(c) {
		return c, nil // already exists
	}
	if err := s.backend.Put(c, data); err != nil {
		return gocid.Undef, errcat.Errorf(ErrStoreUnwritable, "write object %s: %s", c, err)
	}
	return c, nil
}

// Get reads an object by CID and checks that its bytes still hash to it.
func (s *ObjectStore) Get(c gocid.Cid) ([]byte, error) {
	if !c.Defined() {
		return nil, errcat.Errorf(ErrNotFound, "object id is undefined")
	}
	data, err := s.backend.Get(c)
	if err != nil {
		return nil, err
	}
	check, err := c.Prefix().Sum(data)
	if err != nil || !check.Equals(c) {
		return nil, errcat.Errorf(ErrCorruptObject, "object %s does not match its content", c)
	}
	return data, nil
}

// Has checks if an object exists.
func (s *ObjectStore) Has(c gocid.Cid) bool {
	return c.Defined() && s.backend.Has(c)
}

// Keys lists every stored object, sorted by filename.
func (s *ObjectStore) Keys() ([]gocid.Cid, error) {
	keys, err := s.backend.Keys()
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return CIDToFilename(keys[i]) < CIDToFilename(keys[j])
	})
	return keys, nil
}

// KeysOfCodec lists the stored objects whose CID carries the given codec.
func (s *ObjectStore) KeysOfCodec(codec uint64) ([]gocid.Cid, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if k.Type() == codec {
			out = append(out, k)
		}
	}
	return out, nil
}
