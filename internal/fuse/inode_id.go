package fuse

import "github.com/zeebo/xxh3"

// stableIno returns a stable inode number for a given path string.
func stableIno(path string) uint64 {
	return xxh3.HashString(path)
}

// readAt serves one Read call out of an in-memory file body.
func readAt(data, dest []byte, off int64) []byte {
	if off >= int64(len(data)) {
		return nil
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[off:end]
}
