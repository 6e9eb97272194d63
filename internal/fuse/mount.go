package fuse

import (
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/mxgit/internal/dag"
)

// MountFS mounts a read-only view of repo's history at mountpoint.
// Returns the server (call server.Wait() to block, server.Unmount() to stop).
func MountFS(mountpoint string, repo *dag.Repository, debug bool) (*gofuse.Server, error) {
	root := &RootNode{repo: repo}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        "mxgit",
			Name:          "mxgit",
			Options:       []string{"ro"},
			DisableXAttrs: true,
			Debug:         debug,
		},
	}

	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}
