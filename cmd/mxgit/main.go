// Command mxgit is a small content-addressed version-control tool: stage
// files, commit snapshots, walk the linear history and mount it read-only.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mxgit: %v\n", err)
		os.Exit(1)
	}
}
