package main

import (
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"

	"github.com/systemshift/mxgit/internal/dag"
	"github.com/systemshift/mxgit/internal/worktree"
)

// app carries the global flags into every subcommand.
type app struct {
	repoPath string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mxgit",
		Short:         "Content-addressed snapshots of a file tree",
		Long:          "mxgit stages files into a content-addressed object store, commits snapshots of them and walks the resulting linear history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.repoPath, "repo", "C", ".", "worktree root containing .mxgit/")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log repository events to stderr")

	root.AddCommand(
		newInitCmd(a),
		newAddCmd(a),
		newCommitCmd(a),
		newStatusCmd(a),
		newLogCmd(a),
		newShowCmd(a),
		newCatCmd(a),
		newReflogCmd(a),
		newVerifyCmd(a),
		newMountCmd(a),
	)
	return root
}

func (a *app) options(stderr io.Writer) []dag.Option {
	opts := []dag.Option{dag.WithReader(worktree.New(a.repoPath))}
	if a.verbose {
		opts = append(opts, dag.WithLogger(log.New(stderr, "mxgit: ", log.LstdFlags)))
	}
	return opts
}

func (a *app) open(cmd *cobra.Command) (*dag.Repository, error) {
	return dag.OpenRepository(a.repoPath, a.options(cmd.ErrOrStderr())...)
}

// relPath maps a command-line path to a worktree path. Relative paths are
// taken from the worktree root, as if mxgit ran there.
func (a *app) relPath(p string) (string, error) {
	root, err := filepath.Abs(a.repoPath)
	if err != nil {
		return "", err
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errcat.Errorf(dag.ErrInvalidPath, "%s is outside the worktree %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}

func shortID(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
