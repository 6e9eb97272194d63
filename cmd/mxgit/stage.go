package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxgit/internal/config"
	"github.com/systemshift/mxgit/internal/dag"
)

func newInitCmd(a *app) *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if hash != "" {
				cfg.Hash = hash
			}
			repo, err := dag.InitRepository(a.repoPath, cfg, a.options(cmd.ErrOrStderr())...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty mxgit repository in %s (%s)\n", repo.DataDir(), repo.Config().Hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "hash function for object ids: "+strings.Join(config.SupportedHashes, ", "))
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Stage file contents for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			// A path that cannot be read is reported; the others are still staged.
			var firstErr error
			for _, arg := range args {
				if err := a.addOne(cmd, repo, arg); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "mxgit: %v\n", err)
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return firstErr
		},
	}
}

func (a *app) addOne(cmd *cobra.Command, repo *dag.Repository, arg string) error {
	p, err := a.relPath(arg)
	if err != nil {
		return err
	}
	blob, err := repo.Add(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "staged %s %s\n", p, shortID(blob.String()))
	return nil
}

func newCommitCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit [-m <message> | <message>]",
		Short: "Record the staged files as a new commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				message = strings.Join(args, " ")
			}
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			commit, err := repo.Commit(message)
			if err != nil {
				return err
			}
			kind := ""
			if commit.IsRoot() {
				kind = " (root-commit)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s%s] %s\n", shortID(commit.ID.String()), kind, commit.Summary())
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show HEAD and the staged files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			head, err := repo.Head()
			if err != nil {
				return err
			}
			if head.Defined() {
				fmt.Fprintf(out, "HEAD %s\n", head)
			} else {
				fmt.Fprintln(out, "No commits yet")
			}

			staged := repo.Staged()
			if len(staged) == 0 {
				fmt.Fprintln(out, "nothing staged")
				return nil
			}
			var tree *dag.Tree
			if head.Defined() {
				commit, err := repo.GetCommit(head)
				if err != nil {
					return err
				}
				if tree, err = repo.GetTree(commit.Tree); err != nil {
					return err
				}
			}
			fmt.Fprintln(out, "Staged:")
			for _, e := range staged {
				fmt.Fprintf(out, "\t%-9s %s\n", stagedKind(tree, e)+":", e.Path)
			}
			return nil
		},
	}
}

func stagedKind(tree *dag.Tree, e dag.TreeEntry) string {
	if tree == nil {
		return "new"
	}
	old, ok := tree.Lookup(e.Path)
	switch {
	case !ok:
		return "new"
	case old.Equals(e.Blob):
		return "unchanged"
	default:
		return "modified"
	}
}
