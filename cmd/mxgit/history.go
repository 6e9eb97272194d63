package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"

	"github.com/systemshift/mxgit/internal/dag"
)

func newLogCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			commits, err := repo.Log(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range commits {
				if asJSON {
					data, err := dag.EncodeJSON(c.View(), false)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", data)
					continue
				}
				printCommit(out, c)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "show at most this many commits (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "one JSON object per line")
	return cmd
}

func printCommit(out io.Writer, c *dag.Commit) {
	fmt.Fprintf(out, "commit %s\n", c.ID)
	fmt.Fprintf(out, "Date:   %s\n", c.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Tree:   %s\n\n", c.Tree)
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(out, "    %s\n", line)
	}
	fmt.Fprintln(out)
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [<commit>]",
		Short: "Show a commit and the paths it changed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			id, err := repo.Resolve(rev)
			if err != nil {
				return err
			}
			commit, err := repo.GetCommit(id)
			if err != nil {
				return err
			}
			changes, err := repo.Changes(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printCommit(out, commit)
			for _, ch := range changes {
				fmt.Fprintf(out, "%s\t%s\n", changeLetter(ch.Kind), ch.Path)
			}
			return nil
		},
	}
}

func changeLetter(k dag.ChangeKind) string {
	switch k {
	case dag.ChangeAdded:
		return "A"
	case dag.ChangeDeleted:
		return "D"
	}
	return "M"
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <object> | cat <commit> <path>",
		Short: "Print a stored object, or a file as of a commit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			var data []byte
			if len(args) == 2 {
				id, err := repo.Resolve(args[0])
				if err != nil {
					return err
				}
				if data, err = repo.ReadFile(id, args[1]); err != nil {
					return err
				}
			} else {
				id, err := dag.ParseCID(args[0])
				if err != nil {
					return err
				}
				if data, err = repo.Object(id); err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newReflogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reflog",
		Short: "Show where HEAD has been, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			entries, err := repo.Reflog()
			if err != nil {
				return err
			}
			for _, e := range entries {
				to := e.New
				if to == "" {
					to = "(none)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", e.Time, shortID(to), e.Message)
			}
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every object reachable from HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}
			report, err := repo.Verify()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d commits, %d trees, %d blobs checked; %d unreachable objects\n",
				report.Commits, report.Trees, report.Blobs, report.Unreachable)
			for _, p := range report.Problems {
				fmt.Fprintf(out, "problem: %s\n", p)
			}
			if !report.OK() {
				return errcat.Errorf(dag.ErrCorruptObject, "%d problems found", len(report.Problems))
			}
			return nil
		},
	}
}
