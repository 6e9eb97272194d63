package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mxfuse "github.com/systemshift/mxgit/internal/fuse"
)

func newMountCmd(a *app) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "mount <dir>",
		Short: "Mount the history read-only at dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountpoint := args[0]
			if err := os.MkdirAll(mountpoint, 0755); err != nil {
				return err
			}

			log.Printf("mxgit: opening repository at %s", a.repoPath)
			repo, err := a.open(cmd)
			if err != nil {
				return err
			}

			log.Printf("mxgit: mounting at %s", mountpoint)
			server, err := mxfuse.MountFS(mountpoint, repo, debug || repo.Config().Mount.Debug)
			if err != nil {
				return err
			}

			// Unmount on signal
			done := make(chan os.Signal, 1)
			signal.Notify(done, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-done
				log.Println("mxgit: shutting down...")
				server.Unmount()
			}()

			log.Printf("mxgit: ready (pid %d)", os.Getpid())
			server.Wait()
			log.Println("mxgit: stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "trace FUSE requests")
	return cmd
}
