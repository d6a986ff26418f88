package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"quorum/internal/config"
	"quorum/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and task-store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				lockPath := filepath.Join(cfg.Paths.DataDir, "quorumd.lock")
				running := daemonRunning(lockPath)

				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if running {
					fmt.Fprintln(out, "Daemon: running")
				} else {
					fmt.Fprintln(out, "Daemon: not running")
				}
				fmt.Fprintf(out, "Database: %s\n", st.Path())
				fmt.Fprintln(out)

				rows := [][]string{
					{"Processing", fmt.Sprintf("%d", stats[store.StatusProcessing])},
					{"Resolved", fmt.Sprintf("%d", stats[store.StatusResolved])},
					{"Rejected", fmt.Sprintf("%d", stats[store.StatusRejected])},
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Tasks"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

// daemonRunning reports whether another process holds the daemon lock.
func daemonRunning(lockPath string) bool {
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = lock.Unlock()
		return false
	}
	return true
}
