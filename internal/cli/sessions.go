package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/store"
)

func newSessionsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := deps.Config, deps.Log

			ids, err := store.ListSessionDirs(cfg.StorageRoot)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				log.Info("no sessions under %s", cfg.StorageRoot)
				return nil
			}

			fmt.Printf("%-36s  %-16s  %-12s  %5s  %9s\n", "SESSION", "CREATED", "CREATOR", "CLIPS", "DURATION")
			for _, id := range ids {
				sess, err := session.Load(store.SessionLayout(cfg.StorageRoot, id).ManifestPath())
				if err != nil {
					log.Warn("%s: %v", id, err)
					continue
				}
				duration := "-"
				if start, end, ok := sess.Window(); ok {
					duration = display.FormatDurationMs(end - start)
				}
				fmt.Printf("%-36s  %-16s  %-12s  %5d  %9s\n",
					sess.ID,
					sess.CreatedAt.Local().Format("2006-01-02 15:04"),
					sess.Creator,
					len(sess.Clips),
					duration)
			}
			return nil
		},
	}
}
