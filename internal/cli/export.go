package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/check"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/export"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/store"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/term"
)

func newExportCmd(deps *Dependencies) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Render a recorded session into one composite video",
		Long: `Reconstruct the session timeline from its manifest and render it as a
single video in one ffmpeg pass. Without an argument the most recently
created session is exported. Session ids may be abbreviated to any
unambiguous prefix.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := deps.Config, deps.Log
			if profile != "" {
				cfg.Profile = config.Profile(strings.ToLower(profile))
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if err := check.CheckDeps(cfg); err != nil {
				return err
			}

			id, err := resolveSessionID(cfg.StorageRoot, args)
			if err != nil {
				return err
			}
			layout := store.SessionLayout(cfg.StorageRoot, id)
			sess, err := session.Load(layout.ManifestPath())
			if err != nil {
				return err
			}
			log.Info("exporting session %s (%s profile)", id, cfg.Profile)

			progress := make(chan export.Progress, 1)
			bar := display.NewProgressLine(term.IsTerminal(os.Stdout))
			done := make(chan struct{})
			go func() {
				defer close(done)
				for p := range progress {
					bar.Update(p.Phase, p.Fraction, p.OutMs, p.TotalMs)
				}
			}()

			res, err := export.NewRunner(*cfg, log).Run(cmd.Context(), sess, layout, progress)
			close(progress)
			<-done
			bar.Clear()
			if err != nil {
				return err
			}

			switch res.Status {
			case export.StatusSuccess:
				log.Success("exported %s", res.OutputPath)
				return nil
			case export.StatusCancelled:
				return errors.New("export cancelled")
			default:
				if res.Diagnostics != "" {
					log.Error("%s", res.Diagnostics)
				}
				return errors.New(res.Message)
			}
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "encoding profile: compat (H.264/AAC mp4) or free (VP9/Opus webm)")
	return cmd
}

// resolveSessionID picks the session named by args (full id or unambiguous
// prefix), or the most recently created session when no argument is given.
func resolveSessionID(root string, args []string) (string, error) {
	ids, err := store.ListSessionDirs(root)
	if err != nil {
		return "", err
	}

	if len(args) == 1 {
		want := args[0]
		var matches []string
		for _, id := range ids {
			if id == want {
				return id, nil
			}
			if strings.HasPrefix(id, want) {
				matches = append(matches, id)
			}
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
			return "", fmt.Errorf("no session %s under %s", want, root)
		default:
			return "", fmt.Errorf("session id %s is ambiguous (%d matches)", want, len(matches))
		}
	}

	var latest string
	var latestAt time.Time
	for _, id := range ids {
		sess, err := session.Load(store.SessionLayout(root, id).ManifestPath())
		if err != nil {
			continue
		}
		if latest == "" || sess.CreatedAt.After(latestAt) {
			latest, latestAt = id, sess.CreatedAt
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no sessions under %s", root)
	}
	return latest, nil
}
