// Package cli defines the samurai command tree. Commands receive their
// shared state through Dependencies; config loading and logger setup happen
// once in the root's persistent pre-run so every subcommand sees the same
// flag-resolved configuration.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/config"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/logging"
)

// Version is stamped at build time via -ldflags.
var Version = "0.1.0-dev"

// Dependencies carries the state shared by every command. Config and Log are
// populated by the root command's persistent pre-run.
type Dependencies struct {
	Config *config.Config
	Log    *logging.Logger
}

func (d *Dependencies) close() {
	if d.Log != nil {
		_ = d.Log.Close()
	}
}

// Execute runs the samurai CLI with the given signal context.
func Execute(ctx context.Context) error {
	deps := &Dependencies{}
	defer deps.close()
	return NewRootCmd(deps).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Persistent flags override the loaded
// config only when explicitly set, so the file and SAMURAI_* env layering
// stays intact underneath.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	var (
		configPath  string
		verbose     bool
		colorMode   string
		storageRoot string
		relayURL    string
		logFile     string
	)

	root := &cobra.Command{
		Use:           "samurai",
		Short:         "Record multi-participant sessions and export them as one composited video",
		Long: `vdo-samurai records each participant's camera, microphone and screen as
separate local clips on a shared session clock, then reconstructs the
timeline (focus changes, layout switches) and renders a single composite
video in one ffmpeg pass.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("verbose") {
				cfg.Verbose = verbose
			}
			if flags.Changed("color") {
				cfg.ColorMode = config.ColorMode(colorMode)
			}
			if flags.Changed("storage-root") {
				cfg.StorageRoot = storageRoot
			}
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("log-file") {
				cfg.LogFile = logFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.NewLogger(&cfg)
			if err != nil {
				return err
			}
			deps.Config = &cfg
			deps.Log = log
			display.PrintBanner()
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/vdo-samurai/config.toml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&colorMode, "color", "auto", "color mode: auto, always or never")
	pf.StringVar(&storageRoot, "storage-root", "", "session storage directory")
	pf.StringVar(&relayURL, "relay", "", "WebSocket relay URL for multi-participant sessions")
	pf.StringVar(&logFile, "log-file", "", "append logs to this file")

	root.AddCommand(newRecordCmd(deps))
	root.AddCommand(newExportCmd(deps))
	root.AddCommand(newSessionsCmd(deps))
	root.AddCommand(newRelayCmd(deps))
	root.AddCommand(newDoctorCmd(deps))
	return root
}
