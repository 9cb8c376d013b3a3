package cli

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/check"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/display"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/recorder"
	"github.com/dsmmcken/vdo-samurai-sub000/internal/session"
)

func newRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		name      string
		join      string
		camera    string
		mic       string
		screenDev string
		test      bool
		noCamera  bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session on this machine",
		Long: `Record camera, microphone and screen clips on the shared session clock.
Hosting (no --join) creates a new session and announces its clock origin;
--join <session-id> connects to a session another participant hosts via
the relay. Recording is driven by line commands on stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := deps.Log
			if _, err := exec.LookPath("ffmpeg"); err != nil {
				return check.ErrFfmpegNotFound
			}

			rec, err := recorder.New(*deps.Config, log, recorder.Options{
				Self:        session.ParticipantID(name),
				JoinSession: join,
				Devices:     recorder.Devices{Camera: camera, Mic: mic, Display: screenDev},
				TestPattern: test,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := rec.Connect(ctx); err != nil {
				return err
			}
			log.Info("session %s", rec.SessionID())
			log.Info("directory %s", rec.Dir())
			if rec.Hosting() && deps.Config.RelayURL != "" {
				log.Info("peers join with: samurai record --relay %s --join %s", deps.Config.RelayURL, rec.SessionID())
			}

			if !noCamera {
				if err := rec.StartCamera(ctx); err != nil {
					log.Error("camera not started: %v", err)
				}
			}
			return runRecordLoop(ctx, rec, deps)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", defaultParticipant(), "participant name")
	cmd.Flags().StringVar(&join, "join", "", "join an existing session by id (requires --relay)")
	cmd.Flags().StringVar(&camera, "camera", "", "camera device (platform default when empty)")
	cmd.Flags().StringVar(&mic, "mic", "", "microphone device")
	cmd.Flags().StringVar(&screenDev, "display", "", "display to capture for screen share")
	cmd.Flags().BoolVar(&test, "test", false, "record synthetic test media instead of devices")
	cmd.Flags().BoolVar(&noCamera, "no-camera", false, "do not start the camera at launch")
	return cmd
}

// runRecordLoop drives the recorder with line commands from stdin until the
// user quits or the context is cancelled:
//
//	v         toggle camera / audio-only
//	s         toggle screen share
//	f <peer>  focus a participant
//	p         list participants
//	q         stop and finalize
func runRecordLoop(ctx context.Context, rec *recorder.Recorder, deps *Dependencies) error {
	log := deps.Log
	log.Info("commands: v = toggle video, s = toggle screen, f <peer> = focus, p = participants, q = quit")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	defer func() {
		s := rec.Snapshot()
		log.Success("session %s saved: %d clips, %d focus events", s.ID, len(s.Clips), len(s.Focus))
		log.Info("export with: samurai export %s", s.ID)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Warn("interrupted, finalizing clips")
			return rec.Close()
		case line, ok := <-lines:
			if !ok {
				return rec.Close()
			}
			switch {
			case line == "":
			case line == "q":
				return rec.Close()
			case line == "v":
				if err := rec.ToggleVideo(ctx); err != nil {
					log.Error("%v", err)
				}
			case line == "s":
				if err := rec.ToggleScreen(ctx); err != nil {
					log.Error("%v", err)
				}
			case line == "p":
				for _, p := range rec.Snapshot().Participants {
					log.Info("  %s (joined %s)", p.ID, display.FormatDurationMs(p.JoinedMs))
				}
			case strings.HasPrefix(line, "f "):
				rec.SetFocus(session.ParticipantID(strings.TrimSpace(strings.TrimPrefix(line, "f "))))
			default:
				log.Warn("unknown command %q", line)
			}
		}
	}
}

func defaultParticipant() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "me"
}
