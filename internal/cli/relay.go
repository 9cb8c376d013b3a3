package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/peerlink"
)

func newRelayCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a session relay for multi-participant recording",
		Long: `Run the websocket relay that fans recording traffic out between
participants. Recorders join a room per session id; the relay holds no
state beyond the open connections.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := deps.Log

			srv := &http.Server{
				Addr:    addr,
				Handler: peerlink.NewRelay(log),
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			log.Info("relay listening on %s (rooms at /ws/<session-id>)", addr)

			select {
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}
				log.Info("relay stopped")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8787", "listen address")
	return cmd
}
