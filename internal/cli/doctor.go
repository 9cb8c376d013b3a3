package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/check"
)

func newDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, ffprobe, and encoder support",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !check.RunCheck(deps.Config, deps.Log) {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
}
