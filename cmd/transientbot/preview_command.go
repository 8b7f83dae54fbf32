package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <id>",
		Short: "Fetch imagery and render the thumbnail for one transient without posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			msg, err := ctx.runner(cfg, logger).Preview(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if msg.ImagePath == "" {
				fmt.Fprintf(out, "No imagery available for %s\n", msg.Transient.ID)
				return nil
			}
			fmt.Fprintf(out, "Thumbnail for %s (%s): %s\n", msg.Transient.ID, strings.Join(msg.Surveys, ", "), msg.ImagePath)
			return nil
		},
	}
}
