package main

import (
	"github.com/sha1n/mcp-bookworm-server/internal/app"
	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
	"github.com/sha1n/mcp-bookworm-server/internal/results"
	"github.com/spf13/cobra"
)

func newStatsCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print total text and word counts of a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}

			svc, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer closeService(svc)

			session, err := svc.Session(cmd.Context(), "")
			if err != nil {
				return err
			}
			res, err := session.Stats(cmd.Context())
			if err != nil {
				return err
			}
			frame, err := res.Frame(results.FrameOptions{})
			if err != nil {
				return err
			}
			return writeFrame(cmd.OutOrStdout(), frame, format, 0)
		},
	}
	app.RegisterBookwormFlags(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "o", bookworm.FormatTable, "Output format: table, csv, or json")
	return cmd
}
