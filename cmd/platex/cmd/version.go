package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/platex/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, commit, date := version.Info()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "platex %s\ncommit: %s\nbuilt: %s\n", v, commit, date)
			return err
		},
	}
}
