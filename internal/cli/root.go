// Package cli implements reportctl, which manages profiles and runs
// submissions directly against the configured database.
package cli

import (
	"github.com/spf13/cobra"
)

func NewCmdRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportctl [flags] [options]",
		Short: "reportctl manages student profiles and submits their progress reports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdProfile())
	cmd.AddCommand(NewCmdSubmit())
	cmd.AddCommand(NewCmdSubmissions())
	return cmd
}
