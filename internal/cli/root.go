// Package cli wires the streamkit commands with the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "streamkit",
		Short: "streamkit - incremental record extraction with checkpoints",
		Long: `streamkit reads SQL tables, MongoDB collections and object directories
incrementally, writes each run as a named artifact and remembers how far it got
in a Redis or MongoDB checkpoint store.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewExtractCmd(), NewCheckpointCmd())

	return rootCmd
}
