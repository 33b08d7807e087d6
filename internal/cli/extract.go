package cli

import (
	"github.com/spf13/cobra"
)

type ExtractOptions struct {
	JobFile string
	DryRun  bool
}

func NewExtractCmd() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one incremental extraction defined in a job file",
		RunE: func(c *cobra.Command, args []string) error {
			return runExtract(c.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.JobFile, "job", "j", "job.yaml", "Path to job file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Read and count records without loading them or moving checkpoints")
	return cmd
}
