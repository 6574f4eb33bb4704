package cmd

import (
	"fmt"

	"github.com/sarchlab/dmabench/baseline"
	"github.com/sarchlab/dmabench/bench"
	"github.com/spf13/cobra"
)

func newBaselineCommand(o *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "baseline",
		Short: "Run the same FFT workload on the host CPU.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}

			d, err := baseline.Run(cfg.Iterations, cfg.Length)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), bench.FormatExecutionTime(d))

			return nil
		},
	}

	addConfigFlags(c.Flags(), &o.cfg)

	return c
}
