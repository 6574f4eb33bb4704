package cmd

import (
	"fmt"

	"github.com/sarchlab/dmabench/baseline"
	"github.com/sarchlab/dmabench/bench"
	"github.com/spf13/cobra"
)

func newCompareCommand(o *options) *cobra.Command {
	r := &runOptions{}

	c := &cobra.Command{
		Use:   "compare",
		Short: "Run the benchmark and the host baseline and compare them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			host, err := baseline.Run(cfg.Iterations, cfg.Length)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "host   %s\n", bench.FormatExecutionTime(host))

			res, err := runBenchmark(cmd.Context(), o, r, cfg)
			if err != nil {
				if res != nil {
					fmt.Fprintln(out, res.String())
				}
				return err
			}
			fmt.Fprintf(out, "device %s\n", res.ExecutionTime())

			fmt.Fprintf(out, "speedup : %.2fx\n", baseline.Ratio(host, res.Elapsed()))

			return nil
		},
	}

	addConfigFlags(c.Flags(), &o.cfg)
	addRunFlags(c.Flags(), r)

	return c
}
