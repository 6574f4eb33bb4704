// Package cmd provides the command-line interface of dmabench.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// NewRootCommand creates the dmabench command and its subcommands.
func NewRootCommand() *cobra.Command {
	o := &options{log: logrus.New()}

	rootCmd := &cobra.Command{
		Use:   "dmabench",
		Short: "dmabench measures FFT offload through an AXI DMA test design.",
		Long: `dmabench streams a test pattern to an FFT accelerator over an ` +
			`outbound DMA channel, reads the spectrum back over an inbound ` +
			`channel and reports how long the iterations took.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			o.log.SetOutput(cmd.ErrOrStderr())
			return configLogger(o.log, o.logLevel, o.logFormat)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "YAML file with the run configuration")
	pf.StringVar(&o.envFile, "env-file", ".env", "file with DMABENCH_* variables")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level")
	pf.StringVar(&o.logFormat, "log-format", "text", "log format, text or json")

	rootCmd.AddCommand(
		newRunCommand(o),
		newBaselineCommand(o),
		newCompareCommand(o),
	)

	return rootCmd
}

// Execute runs the command line and exits through atexit, so that the
// registered teardown runs on every exit path.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)

	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
