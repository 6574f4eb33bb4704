package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sarchlab/dmabench/bench"
	"github.com/sarchlab/dmabench/datarecording"
	"github.com/sarchlab/dmabench/monitoring"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sarchlab/dmabench/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

type runOptions struct {
	backend backendOptions

	record     bool
	recordFile string

	monitor     bool
	monitorPort int
	openBrowser bool
}

func addRunFlags(flags *pflag.FlagSet, r *runOptions) {
	addBackendFlags(flags, &r.backend)

	flags.BoolVar(&r.record, "record", false,
		"record the run and its iterations into a SQLite database")
	flags.StringVar(&r.recordFile, "record-file", "",
		"database name for --record, without the .sqlite3 suffix")
	flags.BoolVar(&r.monitor, "monitor", false, "serve the monitor while running")
	flags.IntVar(&r.monitorPort, "monitor-port", 0, "port of the monitor, 0 for any")
	flags.BoolVar(&r.openBrowser, "open-browser", false,
		"open the monitor in a browser")
}

func newRunCommand(o *options) *cobra.Command {
	r := &runOptions{}

	c := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark on the accelerator.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}

			res, err := runBenchmark(cmd.Context(), o, r, cfg)
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}

			return err
		},
	}

	addConfigFlags(c.Flags(), &o.cfg)
	addRunFlags(c.Flags(), r)

	return c
}

func printResult(w io.Writer, res *bench.Result) {
	fmt.Fprintln(w, res.String())

	for _, line := range res.DumpSamples() {
		fmt.Fprintln(w, line)
	}
}

// runBenchmark binds the benchmark module to a device on a platform bus, the
// way the kernel would on probe, and removes it once the run ends.
func runBenchmark(
	ctx context.Context,
	o *options,
	r *runOptions,
	cfg bench.Config,
) (*bench.Result, error) {
	engine, dev, err := newBackend(r.backend, cfg, o.log)
	if err != nil {
		return nil, err
	}

	var hooks []sim.Hook

	if r.monitor {
		m := monitoring.NewMonitor().WithPortNumber(r.monitorPort)
		if r.openBrowser {
			m.WithBrowser()
		}

		if _, err := m.StartServer(); err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
		defer stopMonitor(m)

		hooks = append(hooks, m)
	}

	var res *bench.Result

	if r.record {
		recorder := datarecording.New(r.recordFile)
		tracer := tracing.NewDBTracer(sim.NewWallClock(), recorder)
		hooks = append(hooks, tracing.NewTraceHook(tracer))

		exec := datarecording.NewExecRecorder(recorder)
		exec.Start()
		recordConfig(exec, r.backend.name, cfg)

		defer func() {
			if res != nil {
				exec.Record("Status", string(res.Status))
				exec.Record("Completed Iterations", strconv.Itoa(res.Completed))
				exec.Record("Elapsed", res.Elapsed().String())
			}
			exec.End()
			tracer.Terminate()
		}()
	}

	bus := platform.NewBus(o.log)
	module := bench.NewModule(ctx, engine, engine, cfg, o.log, hooks...)
	module.OnResult = func(_ *platform.Device, got *bench.Result) {
		res = got
	}

	if err := bus.RegisterDriver(module); err != nil {
		return nil, err
	}
	defer bus.UnregisterDriver(module)

	remove := func() { bus.RemoveDevice(dev) }
	atexit.Register(remove)

	probeErr := bus.AddDevice(dev)
	remove()

	if res == nil {
		return nil, probeErr
	}

	return res, res.Cause
}

func recordConfig(exec *datarecording.ExecRecorder, backend string, cfg bench.Config) {
	exec.Record("Backend", backend)
	exec.Record("Length", strconv.Itoa(cfg.Length))
	exec.Record("Iterations", strconv.Itoa(cfg.Iterations))
	exec.Record("Outbound Timeout", cfg.OutboundTimeout.String())
	exec.Record("Inbound Timeout", cfg.InboundTimeout.String())
	exec.Record("Tx Channel", cfg.TxChannel)
	exec.Record("Rx Channel", cfg.RxChannel)
}

func stopMonitor(m *monitoring.Monitor) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = m.StopServer(ctx)
}
