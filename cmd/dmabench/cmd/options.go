package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sarchlab/dmabench/bench"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	log *logrus.Logger

	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	cfg bench.Config
}

func addConfigFlags(flags *pflag.FlagSet, cfg *bench.Config) {
	def := bench.DefaultConfig()

	flags.IntVar(&cfg.Length, "length", def.Length, "32-bit samples per transfer")
	flags.IntVar(&cfg.Iterations, "iterations", def.Iterations, "transactions per run")
	flags.DurationVar(&cfg.OutboundTimeout, "outbound-timeout", def.OutboundTimeout,
		"wait budget of the outbound completion")
	flags.DurationVar(&cfg.InboundTimeout, "inbound-timeout", def.InboundTimeout,
		"wait budget of the inbound completion")
	flags.StringVar(&cfg.TxChannel, "tx-channel", def.TxChannel, "outbound channel name")
	flags.StringVar(&cfg.RxChannel, "rx-channel", def.RxChannel, "inbound channel name")
	flags.BoolVar(&cfg.DumpSamples, "dump-samples", false,
		"print the decoded receive buffer after the run")
}

// loadConfig layers, lowest first: defaults, the YAML file, the env file
// and the process environment, then the flags set on the command line.
func (o *options) loadConfig(cmd *cobra.Command) (bench.Config, error) {
	cfg := bench.DefaultConfig()

	if o.configFile != "" {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return cfg, err
		}
	}

	env, err := o.environment(cmd.Flags().Changed("env-file"))
	if err != nil {
		return cfg, err
	}

	if err := cfg.ApplyEnv(env); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "length":
			cfg.Length = o.cfg.Length
		case "iterations":
			cfg.Iterations = o.cfg.Iterations
		case "outbound-timeout":
			cfg.OutboundTimeout = o.cfg.OutboundTimeout
		case "inbound-timeout":
			cfg.InboundTimeout = o.cfg.InboundTimeout
		case "tx-channel":
			cfg.TxChannel = o.cfg.TxChannel
		case "rx-channel":
			cfg.RxChannel = o.cfg.RxChannel
		case "dump-samples":
			cfg.DumpSamples = o.cfg.DumpSamples
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// environment merges the env file with the process environment. Variables
// of the process win. A missing env file is only an error if it was asked
// for explicitly.
func (o *options) environment(required bool) (map[string]string, error) {
	env := map[string]string{}

	if o.envFile != "" {
		fileEnv, err := godotenv.Read(o.envFile)
		switch {
		case err == nil:
			env = fileEnv
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("env file %s: %w", o.envFile, err)
		}
	}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, bench.EnvPrefix) {
			env[k] = v
		}
	}

	return env, nil
}
