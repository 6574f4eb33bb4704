package bench

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes the environment variables that override a Config.
const EnvPrefix = "DMABENCH_"

// Channel names of the AXI DMA test design.
const (
	DefaultTxChannel = "axidma0"
	DefaultRxChannel = "axidma1"
)

// Config holds the parameters that stay fixed for a whole run.
type Config struct {
	// Length is the number of 32-bit samples per transfer.
	Length int `yaml:"length"`

	// Iterations is the number of transactions in a run.
	Iterations int `yaml:"iterations"`

	// OutboundTimeout bounds the wait for the outbound completion.
	OutboundTimeout time.Duration `yaml:"outbound_timeout"`

	// InboundTimeout bounds the wait for the inbound completion. It is
	// counted from the end of the outbound wait.
	InboundTimeout time.Duration `yaml:"inbound_timeout"`

	// TxChannel and RxChannel name the outbound and inbound channels of the
	// device.
	TxChannel string `yaml:"tx_channel"`
	RxChannel string `yaml:"rx_channel"`

	// DumpSamples keeps a decoded copy of the receive buffer in the result.
	DumpSamples bool `yaml:"dump_samples"`
}

// DefaultConfig returns the configuration of the reference design.
func DefaultConfig() Config {
	return Config{
		Length:          1024,
		Iterations:      100000,
		OutboundTimeout: 30 * time.Second,
		InboundTimeout:  300 * time.Second,
		TxChannel:       DefaultTxChannel,
		RxChannel:       DefaultRxChannel,
	}
}

// Validate reports every problem of the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Length <= 0 {
		errs = append(errs, fmt.Errorf("length must be positive, got %d", c.Length))
	}

	if c.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive, got %d", c.Iterations))
	}

	if c.OutboundTimeout <= 0 {
		errs = append(errs, errors.New("outbound timeout must be positive"))
	}

	if c.InboundTimeout <= 0 {
		errs = append(errs, errors.New("inbound timeout must be positive"))
	}

	if c.TxChannel == "" || c.RxChannel == "" {
		errs = append(errs, errors.New("channel names must not be empty"))
	}

	if c.TxChannel != "" && c.TxChannel == c.RxChannel {
		errs = append(errs, fmt.Errorf("tx and rx both use channel %s", c.TxChannel))
	}

	return errors.Join(errs...)
}

// LoadFile overlays the YAML file at path on the configuration. Keys the
// file does not set keep their values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

// ApplyEnv overlays DMABENCH_* variables on the configuration.
func (c *Config) ApplyEnv(env map[string]string) error {
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := env[EnvPrefix+key]
		return v, ok && v != ""
	}

	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	setDuration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	setInt("LENGTH", &c.Length)
	setInt("ITERATIONS", &c.Iterations)
	setDuration("OUTBOUND_TIMEOUT", &c.OutboundTimeout)
	setDuration("INBOUND_TIMEOUT", &c.InboundTimeout)

	if v, ok := get("TX_CHANNEL"); ok {
		c.TxChannel = v
	}

	if v, ok := get("RX_CHANNEL"); ok {
		c.RxChannel = v
	}

	if v, ok := get("DUMP_SAMPLES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDUMP_SAMPLES: %w", EnvPrefix, err))
		} else {
			c.DumpSamples = b
		}
	}

	return errors.Join(errs...)
}
