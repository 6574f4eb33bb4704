package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dmabench/datarecording"
	"github.com/sarchlab/dmabench/tracing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func tempDir() string {
	dir, err := os.MkdirTemp("", "dmabench-cmd")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)

	return dir
}

func execute(args ...string) (string, error) {
	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--env-file", ""))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

var _ = Describe("Commands", func() {
	It("should run the benchmark on the simulated engine", func() {
		out, err := execute("run", "--sim-inline", "--iterations", "3", "--length", "64")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("execution time : 0:0\n"))
	})

	It("should dump the receive buffer", func() {
		out, err := execute("run", "--sim-inline",
			"--iterations", "1", "--length", "8", "--dump-samples")

		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(out), "\n")
		Expect(lines).To(HaveLen(9))
		Expect(lines[1]).To(HavePrefix("rx[0] = "))
		Expect(lines[8]).To(HavePrefix("rx[7] = "))
	})

	It("should run on timers", func() {
		out, err := execute("run", "--iterations", "2", "--length", "16")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("execution time : "))
	})

	It("should reject one channel used for both directions", func() {
		out, err := execute("run", "--sim-inline",
			"--iterations", "1", "--rx-channel", "axidma0")

		Expect(err).To(HaveOccurred())
		Expect(out).To(BeEmpty())
	})

	It("should reject an unknown backend", func() {
		_, err := execute("run", "--backend", "pcie")

		Expect(err).To(MatchError(ContainSubstring("unknown backend")))
	})

	It("should reject an unusable xdma root", func() {
		_, err := execute("run", "--backend", "xdma",
			"--xdma-root", filepath.Join(tempDir(), "missing"))

		Expect(err).To(HaveOccurred())
	})

	It("should reject an unknown log format", func() {
		_, err := execute("run", "--log-format", "xml")

		Expect(err).To(MatchError(ContainSubstring("unknown log format")))
	})

	It("should run the baseline", func() {
		out, err := execute("baseline", "--iterations", "2", "--length", "64")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("execution time : "))
	})

	It("should compare the device with the host", func() {
		out, err := execute("compare", "--sim-inline",
			"--iterations", "2", "--length", "64")

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("host   execution time : "))
		Expect(out).To(ContainSubstring("device execution time : "))
		Expect(out).To(ContainSubstring("speedup : "))
	})

	It("should record the run", func() {
		name := filepath.Join(tempDir(), "rec")

		_, err := execute("run", "--sim-inline", "--iterations", "3",
			"--length", "64", "--record", "--record-file", name)
		Expect(err).NotTo(HaveOccurred())

		db, err := sql.Open("sqlite3", name+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var tasks int
		Expect(db.QueryRow("SELECT COUNT(*) FROM " + tracing.TaskTable).
			Scan(&tasks)).To(Succeed())
		Expect(tasks).To(Equal(4))

		var status string
		Expect(db.QueryRow(
			"SELECT Value FROM "+datarecording.ExecTable+" WHERE Property = ?",
			"Status").Scan(&status)).To(Succeed())
		Expect(status).To(Equal("ok"))
	})
})

var _ = Describe("Configuration layers", func() {
	var (
		o   *options
		cmd *cobra.Command
		dir string
	)

	BeforeEach(func() {
		dir = tempDir()
		o = &options{log: logrus.New()}
		cmd = &cobra.Command{Use: "test"}
		cmd.Flags().StringVar(&o.envFile, "env-file", "", "")
		addConfigFlags(cmd.Flags(), &o.cfg)
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("should start from the defaults", func() {
		Expect(cmd.ParseFlags(nil)).To(Succeed())

		cfg, err := o.loadConfig(cmd)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Iterations).To(Equal(100000))
		Expect(cfg.InboundTimeout).To(Equal(300 * time.Second))
	})

	It("should let later layers win", func() {
		o.configFile = write("cfg.yaml", "iterations: 2\nlength: 16\ntx_channel: axidma2\n")
		envFile := write("test.env", "DMABENCH_LENGTH=32\nDMABENCH_RX_CHANNEL=axidma3\n")
		Expect(os.Setenv("DMABENCH_RX_CHANNEL", "axidma5")).To(Succeed())
		DeferCleanup(os.Unsetenv, "DMABENCH_RX_CHANNEL")

		Expect(cmd.ParseFlags([]string{
			"--env-file", envFile,
			"--iterations", "4",
		})).To(Succeed())

		cfg, err := o.loadConfig(cmd)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Iterations).To(Equal(4))
		Expect(cfg.Length).To(Equal(32))
		Expect(cfg.TxChannel).To(Equal("axidma2"))
		Expect(cfg.RxChannel).To(Equal("axidma5"))
	})

	It("should fail on a missing env file that was asked for", func() {
		Expect(cmd.ParseFlags([]string{
			"--env-file", filepath.Join(dir, "missing.env"),
		})).To(Succeed())

		_, err := o.loadConfig(cmd)

		Expect(err).To(HaveOccurred())
	})

	It("should ignore a missing default env file", func() {
		o.envFile = filepath.Join(dir, ".env")
		Expect(cmd.ParseFlags(nil)).To(Succeed())

		_, err := o.loadConfig(cmd)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should validate the result", func() {
		Expect(cmd.ParseFlags([]string{"--length", "0"})).To(Succeed())

		_, err := o.loadConfig(cmd)

		Expect(err).To(MatchError(ContainSubstring("invalid configuration")))
	})
})
