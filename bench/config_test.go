package bench

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("should default to the reference design", func() {
		cfg := DefaultConfig()

		Expect(cfg.Length).To(Equal(1024))
		Expect(cfg.Iterations).To(Equal(100000))
		Expect(cfg.OutboundTimeout).To(Equal(30 * time.Second))
		Expect(cfg.InboundTimeout).To(Equal(300 * time.Second))
		Expect(cfg.TxChannel).To(Equal("axidma0"))
		Expect(cfg.RxChannel).To(Equal("axidma1"))
		Expect(cfg.DumpSamples).To(BeFalse())
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should report every invalid field", func() {
		cfg := Config{TxChannel: "axidma0", RxChannel: "axidma0"}

		err := cfg.Validate()

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("length"))
		Expect(err.Error()).To(ContainSubstring("iterations"))
		Expect(err.Error()).To(ContainSubstring("outbound timeout"))
		Expect(err.Error()).To(ContainSubstring("inbound timeout"))
		Expect(err.Error()).To(ContainSubstring("both use channel"))
	})

	It("should overlay a YAML file", func() {
		dir, err := os.MkdirTemp("", "dmabench")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		path := filepath.Join(dir, "dmabench.yaml")
		Expect(os.WriteFile(path, []byte(
			"iterations: 10\ninbound_timeout: 2m\nrx_channel: axidma3\n"), 0o600)).
			To(Succeed())

		cfg := DefaultConfig()
		Expect(cfg.LoadFile(path)).To(Succeed())

		Expect(cfg.Iterations).To(Equal(10))
		Expect(cfg.InboundTimeout).To(Equal(2 * time.Minute))
		Expect(cfg.RxChannel).To(Equal("axidma3"))
		Expect(cfg.Length).To(Equal(1024))
	})

	It("should report a missing file", func() {
		cfg := DefaultConfig()
		Expect(cfg.LoadFile("/nonexistent/dmabench.yaml")).NotTo(Succeed())
	})

	It("should overlay environment variables", func() {
		cfg := DefaultConfig()

		err := cfg.ApplyEnv(map[string]string{
			"DMABENCH_LENGTH":           "256",
			"DMABENCH_OUTBOUND_TIMEOUT": "5s",
			"DMABENCH_TX_CHANNEL":       "axidma2",
			"DMABENCH_DUMP_SAMPLES":     "true",
			"DMABENCH_ITERATIONS":       "",
			"HOME":                      "/root",
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Length).To(Equal(256))
		Expect(cfg.OutboundTimeout).To(Equal(5 * time.Second))
		Expect(cfg.TxChannel).To(Equal("axidma2"))
		Expect(cfg.DumpSamples).To(BeTrue())
		Expect(cfg.Iterations).To(Equal(100000))
	})

	It("should report malformed environment variables", func() {
		cfg := DefaultConfig()

		err := cfg.ApplyEnv(map[string]string{
			"DMABENCH_LENGTH":          "many",
			"DMABENCH_INBOUND_TIMEOUT": "forever",
		})

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("DMABENCH_LENGTH"))
		Expect(err.Error()).To(ContainSubstring("DMABENCH_INBOUND_TIMEOUT"))
		Expect(cfg.Length).To(Equal(1024))
	})
})
