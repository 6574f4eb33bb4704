// Command dmabench measures FFT offload through an AXI DMA test design.
package main

import "github.com/sarchlab/dmabench/cmd/dmabench/cmd"

func main() {
	cmd.Execute()
}
