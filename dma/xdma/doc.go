// Package xdma drives the AXI DMA channels of an FPGA card through the
// character devices of the Xilinx XDMA driver.
//
// Every channel is one device node. Outbound (host to card) channels are
// h2c nodes, inbound channels are c2h nodes. Which node serves which
// channel name is read from the properties of the platform device:
//
//	dev.Properties["xdma,axidma0"] = "xdma0_h2c_0"
//	dev.Properties["xdma,axidma1"] = "xdma0_c2h_0"
//
// The backend is only available on Linux.
package xdma

import "fmt"

// PropertyPrefix prefixes the device property that names the node of a
// channel.
const PropertyPrefix = "xdma,"

// NodeFor returns the default node name of channel k of card instance in
// the given direction, such as "xdma0_h2c_0".
func NodeFor(instance int, outbound bool, k int) string {
	if outbound {
		return fmt.Sprintf("xdma%d_h2c_%d", instance, k)
	}

	return fmt.Sprintf("xdma%d_c2h_%d", instance, k)
}
