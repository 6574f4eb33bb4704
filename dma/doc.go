// Package dma defines the transfer-engine interfaces a benchmark run talks
// to.
//
// The model follows the slave-DMA flow of a dmaengine-style subsystem: a
// client requests named channels from an Engine, maps host memory for a
// channel, prepares a scatter-gather Descriptor, attaches a completion
// callback, submits it to obtain a Cookie and finally kicks the channel with
// IssuePending. Completion is reported asynchronously through the callback,
// usually by signalling a Completion.
//
// Backends live in sub-packages: simdma models an AXI DMA pair wired to an
// FFT core in-process and xdma drives the character devices of the Xilinx
// XDMA driver.
package dma
