// Package cuda binds the slice of the CUDA driver and runtime the runtime
// needs: device allocation, pointer-attribute queries, and DMA-BUF export.
// Builds without the cuda tag get stubs that fail at runtime, so host-only
// deployments do not need the CUDA toolkit installed.
package cuda
