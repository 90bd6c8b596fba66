package device

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// Compute entry points exported by the kernel.
const (
	TraceEntryPoint   = "trace_main"
	ResolveEntryPoint = "resolve_main"
)

// SPIR-V module magic number.
const spirvMagic uint32 = 0x07230203

//go:embed kernel.wgsl
var kernelWGSL string

// Get the WGSL source of the tracing kernel.
func KernelSource() string {
	return kernelWGSL
}

// Compile the tracing kernel to SPIR-V words.
func CompileKernel() ([]uint32, error) {
	spirvBytes, err := naga.Compile(kernelWGSL)
	if err != nil {
		return nil, fmt.Errorf("device: failed to compile kernel: %w", err)
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("device: kernel compiler returned %d bytes; expected a whole number of SPIR-V words", len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("device: invalid SPIR-V magic 0x%08X", words[0])
	}
	return words, nil
}

// Encode SPIR-V words as little-endian bytes.
func SPIRVBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
