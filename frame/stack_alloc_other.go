//go:build !((linux || darwin) && (amd64 || arm64))

package frame

// allocEvalStack falls back to a plain Go slice on platforms without a
// guard-page allocator; Stack.allocEvalSlots's software bounds check is
// the sole overflow guard here, same as leanclr's own calloc'd buffer.
func allocEvalStack(slots uint32) ([]uint64, func(), error) {
	return make([]uint64, slots), func() {}, nil
}
