package object

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
)

// NewSZArray allocates a one-dimensional, zero-lower-bound array of
// arrayClass (a synthesized SZArray-family class whose ElementClass is
// already set) — the common case (spec.md §4.6).
func NewSZArray(alloc Allocator, arrayClass *clrtype.RtClass, length int32) (*RtObject, error) {
	return alloc.AllocateArray(arrayClass, length, 1)
}

// elementIsValue reports whether arr's elements are value-typed, i.e.
// stored in ValueData rather than RefData.
func elementIsValue(arr *RtObject) bool {
	return arr.ValueData != nil || arr.RefData == nil
}

// flatIndex computes the row-major flat offset for a multi-dimensional
// index, per spec.md §4.6's nested formula, validating each dimension's
// relative index is within range.
func flatIndex(arr *RtObject, indices []int32) (int, error) {
	if len(arr.Bounds) == 0 {
		if len(indices) != 1 {
			return 0, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindArgument).
				Detail("SZ-array indexed with %d indices, want 1", len(indices)).Build()
		}
		i := indices[0]
		if i < 0 || i >= arr.Length {
			return 0, clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(i), int(arr.Length))
		}
		return int(i), nil
	}
	if len(indices) != len(arr.Bounds) {
		return 0, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindArgument).
			Detail("array indexed with %d indices, want %d", len(indices), len(arr.Bounds)).Build()
	}
	flat := 0
	for d, b := range arr.Bounds {
		rel := indices[d] - b.LowerBound
		if rel < 0 || rel >= b.Size {
			return 0, clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(rel), int(b.Size))
		}
		flat = flat*int(b.Size) + int(rel)
	}
	return flat, nil
}

// ElementRef returns the reference stored at indices, for a reference-
// element array.
func ElementRef(arr *RtObject, indices ...int32) (*RtObject, error) {
	idx, err := flatIndex(arr, indices)
	if err != nil {
		return nil, err
	}
	return arr.RefData[idx], nil
}

// SetElementRef stores value at indices through the write barrier, for a
// reference-element array.
func SetElementRef(alloc Allocator, arr *RtObject, value *RtObject, indices ...int32) error {
	idx, err := flatIndex(arr, indices)
	if err != nil {
		return err
	}
	arr.RefData[idx] = value
	alloc.WriteBarrier(arr, uint32(idx), value)
	return nil
}

// ElementBytes returns the byte range backing a value-element array slot.
func ElementBytes(arr *RtObject, elemSize uint32, indices ...int32) ([]byte, error) {
	idx, err := flatIndex(arr, indices)
	if err != nil {
		return nil, err
	}
	start := uint32(idx) * elemSize
	return arr.ValueData[start : start+elemSize], nil
}

// CloneArray allocates a new array of arr's exact class and length and
// copies its bounds and data (spec.md §4.6's array clone path).
func CloneArray(alloc Allocator, arr *RtObject) (*RtObject, error) {
	rank := 1
	if len(arr.Bounds) > 0 {
		rank = len(arr.Bounds)
	}
	clone, err := alloc.AllocateArray(arr.Class, arr.Length, rank)
	if err != nil {
		return nil, err
	}
	copy(clone.Bounds, arr.Bounds)
	if elementIsValue(arr) {
		copy(clone.ValueData, arr.ValueData)
	} else {
		copy(clone.RefData, arr.RefData)
	}
	return clone, nil
}

// FastCopy implements spec.md §4.6's array-to-array copy contract: same
// class takes the memmove fast path; heterogeneous reference arrays are
// validated element-by-element for assignability; mismatched value-typed
// element classes are refused.
func FastCopy(alloc Allocator, src, dst *RtObject, srcIdx, dstIdx, length int32) (bool, error) {
	if err := checkCopyRange(src, srcIdx, length); err != nil {
		return false, err
	}
	if err := checkCopyRange(dst, dstIdx, length); err != nil {
		return false, err
	}

	if src.Class == dst.Class {
		return true, fastCopySameClass(alloc, src, dst, srcIdx, dstIdx, length)
	}

	srcIsValue := elementIsValue(src)
	dstIsValue := elementIsValue(dst)
	if srcIsValue || dstIsValue {
		return false, nil
	}

	if !dst.Class.ElementClass.IsAssignableFrom(src.Class.ElementClass) {
		for i := int32(0); i < length; i++ {
			v := src.RefData[srcIdx+i]
			if v != nil && !dst.Class.ElementClass.IsAssignableFrom(v.Class) {
				return false, clrerrors.New(clrerrors.PhaseArray, clrerrors.KindArrayTypeMismatch).Build()
			}
		}
	}
	for i := int32(0); i < length; i++ {
		dst.RefData[dstIdx+i] = src.RefData[srcIdx+i]
		alloc.WriteBarrier(dst, uint32(dstIdx+i), dst.RefData[dstIdx+i])
	}
	return true, nil
}

// checkCopyRange validates that [idx, idx+length) falls within arr's
// bounds, the range check fast_copy (system_array.cpp) runs before ever
// touching RefData/ValueData: an out-of-range copy must raise a managed
// IndexOutOfRange, not panic on a Go slice index.
func checkCopyRange(arr *RtObject, idx, length int32) error {
	if idx < 0 || length < 0 || idx+length > arr.Length {
		return clrerrors.IndexOutOfRange(clrerrors.PhaseArray, nil, int(idx), int(arr.Length))
	}
	return nil
}

func fastCopySameClass(alloc Allocator, src, dst *RtObject, srcIdx, dstIdx, length int32) error {
	if elementIsValue(src) {
		elemSize := clrtype.ElementSize(src.Class.ElementClass)
		s := uint32(srcIdx) * elemSize
		d := uint32(dstIdx) * elemSize
		n := uint32(length) * elemSize
		copy(dst.ValueData[d:d+n], src.ValueData[s:s+n])
		return nil
	}
	copy(dst.RefData[dstIdx:dstIdx+length], src.RefData[srcIdx:srcIdx+length])
	for i := int32(0); i < length; i++ {
		alloc.WriteBarrier(dst, uint32(dstIdx+i), dst.RefData[dstIdx+i])
	}
	return nil
}

// ClearInternal zero-fills one dimension's subrange (spec.md §4.6).
func ClearInternal(arr *RtObject, start, length int32) {
	if elementIsValue(arr) {
		elemSize := clrtype.ElementSize(arr.Class.ElementClass)
		s := uint32(start) * elemSize
		n := uint32(length) * elemSize
		clear(arr.ValueData[s : s+n])
		return
	}
	for i := start; i < start+length; i++ {
		arr.RefData[i] = nil
	}
}
