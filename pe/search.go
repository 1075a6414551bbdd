package pe

import "sort"

// FindRange returns the contiguous [lo, hi) rid range of `table` whose
// `ownerColumn` equals the 1-based rid `ownerRid` of the owning table —
// for child tables that carry an owner column on every row, such as
// InterfaceImpl's or MethodImpl's Class. lo == hi when no row matches.
// Assumes rows are in owner order, as ECMA-335 requires.
func (img *Image) FindRange(table TableType, ownerColumn string, ownerRid uint32) (lo, hi uint32) {
	count := img.RowCount(table)
	if count == 0 {
		return 1, 1
	}
	start := func(owner uint32) uint32 {
		idx := sort.Search(int(count), func(i int) bool {
			r, ok := img.ReadRow(table, uint32(i+1))
			if !ok {
				return true
			}
			v, _ := r.Col(ownerColumn)
			return v >= owner
		})
		return uint32(idx) + 1
	}
	lo = start(ownerRid)
	hi = start(ownerRid + 1)
	if hi > count+1 {
		hi = count + 1
	}
	return lo, hi
}

// FindLastLE returns the greatest rid of `table` whose `column` value is
// <= value, or (0, false) if no row qualifies. Used to resolve RVA-sorted
// tables like FieldRVA and ImplMap, and any column maintained in ascending
// order. Grounded on spec.md §4.1's two named binary searches; implemented
// with stdlib sort.Search since this is a plain monotonic lookup with no
// domain-specific tie-breaking.
func (img *Image) FindLastLE(table TableType, column string, value uint32) (rid uint32, ok bool) {
	count := img.RowCount(table)
	if count == 0 {
		return 0, false
	}
	idx := sort.Search(int(count), func(i int) bool {
		r, rok := img.ReadRow(table, uint32(i+1))
		if !rok {
			return true
		}
		v, _ := r.Col(column)
		return v > value
	})
	if idx == 0 {
		return 0, false
	}
	return uint32(idx), true
}
