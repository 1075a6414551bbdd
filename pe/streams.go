package pe

import "encoding/binary"

// parseTableStream parses the 24-byte #~ header, computes per-column widths
// and row offsets for every valid table, and slices each table's backing
// bytes out of data. Grounded on spec.md §4.1.
func (img *Image) parseTableStream(data []byte) error {
	if len(data) < 24 {
		return badImage("#~ stream too small")
	}
	// reserved(4) MajorVersion(1) MinorVersion(1) HeapSizes(1) reserved(1)
	heapSizes := data[6]
	validMask := binary.LittleEndian.Uint64(data[8:16])
	// sortedMask := binary.LittleEndian.Uint64(data[16:24]) // not needed: we trust row order

	s := &img.Streams
	s.stringIdxSize = 2
	if heapSizes&0x01 != 0 {
		s.stringIdxSize = 4
	}
	s.guidIdxSize = 2
	if heapSizes&0x02 != 0 {
		s.guidIdxSize = 4
	}
	s.blobIdxSize = 2
	if heapSizes&0x04 != 0 {
		s.blobIdxSize = 4
	}

	off := 24
	rowCounts := make(map[TableType]uint32)
	for t := TableType(0); t < MaxTable; t++ {
		if validMask&(1<<uint(t)) == 0 {
			continue
		}
		if off+4 > len(data) {
			return badImage("table %s row count out of range", t)
		}
		rowCounts[t] = binary.LittleEndian.Uint32(data[off:])
		s.Valid[t] = true
		off += 4
	}

	// Now that every table's row count is known, compute column widths
	// (coded indices depend on the row counts of the tables they can
	// reference) and slice row data.
	for t := TableType(0); t < MaxTable; t++ {
		if !s.Valid[t] {
			continue
		}
		cols, known := tableSchema[t]
		rowCount := rowCounts[t]
		var widths []int
		var offsets []int
		rowWidth := 0
		if known {
			widths = make([]int, len(cols))
			offsets = make([]int, len(cols))
			for i, c := range cols {
				w := img.columnWidth(c, rowCounts)
				widths[i] = w
				offsets[i] = rowWidth
				rowWidth += w
			}
		} else {
			// Unknown/unsupported table: we cannot compute a row width, so
			// we cannot safely step over its rows either. An empty one is
			// kept as present but zero-width (ReadRow reports no row); one
			// with rows is rejected.
			if rowCount > 0 {
				return badImage("table %s has %d rows but no known column layout", t, rowCount)
			}
			rowWidth = 0
		}
		total := rowWidth * int(rowCount)
		if off+total > len(data) {
			return badImage("table %s data out of range (rowWidth=%d rowCount=%d)", t, rowWidth, rowCount)
		}
		s.Tables[t] = TableInfo{
			Data:     data[off : off+total],
			Columns:  cols,
			Offsets:  offsets,
			Widths:   widths,
			RowCount: rowCount,
			RowWidth: rowWidth,
		}
		off += total
	}
	return nil
}

// columnWidth computes the byte width of one column, given every table's
// row count (needed for colSimple and colCoded sizing).
func (img *Image) columnWidth(c columnDef, rowCounts map[TableType]uint32) int {
	switch c.kind {
	case colFixed1:
		return 1
	case colFixed2:
		return 2
	case colFixed4:
		return 4
	case colString:
		return img.Streams.stringIdxSize
	case colGUID:
		return img.Streams.guidIdxSize
	case colBlob:
		return img.Streams.blobIdxSize
	case colSimple:
		if rowCounts[c.table] < 65536 {
			return 2
		}
		return 4
	case colCoded:
		tagBits := codedTagBits[c.coded]
		tables := codedTables[c.coded]
		var maxRows uint32
		for _, t := range tables {
			if rowCounts[t] > maxRows {
				maxRows = rowCounts[t]
			}
		}
		if uint64(maxRows)<<tagBits < 65536 {
			return 2
		}
		return 4
	default:
		return 4
	}
}

// StringHeap reads a null-terminated UTF-8 string from the #Strings heap
// at byte offset idx.
func (img *Image) StringHeap(idx uint32) string {
	h := img.Streams.Strings
	if idx == 0 || int(idx) >= len(h) {
		return ""
	}
	end := int(idx)
	for end < len(h) && h[end] != 0 {
		end++
	}
	return string(h[idx:end])
}

// BlobHeap returns the decoded (length-prefixed-stripped) bytes of a #Blob
// entry at byte offset idx.
func (img *Image) BlobHeap(idx uint32) []byte {
	h := img.Streams.Blob
	if idx == 0 || int(idx) >= len(h) {
		return nil
	}
	length, n := decodeBlobLength(h[idx:])
	start := int(idx) + n
	end := start + length
	if end > len(h) {
		return nil
	}
	return h[start:end]
}

// decodeBlobLength decodes the ECMA-335 §II.24.2.4 compressed length
// prefix used by #Blob entries.
func decodeBlobLength(b []byte) (length, consumed int) {
	if len(b) == 0 {
		return 0, 0
	}
	first := b[0]
	switch {
	case first&0x80 == 0:
		return int(first), 1
	case first&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 1
		}
		return int(first&0x3F)<<8 | int(b[1]), 2
	default:
		if len(b) < 4 {
			return 0, 1
		}
		return int(first&0x1F)<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3]), 4
	}
}

// UserString reads a UTF-16LE user string from the #US heap by rid (byte
// offset). The trailing single byte (a "has special char" marker) is
// dropped.
func (img *Image) UserString(rid uint32) []uint16 {
	h := img.Streams.US
	if rid == 0 || int(rid) >= len(h) {
		return nil
	}
	length, n := decodeBlobLength(h[rid:])
	start := int(rid) + n
	// the last byte is a marker, not UTF-16 data, when length is odd
	charBytes := length
	if charBytes > 0 {
		charBytes--
	}
	end := start + charBytes
	if end > len(h) {
		return nil
	}
	out := make([]uint16, charBytes/2)
	for i := range out {
		out[i] = uint16(h[start+2*i]) | uint16(h[start+2*i+1])<<8
	}
	return out
}

// GUIDHeap returns the 16-byte GUID at 1-based index idx.
func (img *Image) GUIDHeap(idx uint32) [16]byte {
	var out [16]byte
	if idx == 0 {
		return out
	}
	off := int(idx-1) * 16
	h := img.Streams.GUID
	if off+16 > len(h) {
		return out
	}
	copy(out[:], h[off:off+16])
	return out
}
