package pe

import (
	"encoding/binary"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/vmlog"
)

// SectionHeader is a PE section's virtual→raw mapping.
type SectionHeader struct {
	Name           string
	VirtualSize    uint32
	VirtualAddress uint32
	RawSize        uint32
	RawAddress     uint32
}

// TableInfo holds a valid metadata table's precomputed row geometry: its
// backing bytes, row count, per-row width, and per-column (offset, width).
type TableInfo struct {
	Data      []byte
	Columns   []columnDef
	Offsets   []int // byte offset of each column within a row
	Widths    []int // byte width of each column
	RowCount  uint32
	RowWidth  int
}

// Streams holds the four (five, with #Pdb) heap byte-slices of a metadata
// root, plus the parsed table directory.
type Streams struct {
	Strings []byte
	US      []byte
	GUID    []byte
	Blob    []byte
	Pdb     []byte
	Tables  [MaxTable]TableInfo
	Valid   [MaxTable]bool

	stringIdxSize int
	guidIdxSize   int
	blobIdxSize   int
}

// Image is the in-memory parsed form of one PE file carrying CLI metadata.
type Image struct {
	raw        []byte
	mapping    mmap.MMap // non-nil when opened via OpenImageFile
	Sections   []SectionHeader
	Streams    Streams
	ImageBase  uint64
	EntryToken uint32 // EntryPointToken (0 if the entry point is a native RVA, or absent)
	IsPE32Plus bool
}

// OpenImageFile memory-maps path and parses it as a CLI assembly image.
// Grounded on saferwall/pe's file.go use of mmap.Map(f, mmap.RDONLY, 0).
func OpenImageFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindFileNotFound).
			Detail("open %s", path).Cause(err).Build()
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Detail("mmap %s", path).Cause(err).Build()
	}

	img, err := parseImage([]byte(m))
	if err != nil {
		m.Unmap()
		return nil, err
	}
	img.mapping = m
	return img, nil
}

// OpenImageData parses an already-loaded byte slice as a CLI assembly image.
func OpenImageData(data []byte) (*Image, error) {
	return parseImage(data)
}

// Close releases the mmap backing this image, if any.
func (img *Image) Close() error {
	if img.mapping != nil {
		return img.mapping.Unmap()
	}
	return nil
}

func badImage(detail string, args ...any) error {
	return clrerrors.BadImageFormat(clrerrors.PhaseLoad, detail, args...)
}

func parseImage(data []byte) (*Image, error) {
	if len(data) < 0x40 {
		return nil, badImage("file too small for a DOS header")
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return nil, badImage("missing MZ signature")
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3C:])
	if int(lfanew)+24 > len(data) {
		return nil, badImage("e_lfanew out of range")
	}
	peOff := int(lfanew)
	if string(data[peOff:peOff+4]) != "PE\x00\x00" {
		return nil, badImage("missing PE signature")
	}

	coffOff := peOff + 4
	numSections := binary.LittleEndian.Uint16(data[coffOff+2:])
	optHeaderSize := binary.LittleEndian.Uint16(data[coffOff+16:])

	optOff := coffOff + 20
	if optOff+int(optHeaderSize) > len(data) {
		return nil, badImage("optional header out of range")
	}
	magic := binary.LittleEndian.Uint16(data[optOff:])

	img := &Image{raw: data}

	var dataDirOff int
	switch magic {
	case 0x10B: // PE32
		img.IsPE32Plus = false
		img.ImageBase = uint64(binary.LittleEndian.Uint32(data[optOff+28:]))
		dataDirOff = optOff + 96
	case 0x20B: // PE32+
		img.IsPE32Plus = true
		img.ImageBase = binary.LittleEndian.Uint64(data[optOff+24:])
		dataDirOff = optOff + 112
	default:
		return nil, badImage("unrecognized optional-header magic 0x%x", magic)
	}

	// CLI header directory entry: index 14, offset 208 (PE32) or 224 (PE32+)
	// from the start of the optional header, per spec.md §4.1.
	cliDirOff := optOff + 208
	if img.IsPE32Plus {
		cliDirOff = optOff + 224
	}
	if cliDirOff+8 > len(data) {
		return nil, badImage("CLI header directory entry out of range")
	}
	cliRVA := binary.LittleEndian.Uint32(data[cliDirOff:])
	cliSize := binary.LittleEndian.Uint32(data[cliDirOff+4:])
	if cliRVA == 0 || cliSize == 0 {
		return nil, badImage("image has no CLI header (not a managed assembly)")
	}

	sectionOff := optOff + int(optHeaderSize)
	sections := make([]SectionHeader, 0, numSections)
	for i := 0; i < int(numSections); i++ {
		base := sectionOff + i*40
		if base+40 > len(data) {
			return nil, badImage("section header %d out of range", i)
		}
		name := cstr(data[base : base+8])
		sections = append(sections, SectionHeader{
			Name:           name,
			VirtualSize:    binary.LittleEndian.Uint32(data[base+8:]),
			VirtualAddress: binary.LittleEndian.Uint32(data[base+12:]),
			RawSize:        binary.LittleEndian.Uint32(data[base+16:]),
			RawAddress:     binary.LittleEndian.Uint32(data[base+20:]),
		})
	}
	img.Sections = sections

	cliOff, ok := img.rvaToOffset(cliRVA)
	if !ok {
		return nil, badImage("CLI header RVA 0x%x does not map to any section", cliRVA)
	}
	if cliOff+72 > len(data) {
		return nil, badImage("CLI header out of range")
	}
	metaRVA := binary.LittleEndian.Uint32(data[cliOff+8:])
	entryToken := binary.LittleEndian.Uint32(data[cliOff+20:])
	img.EntryToken = entryToken

	metaOff, ok := img.rvaToOffset(metaRVA)
	if !ok {
		return nil, badImage("metadata root RVA 0x%x does not map to any section", metaRVA)
	}

	if err := img.parseMetadataRoot(data, metaOff); err != nil {
		return nil, err
	}

	vmlog.Debugf("pe: parsed image, %d sections, %d valid tables", len(sections), countValid(&img.Streams))
	return img, nil
}

func countValid(s *Streams) int {
	n := 0
	for _, v := range s.Valid {
		if v {
			n++
		}
	}
	return n
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// RVAFileOffset converts a relative virtual address to a raw file offset
// using the section table; exported for callers outside the package that
// need to resolve a FieldRVA or native entry point.
func (img *Image) RVAFileOffset(rva uint32) (int, bool) {
	return img.rvaToOffset(rva)
}

// RawData returns the image's full backing byte slice, for callers that
// have already resolved a file offset (e.g. via RVAFileOffset) and need
// to read raw bytes from it.
func (img *Image) RawData() []byte {
	return img.raw
}

// rvaToOffset converts a relative virtual address to a raw file offset
// using the section table.
func (img *Image) rvaToOffset(rva uint32) (int, bool) {
	for _, s := range img.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+sectionSpan(s) {
			return int(s.RawAddress + (rva - s.VirtualAddress)), true
		}
	}
	return 0, false
}

func sectionSpan(s SectionHeader) uint32 {
	if s.VirtualSize != 0 {
		return s.VirtualSize
	}
	return s.RawSize
}

func (img *Image) parseMetadataRoot(data []byte, off int) error {
	if off+16 > len(data) {
		return badImage("metadata root out of range")
	}
	sig := binary.LittleEndian.Uint32(data[off:])
	if sig != 0x424A5342 { // "BSJB"
		return badImage("metadata root missing BSJB signature")
	}
	// major(2) minor(2) reserved(4) already consumed by sig+version walk below
	verLen := binary.LittleEndian.Uint32(data[off+12:])
	streamsOff := off + 16 + int(verLen)
	// align up to 4 handled implicitly since verLen is padded by the writer;
	// per ECMA-335 the version string is already padded to a 4-byte boundary.
	if streamsOff+4 > len(data) {
		return badImage("metadata root stream header out of range")
	}
	streamsOff += 2 // flags (reserved, 2 bytes)
	numStreams := binary.LittleEndian.Uint16(data[streamsOff:])
	streamsOff += 2

	type streamHdr struct {
		off, size uint32
		name      string
	}
	var hdrs []streamHdr
	cur := streamsOff
	for i := 0; i < int(numStreams); i++ {
		if cur+8 > len(data) {
			return badImage("stream header %d out of range", i)
		}
		sOff := binary.LittleEndian.Uint32(data[cur:])
		sSize := binary.LittleEndian.Uint32(data[cur+4:])
		cur += 8
		name := cstr(data[cur:min(cur+32, len(data))])
		hdrs = append(hdrs, streamHdr{sOff, sSize, name})
		// name is null-padded to a 4-byte boundary
		nameLen := len(name) + 1
		nameLen = (nameLen + 3) &^ 3
		cur += nameLen
	}

	for _, h := range hdrs {
		start := off + int(h.off)
		end := start + int(h.size)
		if start < 0 || end > len(data) || end < start {
			return badImage("stream %q out of range", h.name)
		}
		switch h.name {
		case "#Strings":
			img.Streams.Strings = data[start:end]
		case "#US":
			img.Streams.US = data[start:end]
		case "#GUID":
			img.Streams.GUID = data[start:end]
		case "#Blob":
			img.Streams.Blob = data[start:end]
		case "#Pdb":
			img.Streams.Pdb = data[start:end]
		case "#~", "#-":
			if err := img.parseTableStream(data[start:end]); err != nil {
				return err
			}
		}
	}
	if !img.Valid() {
		return badImage("missing #~ table stream")
	}
	return nil
}

// Valid reports whether a #~ table stream was found.
func (img *Image) Valid() bool {
	for _, v := range img.Streams.Valid {
		if v {
			return true
		}
	}
	return false
}

