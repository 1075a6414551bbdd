package object

import (
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/clrtype"
)

// FastAllocateString allocates an RtString-kind object holding length
// UTF-16 code units, all zero-initialized (spec.md §4.6's
// fast_allocate_string). The caller fills Chars afterward. Chars holds
// exactly length units: no zero sentinel is stored past the end, and no
// function in this package appends one.
func FastAllocateString(stringClass *clrtype.RtClass, length int32) (*RtObject, error) {
	if length < 0 {
		return nil, clrerrors.New(clrerrors.PhaseString, clrerrors.KindArgumentOutOfRange).
			Detail("string length %d is negative", length).Build()
	}
	return &RtObject{
		Class:  stringClass,
		Kind:   KindString,
		Length: length,
		Chars:  make([]uint16, length),
	}, nil
}

// utf16LE is the #US/#Strings heap's wire encoding: little-endian UTF-16,
// no byte-order mark — the same codec NewStringFromUTF8/GoString drive for
// host Go-string conversion, so both directions go through one codec
// instead of a hand-rolled surrogate-pair table.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// NewStringFromUTF8 builds a string object from a Go (UTF-8) string,
// converting to UTF-16 via x/text's unicode codec rather than hand-rolled
// surrogate-pair math (spec.md §8's UTF-8⇄UTF-16 round-trip property,
// checked literally against the codec instead of by hand).
func NewStringFromUTF8(stringClass *clrtype.RtClass, s string) (*RtObject, error) {
	if !utf8.ValidString(s) {
		return nil, clrerrors.New(clrerrors.PhaseString, clrerrors.KindArgument).
			Detail("string %q is not valid UTF-8", s).Build()
	}
	encoded, err := utf16LE.NewEncoder().String(s)
	if err != nil {
		return nil, clrerrors.New(clrerrors.PhaseString, clrerrors.KindArgument).
			Detail("string %q is not valid UTF-8: %v", s, err).Build()
	}
	units := utf16LEBytesToUnits([]byte(encoded))
	obj, err := FastAllocateString(stringClass, int32(len(units)))
	if err != nil {
		return nil, err
	}
	copy(obj.Chars, units)
	return obj, nil
}

// NewString is NewStringFromUTF8 under its original, pre-UTF-8-labeled
// name; every existing caller building a string from a Go string literal
// goes through here.
func NewString(stringClass *clrtype.RtClass, s string) (*RtObject, error) {
	return NewStringFromUTF8(stringClass, s)
}

// GoString decodes obj's UTF-16 content back to a Go string via the same
// x/text codec NewStringFromUTF8 encodes with.
func GoString(obj *RtObject) string {
	raw := unitsToUTF16LEBytes(obj.Chars)
	decoded, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = raw
	}
	return string(decoded)
}

func utf16LEBytesToUnits(b []byte) []uint16 {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return units
}

func unitsToUTF16LEBytes(units []uint16) []byte {
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return b
}

// InternTable is the process-wide string-interning set spec.md §4.6
// describes: content-equality keyed, returning the canonical instance.
type InternTable struct {
	mu      sync.RWMutex
	entries map[string]*RtObject
	empty   *RtObject
}

// NewInternTable materializes the String.Empty singleton spec.md §4.6
// says is "created once at startup" and returns an intern table holding
// it as its only entry.
func NewInternTable(stringClass *clrtype.RtClass) (*InternTable, error) {
	empty, err := FastAllocateString(stringClass, 0)
	if err != nil {
		return nil, err
	}
	t := &InternTable{entries: make(map[string]*RtObject), empty: empty}
	t.entries[""] = empty
	return t, nil
}

// Empty returns the runtime's single String.Empty instance.
func (t *InternTable) Empty() *RtObject {
	return t.empty
}

// Intern inserts s's canonical instance if absent, else returns the
// existing one — keyed by UTF-16 content equality (a Go string built from
// GoString(s), which is a faithful round trip per spec.md §8).
func (t *InternTable) Intern(s *RtObject) *RtObject {
	key := GoString(s)
	t.mu.RLock()
	if existing, ok := t.entries[key]; ok {
		t.mu.RUnlock()
		return existing
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[key]; ok {
		return existing
	}
	t.entries[key] = s
	return s
}

// IsInterned returns the canonical instance for s's content if one is
// already interned, else nil.
func (t *InternTable) IsInterned(s *RtObject) *RtObject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[GoString(s)]
}
