package clrtype

import (
	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/pe"
)

// ECMA-335 §II.23.2 element-type byte codes this decoder recognizes.
const (
	sigElemEnd         = 0x00
	sigElemVoid        = 0x01
	sigElemBoolean     = 0x02
	sigElemChar        = 0x03
	sigElemI1          = 0x04
	sigElemU1          = 0x05
	sigElemI2          = 0x06
	sigElemU2          = 0x07
	sigElemI4          = 0x08
	sigElemU4          = 0x09
	sigElemI8          = 0x0A
	sigElemU8          = 0x0B
	sigElemR4          = 0x0C
	sigElemR8          = 0x0D
	sigElemString      = 0x0E
	sigElemPtr         = 0x0F
	sigElemByRef       = 0x10
	sigElemValueType   = 0x11
	sigElemClass       = 0x12
	sigElemVar         = 0x13
	sigElemArray       = 0x14
	sigElemGenericInst = 0x15
	sigElemTypedByRef  = 0x16
	sigElemI           = 0x18
	sigElemU           = 0x19
	sigElemFnPtr       = 0x1B
	sigElemObject      = 0x1C
	sigElemSZArray     = 0x1D
	sigElemMVar        = 0x1E
	sigElemCModReqd    = 0x1F
	sigElemCModOpt     = 0x20
	sigElemSentinel    = 0x41
	sigElemPinned      = 0x45
)

// sigReader walks a signature blob with the ECMA-335 compressed-integer
// rule, mirroring the cursor idiom of wasm/internal/binary.Reader but
// sized for the fixed small blobs signatures come in.
type sigReader struct {
	b   []byte
	pos int
}

func (r *sigReader) byte() (byte, bool) {
	if r.pos >= len(r.b) {
		return 0, false
	}
	v := r.b[r.pos]
	r.pos++
	return v, true
}

func (r *sigReader) compressed() (uint32, bool) {
	b0, ok := r.byte()
	if !ok {
		return 0, false
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), true
	case b0&0xC0 == 0x80:
		b1, ok := r.byte()
		if !ok {
			return 0, false
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), true
	default:
		b1, ok1 := r.byte()
		b2, ok2 := r.byte()
		b3, ok3 := r.byte()
		if !ok1 || !ok2 || !ok3 {
			return 0, false
		}
		return uint32(b0&0x1F)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3), true
	}
}

// decodeFieldSignature parses a FIELD signature: 0x06 calling-convention
// byte followed by one Type.
func (m *Module) decodeFieldSignature(blob []byte) (*Typesig, error) {
	r := &sigReader{b: blob}
	cc, ok := r.byte()
	if !ok || cc != 0x06 {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("bad FIELD signature calling convention 0x%x", cc).Build()
	}
	return m.decodeType(r)
}

// decodeMethodSignature parses a METHOD signature: calling-convention
// byte, optional generic-param count, param count, return type, then
// each parameter type.
func (m *Module) decodeMethodSignature(blob []byte) (ret *Typesig, params []*Typesig, genericParamCount int, err error) {
	r := &sigReader{b: blob}
	cc, ok := r.byte()
	if !ok {
		return nil, nil, 0, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("empty METHOD signature").Build()
	}
	if cc&0x10 != 0 { // HASGENERICPARAM bit
		gc, _ := r.compressed()
		genericParamCount = int(gc)
	}
	paramCount, ok := r.compressed()
	if !ok {
		return nil, nil, 0, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("METHOD signature missing param count").Build()
	}
	ret, err = m.decodeType(r)
	if err != nil {
		return nil, nil, 0, err
	}
	for i := uint32(0); i < paramCount; i++ {
		p, err := m.decodeType(r)
		if err != nil {
			return nil, nil, 0, err
		}
		params = append(params, p)
	}
	return ret, params, genericParamCount, nil
}

func (m *Module) decodeType(r *sigReader) (*Typesig, error) {
	tag, ok := r.byte()
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("signature truncated").Build()
	}
	for tag == sigElemCModReqd || tag == sigElemCModOpt {
		r.compressed() // skip the TypeDefOrRefOrSpec token; modifiers don't affect our layout
		tag, ok = r.byte()
		if !ok {
			return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
				Path(m.Name).Detail("signature truncated after modifier").Build()
		}
	}

	switch tag {
	case sigElemVoid:
		return &Typesig{Elem: ElemVoid}, nil
	case sigElemBoolean:
		return &Typesig{Elem: ElemBoolean}, nil
	case sigElemChar:
		return &Typesig{Elem: ElemChar}, nil
	case sigElemI1:
		return &Typesig{Elem: ElemI1}, nil
	case sigElemU1:
		return &Typesig{Elem: ElemU1}, nil
	case sigElemI2:
		return &Typesig{Elem: ElemI2}, nil
	case sigElemU2:
		return &Typesig{Elem: ElemU2}, nil
	case sigElemI4:
		return &Typesig{Elem: ElemI4}, nil
	case sigElemU4:
		return &Typesig{Elem: ElemU4}, nil
	case sigElemI8:
		return &Typesig{Elem: ElemI8}, nil
	case sigElemU8:
		return &Typesig{Elem: ElemU8}, nil
	case sigElemR4:
		return &Typesig{Elem: ElemR4}, nil
	case sigElemR8:
		return &Typesig{Elem: ElemR8}, nil
	case sigElemI:
		return &Typesig{Elem: ElemI}, nil
	case sigElemU:
		return &Typesig{Elem: ElemU}, nil
	case sigElemString:
		return &Typesig{Elem: ElemString}, nil
	case sigElemObject:
		return &Typesig{Elem: ElemObject}, nil
	case sigElemTypedByRef:
		return &Typesig{Elem: ElemTypedByRef}, nil
	case sigElemPtr:
		elem, err := m.decodeType(r)
		if err != nil {
			return nil, err
		}
		return &Typesig{Elem: ElemPtr, Element: elem}, nil
	case sigElemByRef:
		elem, err := m.decodeType(r)
		if err != nil {
			return nil, err
		}
		return &Typesig{Elem: elem.Elem, ByRef: true, Element: elem}, nil
	case sigElemSZArray:
		elem, err := m.decodeType(r)
		if err != nil {
			return nil, err
		}
		return &Typesig{Elem: ElemSZArray, Element: elem}, nil
	case sigElemValueType, sigElemClass:
		tok, ok := r.compressed()
		if !ok {
			return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
				Path(m.Name).Detail("signature type token truncated").Build()
		}
		elemKind := ElemClass
		if tag == sigElemValueType {
			elemKind = ElemValueType
		}
		return &Typesig{Elem: elemKind, TypeDefMod: m, TypeDefToken: decodeTypeDefOrRefEncoded(tok)}, nil
	case sigElemVar:
		n, _ := r.compressed()
		return &Typesig{Elem: ElemVar, GenericParamNumber: int(n)}, nil
	case sigElemMVar:
		n, _ := r.compressed()
		return &Typesig{Elem: ElemMVar, GenericParamNumber: int(n)}, nil
	case sigElemGenericInst:
		baseTag, _ := r.byte()
		tok, _ := r.compressed()
		elemKind := ElemClass
		if baseTag == sigElemValueType {
			elemKind = ElemValueType
		}
		base := &Typesig{Elem: elemKind, TypeDefMod: m, TypeDefToken: decodeTypeDefOrRefEncoded(tok)}
		argCount, _ := r.compressed()
		args := make([]*Typesig, 0, argCount)
		for i := uint32(0); i < argCount; i++ {
			a, err := m.decodeType(r)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return &Typesig{Elem: ElemGenericInst, GenericBase: base, GenericArgs: args}, nil
	case sigElemArray:
		elem, err := m.decodeType(r)
		if err != nil {
			return nil, err
		}
		rank, _ := r.compressed()
		numSizes, _ := r.compressed()
		sizes := make([]int32, numSizes)
		for i := range sizes {
			v, _ := r.compressed()
			sizes[i] = int32(v)
		}
		numLo, _ := r.compressed()
		los := make([]int32, numLo)
		for i := range los {
			v, _ := r.compressed()
			los[i] = int32(v)
		}
		bounds := make([]ArrayBound, rank)
		for i := range bounds {
			if i < len(sizes) {
				bounds[i].Size = sizes[i]
			}
			if i < len(los) {
				bounds[i].LowerBound = los[i]
			}
		}
		return &Typesig{Elem: ElemArray, Element: elem, Rank: int(rank), Bounds: bounds}, nil
	case sigElemFnPtr:
		ret, params, _, err := m.decodeMethodSignatureFromReader(r)
		if err != nil {
			return nil, err
		}
		return &Typesig{Elem: ElemFnPtr, FnPtrReturn: ret, FnPtrParams: params}, nil
	default:
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("unsupported signature element type 0x%x", tag).Build()
	}
}

// decodeMethodSignatureFromReader is decodeMethodSignature's inner loop,
// reused by FnPtr decoding which shares the same grammar mid-blob.
func (m *Module) decodeMethodSignatureFromReader(r *sigReader) (*Typesig, []*Typesig, int, error) {
	cc, ok := r.byte()
	if !ok {
		return nil, nil, 0, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(m.Name).Detail("empty embedded method signature").Build()
	}
	genericParamCount := 0
	if cc&0x10 != 0 {
		gc, _ := r.compressed()
		genericParamCount = int(gc)
	}
	paramCount, _ := r.compressed()
	ret, err := m.decodeType(r)
	if err != nil {
		return nil, nil, 0, err
	}
	params := make([]*Typesig, 0, paramCount)
	for i := uint32(0); i < paramCount; i++ {
		p, err := m.decodeType(r)
		if err != nil {
			return nil, nil, 0, err
		}
		params = append(params, p)
	}
	return ret, params, genericParamCount, nil
}

// decodeTypeDefOrRefEncoded unpacks a signature-embedded TypeDefOrRefOrSpec
// token (ECMA-335 §II.23.2.8): low 2 bits are the tag, the rest the rid.
func decodeTypeDefOrRefEncoded(encoded uint32) pe.Token {
	tag := encoded & 0x3
	rid := encoded >> 2
	tables := pe.TypeDefOrRefTables()
	if int(tag) >= len(tables) {
		return 0
	}
	return pe.EncodeToken(tables[tag], rid)
}
