package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// MoveValueKind discriminates MoveValue, the untyped (no runtime type
// annotation) value tree decoded straight off the wire. It is lifted into
// an AnnotatedValue (core/annotator.go) by zipping against a FatType.
type MoveValueKind int

const (
	MVBool MoveValueKind = iota
	MVU8
	MVU64
	MVU128
	MVAddress
	MVVector
	MVStruct
)

// MoveValue is a Move value tree using only primitive and compositional
// (struct/vector) constructors, without type annotation — the Glossary's
// "Move value".
type MoveValue struct {
	Kind    MoveValueKind
	Bool    bool
	U8      uint8
	U64     uint64
	U128    *big.Int // unsigned, 0 <= U128 < 2^128
	Address Address
	Vector  []MoveValue
	Struct  []MoveValue // ordered field values, matching the struct's FatStructType.Fields order
}

func MVBoolVal(b bool) MoveValue    { return MoveValue{Kind: MVBool, Bool: b} }
func MVU8Val(v uint8) MoveValue     { return MoveValue{Kind: MVU8, U8: v} }
func MVU64Val(v uint64) MoveValue   { return MoveValue{Kind: MVU64, U64: v} }
func MVU128Val(v *big.Int) MoveValue { return MoveValue{Kind: MVU128, U128: v} }
func MVAddressVal(a Address) MoveValue { return MoveValue{Kind: MVAddress, Address: a} }
func MVVectorVal(v []MoveValue) MoveValue { return MoveValue{Kind: MVVector, Vector: v} }
func MVStructVal(fields []MoveValue) MoveValue { return MoveValue{Kind: MVStruct, Struct: fields} }

// u128ToBytesBE renders v as 16-byte big-endian, the encoding spec.md
// §4.4.2 requires for the SQL column / element-table representation.
func u128ToBytesBE(v *big.Int) []byte {
	out := make([]byte, 16)
	v.FillBytes(out)
	return out
}

func u128FromBytesBE(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// --- BCS leaf decode -------------------------------------------------------
//
// Hand-rolled rather than driven by a reflection-based BCS library: the
// type tree (FatType) is computed at run time from on-chain module bytes,
// and no static Go type exists for a derive-style BCS library to bind
// against. See DESIGN.md's Annotator entry. Encoding rules per spec.md
// §4.3: fixed-width little-endian integers, raw address bytes, ULEB128
// length-prefixed vectors, structs as field concatenation in declared
// order.

// DeserializeStruct decodes blob under layout ty, the resolved type of a
// struct, yielding its MoveValue tree. This is the Annotator's
// `MoveStruct::simple_deserialize` step.
func DeserializeStruct(blob []byte, ty FatStructType) (MoveValue, error) {
	offset := 0
	fields := make([]MoveValue, len(ty.Fields))
	for i, f := range ty.Fields {
		v, n, err := decodeAt(blob, offset, f.Type)
		if err != nil {
			return MoveValue{}, fmt.Errorf("%w: field %s: %v", ErrDeserializationError, f.Name, err)
		}
		fields[i] = v
		offset += n
	}
	return MVStructVal(fields), nil
}

func decodeAt(data []byte, offset int, ty FatType) (MoveValue, int, error) {
	switch ty.Kind {
	case FatBool:
		if offset >= len(data) {
			return MoveValue{}, 0, fmt.Errorf("unexpected end of input decoding bool")
		}
		return MVBoolVal(data[offset] != 0), 1, nil
	case FatU8:
		if offset >= len(data) {
			return MoveValue{}, 0, fmt.Errorf("unexpected end of input decoding u8")
		}
		return MVU8Val(data[offset]), 1, nil
	case FatU64:
		if offset+8 > len(data) {
			return MoveValue{}, 0, fmt.Errorf("unexpected end of input decoding u64")
		}
		return MVU64Val(binary.LittleEndian.Uint64(data[offset : offset+8])), 8, nil
	case FatU128:
		if offset+16 > len(data) {
			return MoveValue{}, 0, fmt.Errorf("unexpected end of input decoding u128")
		}
		le := data[offset : offset+16]
		be := make([]byte, 16)
		for i := 0; i < 16; i++ {
			be[i] = le[15-i]
		}
		return MVU128Val(new(big.Int).SetBytes(be)), 16, nil
	case FatAddress:
		if offset+AddressLength > len(data) {
			return MoveValue{}, 0, fmt.Errorf("unexpected end of input decoding address")
		}
		addr, err := NewAddress(data[offset : offset+AddressLength])
		if err != nil {
			return MoveValue{}, 0, err
		}
		return MVAddressVal(addr), AddressLength, nil
	case FatVector:
		length, n, err := readULEB128(data, offset)
		if err != nil {
			return MoveValue{}, 0, err
		}
		total := n
		elems := make([]MoveValue, 0, length)
		pos := offset + n
		for i := uint64(0); i < length; i++ {
			v, consumed, err := decodeAt(data, pos, *ty.Vector)
			if err != nil {
				return MoveValue{}, 0, err
			}
			elems = append(elems, v)
			pos += consumed
			total += consumed
		}
		return MVVectorVal(elems), total, nil
	case FatStruct:
		pos := offset
		fields := make([]MoveValue, len(ty.Struct.Fields))
		for i, f := range ty.Struct.Fields {
			v, consumed, err := decodeAt(data, pos, f.Type)
			if err != nil {
				return MoveValue{}, 0, err
			}
			fields[i] = v
			pos += consumed
		}
		return MVStructVal(fields), pos - offset, nil
	case FatTyParam:
		return MoveValue{}, 0, fmt.Errorf("%w: unresolved type parameter in layout", ErrInternalTypeMismatch)
	default:
		return MoveValue{}, 0, fmt.Errorf("unknown fat type kind %d", ty.Kind)
	}
}

func readULEB128(data []byte, offset int) (uint64, int, error) {
	var result uint64
	var shift uint
	n := 0
	for {
		if offset+n >= len(data) {
			return 0, 0, fmt.Errorf("unexpected end of input decoding uleb128 length")
		}
		b := data[offset+n]
		n++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, fmt.Errorf("uleb128 overflow")
		}
	}
	return result, n, nil
}

// SerializeStruct is the inverse of DeserializeStruct: it re-encodes a
// MoveValue struct tree under layout ty back to canonical bytes. Used by
// the state-view emission path (§6), which must hand the VM bytes that
// deserialize back to an equal value.
func SerializeStruct(v MoveValue, ty FatStructType) ([]byte, error) {
	if v.Kind != MVStruct || len(v.Struct) != len(ty.Fields) {
		return nil, fmt.Errorf("%w: serialize struct shape mismatch", ErrInternalTypeMismatch)
	}
	var out []byte
	for i, f := range ty.Fields {
		b, err := encodeAt(v.Struct[i], f.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeAt(v MoveValue, ty FatType) ([]byte, error) {
	switch ty.Kind {
	case FatBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case FatU8:
		return []byte{v.U8}, nil
	case FatU64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.U64)
		return b, nil
	case FatU128:
		be := u128ToBytesBE(v.U128)
		le := make([]byte, 16)
		for i := 0; i < 16; i++ {
			le[i] = be[15-i]
		}
		return le, nil
	case FatAddress:
		return append([]byte(nil), v.Address.Bytes()...), nil
	case FatVector:
		out := writeULEB128(uint64(len(v.Vector)))
		for _, e := range v.Vector {
			b, err := encodeAt(e, *ty.Vector)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	case FatStruct:
		return SerializeStruct(v, *ty.Struct)
	default:
		return nil, fmt.Errorf("%w: cannot serialize %v", ErrInternalTypeMismatch, ty)
	}
}

func writeULEB128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}
