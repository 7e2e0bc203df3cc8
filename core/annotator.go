package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// AnnotatedValueKind discriminates AnnotatedValue.
type AnnotatedValueKind int

const (
	AVU8 AnnotatedValueKind = iota
	AVU64
	AVU128
	AVBool
	AVAddress
	AVVector
	AVBytes
	AVStruct
)

// AnnotatedValue is a tagged tree enriched with runtime type information —
// structurally like MoveValue but carrying the element TypeTag for
// vectors and the full AnnotatedStruct for nested structs. Bytes is the
// specialization of Vector when the element type is U8.
type AnnotatedValue struct {
	Kind        AnnotatedValueKind
	U8          uint8
	U64         uint64
	U128        moveU128
	Bool        bool
	Address     Address
	VectorElem  TypeTag
	Vector      []AnnotatedValue
	Bytes       []byte
	Struct      *AnnotatedStruct
}

// moveU128 avoids importing math/big into every call site that only needs
// to pattern-match on kind; value.go's MoveValue.U128 (*big.Int) is
// converted in here.
type moveU128 = MoveValue

// AnnotatedStruct is (is_resource, tag, ordered field list).
type AnnotatedStruct struct {
	IsResource bool
	Tag        StructTag
	Fields     []AnnotatedField
}

// AnnotatedField is one (name, value) pair of an AnnotatedStruct.
type AnnotatedField struct {
	Name  Identifier
	Value AnnotatedValue
}

// Annotator decodes a binary resource blob under a resolved type into an
// annotated value tree.
type Annotator struct {
	resolver *Resolver
	logger   *logrus.Logger
}

// NewAnnotator wires an Annotator over a Resolver.
func NewAnnotator(resolver *Resolver, lg *logrus.Logger) *Annotator {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Annotator{resolver: resolver, logger: lg}
}

// ViewResource resolves tag, deserializes blob under the resulting layout,
// and annotates the result — the §4.3 contract. q is threaded through to
// the resolver so a resolution triggered mid-block stays on that block's
// connection/transaction.
func (a *Annotator) ViewResource(q querier, tag StructTag, blob []byte) (AnnotatedStruct, error) {
	ty, err := a.resolver.ResolveStruct(q, tag)
	if err != nil {
		return AnnotatedStruct{}, err
	}
	mv, err := DeserializeStruct(blob, ty)
	if err != nil {
		return AnnotatedStruct{}, err
	}
	return a.AnnotateStruct(mv, ty)
}

// AnnotateStruct zips a MoveValue struct against its resolved type,
// producing an AnnotatedStruct.
func (a *Annotator) AnnotateStruct(mv MoveValue, ty FatStructType) (AnnotatedStruct, error) {
	if mv.Kind != MVStruct || len(mv.Struct) != len(ty.Fields) {
		return AnnotatedStruct{}, fmt.Errorf("%w: annotate struct shape mismatch", ErrInternalTypeMismatch)
	}
	tag, err := ty.StructTag()
	if err != nil {
		return AnnotatedStruct{}, err
	}
	fields := make([]AnnotatedField, len(ty.Fields))
	for i, f := range ty.Fields {
		v, err := a.annotateValue(mv.Struct[i], f.Type)
		if err != nil {
			return AnnotatedStruct{}, err
		}
		fields[i] = AnnotatedField{Name: f.Name, Value: v}
	}
	return AnnotatedStruct{IsResource: ty.IsResource, Tag: tag, Fields: fields}, nil
}

// annotateValue lifts a single leaf value into its AnnotatedValue variant,
// special-casing Vector<U8> to Bytes.
func (a *Annotator) annotateValue(mv MoveValue, ty FatType) (AnnotatedValue, error) {
	switch {
	case mv.Kind == MVBool && ty.Kind == FatBool:
		return AnnotatedValue{Kind: AVBool, Bool: mv.Bool}, nil
	case mv.Kind == MVU8 && ty.Kind == FatU8:
		return AnnotatedValue{Kind: AVU8, U8: mv.U8}, nil
	case mv.Kind == MVU64 && ty.Kind == FatU64:
		return AnnotatedValue{Kind: AVU64, U64: mv.U64}, nil
	case mv.Kind == MVU128 && ty.Kind == FatU128:
		return AnnotatedValue{Kind: AVU128, U128: mv}, nil
	case mv.Kind == MVAddress && ty.Kind == FatAddress:
		return AnnotatedValue{Kind: AVAddress, Address: mv.Address}, nil
	case mv.Kind == MVVector && ty.Kind == FatVector:
		if ty.Vector.Kind == FatU8 {
			bytes := make([]byte, len(mv.Vector))
			for i, e := range mv.Vector {
				if e.Kind != MVU8 {
					return AnnotatedValue{}, fmt.Errorf("%w: unexpected value type in byte vector", ErrInternalTypeMismatch)
				}
				bytes[i] = e.U8
			}
			return AnnotatedValue{Kind: AVBytes, Bytes: bytes}, nil
		}
		elemTag, err := ty.Vector.TypeTag()
		if err != nil {
			return AnnotatedValue{}, err
		}
		values := make([]AnnotatedValue, len(mv.Vector))
		for i, e := range mv.Vector {
			v, err := a.annotateValue(e, *ty.Vector)
			if err != nil {
				return AnnotatedValue{}, err
			}
			values[i] = v
		}
		return AnnotatedValue{Kind: AVVector, VectorElem: elemTag, Vector: values}, nil
	case mv.Kind == MVStruct && ty.Kind == FatStruct:
		s, err := a.AnnotateStruct(mv, *ty.Struct)
		if err != nil {
			return AnnotatedValue{}, err
		}
		return AnnotatedValue{Kind: AVStruct, Struct: &s}, nil
	default:
		return AnnotatedValue{}, fmt.Errorf("cannot annotate value %v with type %v", mv, ty)
	}
}

// String pretty-prints an AnnotatedValue, mirroring
// original_source/src/annotator.rs's Display impl.
func (v AnnotatedValue) String() string {
	var b strings.Builder
	writeValue(&b, v, 0)
	return b.String()
}

func (s AnnotatedStruct) String() string {
	var b strings.Builder
	writeStruct(&b, s, 0)
	return b.String()
}

func writeValue(b *strings.Builder, v AnnotatedValue, indent int) {
	switch v.Kind {
	case AVBool:
		fmt.Fprintf(b, "%v", v.Bool)
	case AVU8:
		fmt.Fprintf(b, "%du8", v.U8)
	case AVU64:
		fmt.Fprintf(b, "%d", v.U64)
	case AVU128:
		fmt.Fprintf(b, "%su128", v.U128.U128.String())
	case AVAddress:
		b.WriteString(v.Address.Short())
	case AVVector:
		b.WriteString("[\n")
		for _, e := range v.Vector {
			writeIndent(b, indent+4)
			writeValue(b, e, indent+4)
			b.WriteString(",\n")
		}
		writeIndent(b, indent)
		b.WriteString("]")
	case AVBytes:
		b.WriteString(hex.EncodeToString(v.Bytes))
	case AVStruct:
		writeStruct(b, *v.Struct, indent)
	}
}

func writeStruct(b *strings.Builder, s AnnotatedStruct, indent int) {
	if s.IsResource {
		b.WriteString("resource ")
	}
	b.WriteString(s.Tag.String())
	b.WriteString(" {\n")
	for _, f := range s.Fields {
		writeIndent(b, indent+4)
		fmt.Fprintf(b, "%s: ", f.Name)
		writeValue(b, f.Value, indent+4)
		b.WriteString("\n")
	}
	writeIndent(b, indent)
	b.WriteString("}")
}

func writeIndent(b *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		b.WriteByte(' ')
	}
}
