package core

import "strings"

// TypeTagKind discriminates the TypeTag sum. TypeTag is a single struct
// carrying this Kind plus the optional Vector/Struct payloads, so a switch
// on Kind at each call site mirrors the Rust `match` this is grounded on.
type TypeTagKind int

const (
	TypeTagBool TypeTagKind = iota
	TypeTagU8
	TypeTagU64
	TypeTagU128
	TypeTagAddress
	TypeTagSigner
	TypeTagVector
	TypeTagStruct
)

// TypeTag is a sum over {Bool, U8, U64, U128, Address, Signer,
// Vector(TypeTag), Struct(StructTag)}. Signer is legal as a function
// argument but must never appear in persisted storage.
type TypeTag struct {
	Kind   TypeTagKind
	Vector *TypeTag  // populated iff Kind == TypeTagVector
	Struct *StructTag // populated iff Kind == TypeTagStruct
}

// StructTag is the 4-tuple (address, module, name, type-arguments) that
// identifies a concrete generic instantiation. Two tags are equal iff all
// four components are equal component-wise.
type StructTag struct {
	Address    Address
	Module     Identifier
	Name       Identifier
	TypeParams []TypeTag
}

// Equal reports structural equality, recursing into type arguments.
func (t StructTag) Equal(o StructTag) bool {
	if t.Address != o.Address || t.Module != o.Module || t.Name != o.Name {
		return false
	}
	if len(t.TypeParams) != len(o.TypeParams) {
		return false
	}
	for i := range t.TypeParams {
		if !t.TypeParams[i].Equal(o.TypeParams[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality between two type tags.
func (t TypeTag) Equal(o TypeTag) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypeTagVector:
		return t.Vector.Equal(*o.Vector)
	case TypeTagStruct:
		return t.Struct.Equal(*o.Struct)
	default:
		return true
	}
}

func (t TypeTag) String() string {
	switch t.Kind {
	case TypeTagBool:
		return "bool"
	case TypeTagU8:
		return "u8"
	case TypeTagU64:
		return "u64"
	case TypeTagU128:
		return "u128"
	case TypeTagAddress:
		return "address"
	case TypeTagSigner:
		return "signer"
	case TypeTagVector:
		return "vector<" + t.Vector.String() + ">"
	case TypeTagStruct:
		return t.Struct.String()
	default:
		return "?"
	}
}

func (t StructTag) String() string {
	var b strings.Builder
	b.WriteString(t.Address.Short())
	b.WriteString("::")
	b.WriteString(string(t.Module))
	b.WriteString("::")
	b.WriteString(string(t.Name))
	if len(t.TypeParams) > 0 {
		b.WriteString("<")
		for i, p := range t.TypeParams {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		b.WriteString(">")
	}
	return b.String()
}

// AccessPath identifies a slot of on-chain state: an address plus a
// tagged path that is either a module id (Code) or a struct tag
// (Resource).
type AccessPath struct {
	Address Address
	Path    AccessPathKind
}

// AccessPathKind is the decoded form of the path bytes within an
// AccessPath; exactly one of Code/Resource is set.
type AccessPathKind struct {
	Code     *ModuleID
	Resource *StructTag
}

// WriteOpKind discriminates WriteOp.
type WriteOpKind int

const (
	WriteOpDeletion WriteOpKind = iota
	WriteOpValue
)

// WriteOp is either a deletion or a value write carrying raw bytes.
type WriteOp struct {
	Kind  WriteOpKind
	Value []byte
}

// Helper constructors, used pervasively by the replay driver and tests.

func TagBool() TypeTag    { return TypeTag{Kind: TypeTagBool} }
func TagU8() TypeTag      { return TypeTag{Kind: TypeTagU8} }
func TagU64() TypeTag     { return TypeTag{Kind: TypeTagU64} }
func TagU128() TypeTag    { return TypeTag{Kind: TypeTagU128} }
func TagAddress() TypeTag { return TypeTag{Kind: TypeTagAddress} }
func TagSigner() TypeTag  { return TypeTag{Kind: TypeTagSigner} }

func TagVector(elem TypeTag) TypeTag {
	e := elem
	return TypeTag{Kind: TypeTagVector, Vector: &e}
}

func TagStruct(s StructTag) TypeTag {
	return TypeTag{Kind: TypeTagStruct, Struct: &s}
}
