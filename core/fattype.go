package core

import "fmt"

// FatTypeKind discriminates FatType. Structurally identical to TypeTag
// except Struct carries a fully-expanded FatStructType and an extra
// TyParam variant used only during intermediate resolution — a fully
// resolved type contains no TyParam.
type FatTypeKind int

const (
	FatBool FatTypeKind = iota
	FatU8
	FatU64
	FatU128
	FatAddress
	FatVector
	FatStruct
	FatTyParam
)

// FatType is a resolved type: TypeTag plus an expanded struct body and an
// intermediate TyParam placeholder.
type FatType struct {
	Kind    FatTypeKind
	Vector  *FatType
	Struct  *FatStructType
	TyParam int // valid iff Kind == FatTyParam
}

// FatStructType is a fully expanded struct definition: address, module,
// name, resource flag, the type arguments this instantiation was built
// with, and an ordered field list. Field order is significant for binary
// layout.
type FatStructType struct {
	Address    Address
	Module     Identifier
	Name       Identifier
	IsResource bool
	TyArgs     []FatType
	Fields     []FatField
}

// FatField is one (name, type) pair of a FatStructType, kept ordered.
type FatField struct {
	Name Identifier
	Type FatType
}

// Subst replaces every TyParam(i) leaf in ty with tyArgs[i]. Returns
// ErrSubstitutionError if an index is out of range.
func (ty FatType) Subst(tyArgs []FatType) (FatType, error) {
	switch ty.Kind {
	case FatTyParam:
		if ty.TyParam < 0 || ty.TyParam >= len(tyArgs) {
			return FatType{}, fmt.Errorf("%w: index out of bounds -- len %d got %d", ErrSubstitutionError, len(tyArgs), ty.TyParam)
		}
		return tyArgs[ty.TyParam], nil
	case FatVector:
		inner, err := ty.Vector.Subst(tyArgs)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatVector, Vector: &inner}, nil
	case FatStruct:
		sub, err := ty.Struct.Subst(tyArgs)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatStruct, Struct: &sub}, nil
	default:
		return ty, nil
	}
}

// Subst applies tyArgs to every type-argument and field of the struct,
// leaving address/module/name/is_resource untouched.
func (s FatStructType) Subst(tyArgs []FatType) (FatStructType, error) {
	out := FatStructType{
		Address:    s.Address,
		Module:     s.Module,
		Name:       s.Name,
		IsResource: s.IsResource,
		TyArgs:     make([]FatType, len(s.TyArgs)),
		Fields:     make([]FatField, len(s.Fields)),
	}
	for i, t := range s.TyArgs {
		sub, err := t.Subst(tyArgs)
		if err != nil {
			return FatStructType{}, err
		}
		out.TyArgs[i] = sub
	}
	for i, f := range s.Fields {
		sub, err := f.Type.Subst(tyArgs)
		if err != nil {
			return FatStructType{}, err
		}
		out.Fields[i] = FatField{Name: f.Name, Type: sub}
	}
	return out, nil
}

// StructTag converts a fully resolved struct back to its user-visible
// identity. Errors if any type argument still carries a TyParam (i.e. the
// struct was never fully substituted).
func (s FatStructType) StructTag() (StructTag, error) {
	params := make([]TypeTag, len(s.TyArgs))
	for i, t := range s.TyArgs {
		tag, err := t.TypeTag()
		if err != nil {
			return StructTag{}, err
		}
		params[i] = tag
	}
	return StructTag{Address: s.Address, Module: s.Module, Name: s.Name, TypeParams: params}, nil
}

// TypeTag converts a fully resolved type back to a TypeTag. Errors on
// TyParam, which has no TypeTag representation.
func (ty FatType) TypeTag() (TypeTag, error) {
	switch ty.Kind {
	case FatBool:
		return TagBool(), nil
	case FatU8:
		return TagU8(), nil
	case FatU64:
		return TagU64(), nil
	case FatU128:
		return TagU128(), nil
	case FatAddress:
		return TagAddress(), nil
	case FatVector:
		inner, err := ty.Vector.TypeTag()
		if err != nil {
			return TypeTag{}, err
		}
		return TagVector(inner), nil
	case FatStruct:
		tag, err := ty.Struct.StructTag()
		if err != nil {
			return TypeTag{}, err
		}
		return TagStruct(tag), nil
	default:
		return TypeTag{}, fmt.Errorf("cannot derive type tag for %v", ty)
	}
}

func FatTyParam(idx int) FatType { return FatType{Kind: FatTyParam, TyParam: idx} }

func (ty FatType) String() string {
	switch ty.Kind {
	case FatBool:
		return "bool"
	case FatU8:
		return "u8"
	case FatU64:
		return "u64"
	case FatU128:
		return "u128"
	case FatAddress:
		return "address"
	case FatVector:
		return "vector<" + ty.Vector.String() + ">"
	case FatStruct:
		tag, err := ty.Struct.StructTag()
		if err != nil {
			return fmt.Sprintf("%s::%s<?>", ty.Struct.Module, ty.Struct.Name)
		}
		return tag.String()
	case FatTyParam:
		return fmt.Sprintf("T%d", ty.TyParam)
	default:
		return "?"
	}
}
