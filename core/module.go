package core

import (
	"fmt"

	"github.com/iotaledger/bcs-go"
)

// SignatureToken is the compiled-module signature vocabulary from spec.md
// §4.2: primitives, Vector, Struct/StructInstantiation, TypeParameter, and
// the two reference kinds that are legal in a function signature but must
// never reach persisted storage. Modeled as a pointer-per-variant struct
// (the same BCS-enum idiom the Sui SDK reference file uses for CallArg/
// Argument) so bcs-go can encode/decode the static module record without a
// hand-rolled switch at the wire layer.
type SignatureToken struct {
	Bool                *struct{}
	U8                  *struct{}
	U64                 *struct{}
	U128                *struct{}
	Address             *struct{}
	Signer              *struct{}
	Reference           *SignatureToken
	MutableReference    *SignatureToken
	Vector              *SignatureToken
	Struct              *StructHandleIndex
	StructInstantiation *StructInstantiation
	TypeParameter       *uint16
}

func (SignatureToken) IsBcsEnum() {}

// StructInstantiation pairs a struct handle with its concrete type-argument
// signatures — the StructInstantiation(handle, args) variant.
type StructInstantiation struct {
	Handle StructHandleIndex
	Args   []SignatureToken
}

// StructHandleIndex references a StructHandle within the owning module's
// handle table.
type StructHandleIndex uint16

// StructDefinitionIndex references a StructDefinition within the owning
// module's definition table.
type StructDefinitionIndex uint16

// ModuleHandleIndex references a ModuleHandle within the owning module's
// handle table — used to find the module that actually declares a struct
// referenced by handle.
type ModuleHandleIndex uint16

// ModuleHandle names a module by (address-identifier index, name index)
// into the module's own identifier/address pools, mirroring the compiled
// bytecode format this repo stands in for.
type ModuleHandle struct {
	Address ModuleHandleIndex // index into Module.AddressIdentifiers
	Name    ModuleHandleIndex // index into Module.Identifiers
}

// StructHandle declares a struct's name and owning module without its
// field layout — field layout lives in the matching StructDefinition.
type StructHandle struct {
	Module            ModuleHandleIndex
	Name              ModuleHandleIndex // index into Module.Identifiers
	IsNominalResource bool
	TypeParameters    []bool // length = arity; bool payload is unused, arity is what matters
}

// FieldDefinition is one declared field of a struct: a name index plus its
// signature.
type FieldDefinition struct {
	Name      ModuleHandleIndex // index into Module.Identifiers
	Signature SignatureToken
}

// StructDefinition is the field layout for a struct named by StructHandle.
// Native structs (no declared field list) are out of scope for this
// replayer and are rejected at resolve time.
type StructDefinition struct {
	StructHandle StructHandleIndex
	Fields       []FieldDefinition // nil means native
}

// CompiledModule is the structural representation of an on-chain compiled
// module this repo works with: just enough of the real bytecode format
// (identifier/address pools, struct handles, struct definitions) to drive
// the Resolver's signature-vocabulary walk in spec.md §4.2. It is not a
// general bytecode verifier or interpreter — execution is an external
// collaborator per spec.md §1.
type CompiledModule struct {
	SelfAddress        Address
	SelfName           Identifier
	Identifiers        []Identifier
	AddressIdentifiers []Address
	ModuleHandles      []ModuleHandle
	StructHandles      []StructHandle
	StructDefs         []StructDefinition
}

func (m *CompiledModule) Address() Address     { return m.SelfAddress }
func (m *CompiledModule) Name() Identifier     { return m.SelfName }
func (m *CompiledModule) SelfID() ModuleID      { return ModuleID{Address: m.SelfAddress, Name: m.SelfName} }

func (m *CompiledModule) IdentifierAt(idx ModuleHandleIndex) Identifier {
	return m.Identifiers[idx]
}

func (m *CompiledModule) AddressIdentifierAt(idx ModuleHandleIndex) Address {
	return m.AddressIdentifiers[idx]
}

func (m *CompiledModule) ModuleHandleAt(idx ModuleHandleIndex) ModuleHandle {
	return m.ModuleHandles[idx]
}

func (m *CompiledModule) StructHandleAt(idx StructHandleIndex) StructHandle {
	return m.StructHandles[idx]
}

func (m *CompiledModule) StructDefAt(idx StructDefinitionIndex) StructDefinition {
	return m.StructDefs[idx]
}

// MarshalModule encodes a compiled module to its on-disk BCS form. This is
// the one place a reflection-based BCS library is the right tool: the
// shape of CompiledModule is fixed at compile time, unlike the Annotator's
// runtime-computed value trees (see core/value.go).
func MarshalModule(m *CompiledModule) ([]byte, error) {
	b, err := bcs.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal module %s: %w", m.SelfID(), err)
	}
	return b, nil
}

// UnmarshalModule decodes bytes produced by MarshalModule.
func UnmarshalModule(data []byte) (*CompiledModule, error) {
	var m CompiledModule
	if err := bcs.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: unmarshal module: %v", ErrDeserializationError, err)
	}
	return &m, nil
}

// FindStructDefInModule linearly scans a module's struct definitions for
// one whose handle's name matches. Mirrors the original's
// find_struct_def_in_module — modules are small enough in practice that a
// name index is not worth maintaining incrementally.
func FindStructDefInModule(m *CompiledModule, name Identifier) (StructDefinitionIndex, error) {
	for i, def := range m.StructDefs {
		handle := m.StructHandleAt(def.StructHandle)
		if m.IdentifierAt(handle.Name) == name {
			return StructDefinitionIndex(i), nil
		}
	}
	return 0, fmt.Errorf("%w: struct %s not found in %s", ErrStructNotFound, name, m.SelfID())
}
