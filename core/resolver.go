package core

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Resolver turns a StructTag/TypeTag into a fully-substituted
// FatStructType/FatType, memoizing decoded modules across the lifetime of
// a replay session. Grounded on original_source/src/resolver.rs, with the
// RefCell<HashMap<ModuleId, Rc<CompiledModule>>> cache realized as a
// sync.RWMutex-guarded map per the concurrency model in spec.md §5 and
// SPEC_FULL.md §1 — Go has no async/await, so the original's mutually
// recursive awaiting functions become plain recursive calls.
type Resolver struct {
	store  *ModuleStore
	logger *logrus.Logger

	mu    sync.RWMutex
	cache map[ModuleID]*CompiledModule
}

// NewResolver wires a Resolver over a ModuleStore with an empty cache.
func NewResolver(store *ModuleStore, lg *logrus.Logger) *Resolver {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Resolver{store: store, logger: lg, cache: make(map[ModuleID]*CompiledModule)}
}

// NewResolverFromGenesisWriteSet pre-populates the cache by scanning a
// write-set for Code(module-id) entries and decoding each — needed only
// when resolving the genesis transaction, which references modules not
// yet durably published. Mirrors
// Resolver::from_pool_and_genesis_write_set.
func NewResolverFromGenesisWriteSet(store *ModuleStore, lg *logrus.Logger, entries []WriteSetEntry) (*Resolver, error) {
	r := NewResolver(store, lg)
	for _, e := range entries {
		if e.Path.Code == nil || e.Op.Kind != WriteOpValue {
			continue
		}
		mod, err := UnmarshalModule(e.Op.Value)
		if err != nil {
			return nil, fmt.Errorf("genesis bootstrap: %w", err)
		}
		r.cache[*e.Path.Code] = mod
	}
	return r, nil
}

// WriteSetEntry is one (access-path, write-op) pair as consumed by the
// Replay Driver (§4.6) and used here only for genesis bootstrap.
type WriteSetEntry struct {
	Path AccessPathKind
	Op   WriteOp
}

// GetModule fetches a compiled module by id, consulting the cache first.
// Cache misses serialize behind the load per spec.md §5's shared-resource
// discipline (exclusive-write/shared-read). q is the connection or
// in-flight transaction to use on a miss, so resolution performed while
// applying a block's write-set stays inside that block's transaction.
func (r *Resolver) GetModule(q querier, address Address, name Identifier) (*CompiledModule, error) {
	id := ModuleID{Address: address, Name: name}

	r.mu.RLock()
	if m, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.cache[id]; ok {
		return m, nil
	}

	data, ok, err := r.store.Get(q, address, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	mod, err := UnmarshalModule(data)
	if err != nil {
		return nil, fmt.Errorf("module %s failed deserialization: %w", id, err)
	}

	r.cache[id] = mod
	return mod, nil
}

// ResolveType resolves a TypeTag into a FatType. Signer fails with
// ErrInvalidStorageType; all other tags recurse.
func (r *Resolver) ResolveType(q querier, tag TypeTag) (FatType, error) {
	switch tag.Kind {
	case TypeTagAddress:
		return FatType{Kind: FatAddress}, nil
	case TypeTagSigner:
		return FatType{}, fmt.Errorf("%w: cannot resolve Signer types", ErrInvalidStorageType)
	case TypeTagBool:
		return FatType{Kind: FatBool}, nil
	case TypeTagU8:
		return FatType{Kind: FatU8}, nil
	case TypeTagU64:
		return FatType{Kind: FatU64}, nil
	case TypeTagU128:
		return FatType{Kind: FatU128}, nil
	case TypeTagVector:
		inner, err := r.ResolveType(q, *tag.Vector)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatVector, Vector: &inner}, nil
	case TypeTagStruct:
		st, err := r.ResolveStruct(q, *tag.Struct)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatStruct, Struct: &st}, nil
	default:
		return FatType{}, fmt.Errorf("unknown type tag kind %d", tag.Kind)
	}
}

// ResolveStruct produces a fully substituted FatStructType given a
// StructTag:
//  1. fetch the compiled module,
//  2. find the struct definition by name,
//  3. resolve the struct body under the empty (TyParam-leaving)
//     substitution,
//  4. resolve each type argument of the tag,
//  5. substitute TyParam(i) leaves with the resolved arguments.
func (r *Resolver) ResolveStruct(q querier, tag StructTag) (FatStructType, error) {
	module, err := r.GetModule(q, tag.Address, tag.Module)
	if err != nil {
		return FatStructType{}, err
	}
	defIdx, err := FindStructDefInModule(module, tag.Name)
	if err != nil {
		return FatStructType{}, err
	}
	tyArgs := make([]FatType, len(tag.TypeParams))
	for i, t := range tag.TypeParams {
		resolved, err := r.ResolveType(q, t)
		if err != nil {
			return FatStructType{}, err
		}
		tyArgs[i] = resolved
	}
	body, err := r.resolveStructDefinition(q, module, defIdx)
	if err != nil {
		return FatStructType{}, err
	}
	substituted, err := body.Subst(tyArgs)
	if err != nil {
		return FatStructType{}, fmt.Errorf("struct %s cannot be resolved: %w", tag, err)
	}
	return substituted, nil
}

// resolveSignature maps the compiled-module signature vocabulary per
// spec.md §4.2: primitives unchanged; Vector recurses; Struct/
// StructInstantiation look up the target module and recurse on its
// definition; TypeParameter becomes a TyParam leaf; Reference/
// MutableReference and Signer are errors — they must never reach a
// persisted field.
func (r *Resolver) resolveSignature(q querier, module *CompiledModule, sig SignatureToken) (FatType, error) {
	switch {
	case sig.Reference != nil || sig.MutableReference != nil:
		return FatType{}, fmt.Errorf("%w", ErrUnexpectedReference)
	case sig.Bool != nil:
		return FatType{Kind: FatBool}, nil
	case sig.U8 != nil:
		return FatType{Kind: FatU8}, nil
	case sig.U64 != nil:
		return FatType{Kind: FatU64}, nil
	case sig.U128 != nil:
		return FatType{Kind: FatU128}, nil
	case sig.Address != nil:
		return FatType{Kind: FatAddress}, nil
	case sig.Signer != nil:
		return FatType{}, fmt.Errorf("%w: unexpected Signer type", ErrInvalidStorageType)
	case sig.Vector != nil:
		inner, err := r.resolveSignature(q, module, *sig.Vector)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatVector, Vector: &inner}, nil
	case sig.Struct != nil:
		st, err := r.resolveStructHandle(q, module, *sig.Struct)
		if err != nil {
			return FatType{}, err
		}
		return FatType{Kind: FatStruct, Struct: &st}, nil
	case sig.StructInstantiation != nil:
		structTy, err := r.resolveStructHandle(q, module, sig.StructInstantiation.Handle)
		if err != nil {
			return FatType{}, err
		}
		args := make([]FatType, len(sig.StructInstantiation.Args))
		for i, tok := range sig.StructInstantiation.Args {
			a, err := r.resolveSignature(q, module, tok)
			if err != nil {
				return FatType{}, err
			}
			args[i] = a
		}
		substituted, err := structTy.Subst(args)
		if err != nil {
			return FatType{}, fmt.Errorf("substitution failure: %w", err)
		}
		return FatType{Kind: FatStruct, Struct: &substituted}, nil
	case sig.TypeParameter != nil:
		return FatTyParam(int(*sig.TypeParameter)), nil
	default:
		return FatType{}, fmt.Errorf("empty signature token")
	}
}

// resolveStructHandle follows a StructHandleIndex to its owning module
// (which may differ from the caller's module — this is the module-graph
// edge that can form a cycle, safely terminated by the memoizing cache)
// and resolves the struct there.
func (r *Resolver) resolveStructHandle(q querier, module *CompiledModule, idx StructHandleIndex) (FatStructType, error) {
	handle := module.StructHandleAt(idx)
	moduleHandle := module.ModuleHandleAt(handle.Module)
	targetAddress := module.AddressIdentifierAt(moduleHandle.Address)
	targetName := module.IdentifierAt(moduleHandle.Name)

	target, err := r.GetModule(q, targetAddress, targetName)
	if err != nil {
		return FatStructType{}, err
	}
	targetStructName := module.IdentifierAt(handle.Name)
	defIdx, err := FindStructDefInModule(target, targetStructName)
	if err != nil {
		return FatStructType{}, err
	}
	return r.resolveStructDefinition(q, target, defIdx)
}

// resolveStructDefinition builds a FatStructType with TyParam(i) leaves
// (i.e. unsubstituted) from a struct's declared field signatures.
func (r *Resolver) resolveStructDefinition(q querier, module *CompiledModule, idx StructDefinitionIndex) (FatStructType, error) {
	def := module.StructDefAt(idx)
	handle := module.StructHandleAt(def.StructHandle)
	name := module.IdentifierAt(handle.Name)

	if def.Fields == nil {
		return FatStructType{}, fmt.Errorf("unexpected native struct %s", name)
	}

	tyArgs := make([]FatType, len(handle.TypeParameters))
	for i := range tyArgs {
		tyArgs[i] = FatTyParam(i)
	}

	fields := make([]FatField, len(def.Fields))
	for i, fd := range def.Fields {
		fieldName := module.IdentifierAt(fd.Name)
		ty, err := r.resolveSignature(q, module, fd.Signature)
		if err != nil {
			return FatStructType{}, err
		}
		fields[i] = FatField{Name: fieldName, Type: ty}
	}

	return FatStructType{
		Address:    module.Address(),
		Module:     module.Name(),
		Name:       name,
		IsResource: handle.IsNominalResource,
		TyArgs:     tyArgs,
		Fields:     fields,
	}, nil
}
