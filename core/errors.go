package core

import "errors"

// Error kinds from the type-resolution / annotation / projection pipeline.
// Sentinel values are wrapped with fmt.Errorf("%w", ...) at the call site so
// callers can errors.Is against these while the message keeps the offending
// tag/address/column.
var (
	// ErrModuleNotFound is returned when a (address, name) pair has no row
	// in __module.
	ErrModuleNotFound = errors.New("module not found")

	// ErrStructNotFound is returned when a struct name is not declared by
	// the module named in its tag.
	ErrStructNotFound = errors.New("struct not found in module")

	// ErrSubstitutionError is returned when a TyParam index has no matching
	// entry in the substitution list.
	ErrSubstitutionError = errors.New("type parameter substitution out of range")

	// ErrUnexpectedReference is returned when a Reference/MutableReference
	// signature token is encountered while resolving a persisted field.
	ErrUnexpectedReference = errors.New("unexpected reference type in persisted position")

	// ErrInvalidStorageType is returned when a Signer type is encountered
	// while resolving a persisted field or type tag.
	ErrInvalidStorageType = errors.New("signer type is not valid in persisted storage")

	// ErrDeserializationError is returned when bytes cannot be decoded
	// under a resolved layout.
	ErrDeserializationError = errors.New("deserialization error")

	// ErrInternalTypeMismatch indicates a decoded value's shape didn't
	// match the type used to decode it. Should be unreachable.
	ErrInternalTypeMismatch = errors.New("internal type mismatch")

	// ErrTagMismatch is fatal: a diff was attempted across two different
	// StructTags.
	ErrTagMismatch = errors.New("tag mismatch in diff")

	// ErrNotImplemented is fatal: vector-of-vector read or write.
	ErrNotImplemented = errors.New("not implemented")

	// ErrDatabaseError wraps a SQL round-trip failure. Surfaced to the
	// replay driver, which decides whether to retry the block.
	ErrDatabaseError = errors.New("database error")

	// ErrAlreadyPublished is returned by ModuleStore.Put when the
	// (address, name) key already has a row — republishing is not
	// expected at this layer and is preserved as an error per spec.
	ErrAlreadyPublished = errors.New("module already published")
)
