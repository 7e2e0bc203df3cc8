package core

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// StateView is the VM-facing read interface over a point-in-time ledger
// state: a single Get per access path, with no notion of write. Grounded
// on original_source/src/state.rs's StateView impls for GenesisState/
// SqlState.
type StateView interface {
	Get(path AccessPath) ([]byte, bool, error)
	IsGenesis() bool
}

// GenesisState answers every Get with "absent" — the state the genesis
// transaction executes against, before any module or resource exists.
type GenesisState struct{}

func (GenesisState) Get(AccessPath) ([]byte, bool, error) { return nil, false, nil }
func (GenesisState) IsGenesis() bool                      { return true }

// SqlState reads modules from ModuleStore and resources by resolving,
// fetching, and re-serializing through the Resolver/Reader pair — the
// bytes a VM would receive from the real ledger for a resource read.
type SqlState struct {
	db       *sql.DB
	store    *ModuleStore
	resolver *Resolver
	reader   *Reader
	logger   *zap.SugaredLogger
}

// NewSqlState wires a SqlState over an open database connection and the
// resolver/reader pair used to reconstruct resources.
func NewSqlState(db *sql.DB, store *ModuleStore, resolver *Resolver, reader *Reader) *SqlState {
	return &SqlState{db: db, store: store, resolver: resolver, reader: reader, logger: zap.L().Sugar()}
}

func (s *SqlState) IsGenesis() bool { return false }

// Get dispatches on the access path's kind: Code reads raw module bytes
// straight from the module store; Resource looks up the root mapping,
// fetches the row via the Reader, and re-serializes to canonical bytes.
func (s *SqlState) Get(path AccessPath) ([]byte, bool, error) {
	switch {
	case path.Path.Code != nil:
		return s.store.Get(s.db, path.Path.Code.Address, path.Path.Code.Name)
	case path.Path.Resource != nil:
		return s.getResource(*path.Path.Resource, path.Address)
	default:
		return nil, false, fmt.Errorf("%w: access path carries neither code nor resource", ErrInternalTypeMismatch)
	}
}

func (s *SqlState) getResource(tag StructTag, address Address) ([]byte, bool, error) {
	root := RootTableName(tag)
	var id int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE address = ?", root), address.Bytes()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: lookup root row %s: %v", ErrDatabaseError, root, err)
	}

	ty, err := s.resolver.ResolveStruct(s.db, tag)
	if err != nil {
		return nil, false, err
	}
	mv, err := s.reader.fetchStructTyped(s.db, ty, id)
	if err != nil {
		return nil, false, err
	}
	bytes, err := SerializeStruct(mv, ty)
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

// MultiGet calls Get once per path; there is no batched SQL path.
func (s *SqlState) MultiGet(paths []AccessPath) ([][]byte, []bool, error) {
	values := make([][]byte, len(paths))
	found := make([]bool, len(paths))
	for i, p := range paths {
		v, ok, err := s.Get(p)
		if err != nil {
			return nil, nil, err
		}
		values[i] = v
		found[i] = ok
	}
	return values, found, nil
}
