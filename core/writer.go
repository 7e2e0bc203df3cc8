package core

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every writer/
// reader method accept either an ambient connection or a block-scoped
// transaction — the concurrency model in spec.md §5 asks for one block's
// writes wrapped in a single transaction, without requiring every call
// site to special-case it.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Writer is the Schema Projector (§4.4): it traverses an annotated value,
// creates or reuses tables, inserts rows, and emits diffs on update.
//
// The created-tables cache lives on this struct rather than behind a
// package-level singleton, per the §9 "re-architect as an explicit
// handle" design note — grounded on core/contracts.go's
// InitContracts/GetContractRegistry pattern, generalized away from the
// process-wide sync.Once the teacher used.
type Writer struct {
	resolver  *Resolver
	annotator *Annotator
	reader    *Reader

	mu         sync.Mutex
	tableCache map[string]struct{}

	logger *zap.SugaredLogger
}

// NewWriter wires a Writer. Unlike ModuleStore/Resolver, Writer takes no
// explicit logger argument — it reaches for the package-level zap logger,
// matching the mixed-logger texture of core/storage.go's
// CreateListing/OpenDeal/Release alongside its logrus-carrying Storage
// struct.
func NewWriter(resolver *Resolver, annotator *Annotator, reader *Reader) *Writer {
	return &Writer{
		resolver:   resolver,
		annotator:  annotator,
		reader:     reader,
		tableCache: make(map[string]struct{}),
		logger:     zap.L().Sugar(),
	}
}

// Store implements §4.4.4/§4.4.5: insert on first sighting of
// (address, tag), diff on subsequent stores.
func (w *Writer) Store(q querier, address Address, tag StructTag, value AnnotatedStruct) error {
	root := RootTableName(tag)
	if err := w.ensureTable(q, root, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (address BLOB UNIQUE NOT NULL, id INTEGER NOT NULL)", root)); err != nil {
		return err
	}

	var existingID int64
	err := q.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE address = ?", root), address.Bytes()).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		id, err := w.structToSQL(q, value)
		if err != nil {
			return err
		}
		if _, err := q.Exec(fmt.Sprintf("INSERT INTO %s (address, id) VALUES (?, ?)", root), address.Bytes(), id); err != nil {
			return fmt.Errorf("%w: insert root row %s: %v", ErrDatabaseError, root, err)
		}
		w.logger.Infof("writer: stored new resource %s at %s (id=%d)", tag, address.Short(), id)
		return nil
	case err != nil:
		return fmt.Errorf("%w: lookup root row %s: %v", ErrDatabaseError, root, err)
	default:
		resolved, err := w.resolver.ResolveStruct(q, tag)
		if err != nil {
			return err
		}
		oldMV, err := w.reader.FetchStruct(q, tag, existingID)
		if err != nil {
			return err
		}
		oldAnnotated, err := w.annotator.AnnotateStruct(oldMV, resolved)
		if err != nil {
			return err
		}
		return w.diffStruct(q, tag, existingID, oldAnnotated, value)
	}
}

// Delete removes a resource row and its root-table mapping. Implemented
// straightforwardly per the §9 open-question decision in DESIGN.md.
// Once __root__<tag> exists, deleting an address with no row in it is a
// no-op. If no resource of tag was ever stored, the root table does not
// exist and the lookup fails with ErrDatabaseError.
func (w *Writer) Delete(q querier, address Address, tag StructTag) error {
	root := RootTableName(tag)
	var id int64
	err := q.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE address = ?", root), address.Bytes()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: lookup root row %s: %v", ErrDatabaseError, root, err)
	}
	table := TagToTable(tag)
	if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE __id = ?", table), id); err != nil {
		return fmt.Errorf("%w: delete row %s: %v", ErrDatabaseError, table, err)
	}
	if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE address = ?", root), address.Bytes()); err != nil {
		return fmt.Errorf("%w: delete root mapping %s: %v", ErrDatabaseError, root, err)
	}
	w.logger.Infof("writer: deleted resource %s at %s", tag, address.Short())
	return nil
}

// structToSQL performs the post-order insertion traversal of §4.4.4: child
// structs are written first so their __id populates the parent column,
// then the row itself is inserted, and finally the side tables of
// non-primitive vector fields are filled using the new row's __id.
func (w *Writer) structToSQL(q querier, s AnnotatedStruct) (int64, error) {
	table := TagToTable(s.Tag)

	type pendingVector struct {
		field   Identifier
		elemTag TypeTag
		elems   []AnnotatedValue
	}

	var ddlFields []string
	var names []string
	var args []any
	var vectors []pendingVector

	for _, f := range s.Fields {
		switch f.Value.Kind {
		case AVU8:
			ddlFields = append(ddlFields, fmt.Sprintf("%s INTEGER NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, int64(f.Value.U8))
		case AVU64:
			ddlFields = append(ddlFields, fmt.Sprintf("%s INTEGER NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, int64(f.Value.U64))
		case AVU128:
			ddlFields = append(ddlFields, fmt.Sprintf("%s BLOB NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, u128ToBytesBE(f.Value.U128.U128))
		case AVBool:
			ddlFields = append(ddlFields, fmt.Sprintf("%s BOOLEAN NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, f.Value.Bool)
		case AVAddress:
			ddlFields = append(ddlFields, fmt.Sprintf("%s BLOB NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, f.Value.Address.Bytes())
		case AVBytes:
			ddlFields = append(ddlFields, fmt.Sprintf("%s BLOB NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, f.Value.Bytes)
		case AVStruct:
			childID, err := w.structToSQL(q, *f.Value.Struct)
			if err != nil {
				return 0, err
			}
			ddlFields = append(ddlFields, fmt.Sprintf("%s INTEGER NOT NULL", f.Name))
			names = append(names, string(f.Name))
			args = append(args, childID)
		case AVVector:
			switch f.Value.VectorElem.Kind {
			case TypeTagBool, TypeTagU8, TypeTagU64, TypeTagU128:
				b, err := vectorToBytes(f.Value.Vector)
				if err != nil {
					return 0, err
				}
				ddlFields = append(ddlFields, fmt.Sprintf("%s BLOB NOT NULL", f.Name))
				names = append(names, string(f.Name))
				args = append(args, b)
			case TypeTagSigner:
				return 0, fmt.Errorf("%w", ErrInvalidStorageType)
			default:
				vectors = append(vectors, pendingVector{f.Name, f.Value.VectorElem, f.Value.Vector})
			}
		}
	}

	var id int64
	if len(ddlFields) == 0 {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (__id INTEGER PRIMARY KEY)", table)
		if err := w.ensureTable(q, table, ddl); err != nil {
			return 0, err
		}
		res, err := q.Exec(fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table))
		if err != nil {
			return 0, fmt.Errorf("%w: insert %s: %v", ErrDatabaseError, table, err)
		}
		id, _ = res.LastInsertId()
	} else {
		allFields := append([]string{"__id INTEGER PRIMARY KEY"}, ddlFields...)
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(allFields, ", "))
		if err := w.ensureTable(q, table, ddl); err != nil {
			return 0, err
		}
		placeholders := make([]string, len(names))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
		res, err := q.Exec(insert, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: insert %s: %v", ErrDatabaseError, table, err)
		}
		id, _ = res.LastInsertId()
	}

	for _, v := range vectors {
		if err := w.insertVectorElements(q, s.Tag, v.field, id, v.elemTag, v.elems); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// insertVectorElements populates a non-primitive vector field's side
// table, per §4.4.3. Vector-of-vector (where the inner vector isn't
// Vector<U8>, already hoisted to Bytes by the Annotator) fails with
// ErrNotImplemented, matching the §9 known gap.
func (w *Writer) insertVectorElements(q querier, tag StructTag, field Identifier, parentID int64, elemTag TypeTag, elems []AnnotatedValue) error {
	var colDDL string
	switch elemTag.Kind {
	case TypeTagAddress:
		colDDL = "slot BLOB NOT NULL"
	case TypeTagStruct:
		colDDL = "slot INTEGER NOT NULL"
	case TypeTagVector:
		if elemTag.Vector.Kind == TypeTagU8 {
			colDDL = "slot BLOB NOT NULL"
		} else {
			return fmt.Errorf("%w: vector of vector write", ErrNotImplemented)
		}
	default:
		return fmt.Errorf("%w: unexpected vector element type %v", ErrNotImplemented, elemTag)
	}

	name := VectorTableName(tag, field)
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL, %s)", name, colDDL)
	if err := w.ensureTable(q, name, ddl); err != nil {
		return err
	}

	insert := fmt.Sprintf("INSERT INTO %s (parent_id, slot) VALUES (?, ?)", name)
	for _, e := range elems {
		var slot any
		switch e.Kind {
		case AVAddress:
			slot = e.Address.Bytes()
		case AVBytes:
			slot = e.Bytes
		case AVStruct:
			childID, err := w.structToSQL(q, *e.Struct)
			if err != nil {
				return err
			}
			slot = childID
		case AVVector:
			return fmt.Errorf("%w: vector of vector write", ErrNotImplemented)
		default:
			return fmt.Errorf("%w: unexpected element kind in vector table", ErrInternalTypeMismatch)
		}
		if _, err := q.Exec(insert, parentID, slot); err != nil {
			return fmt.Errorf("%w: insert into %s: %v", ErrDatabaseError, name, err)
		}
	}
	return nil
}

// vectorToBytes concatenates a primitive-element vector's big-endian
// per-element encoding, per the §4.4.2 column-type table.
func vectorToBytes(elems []AnnotatedValue) ([]byte, error) {
	var out bytes.Buffer
	for _, e := range elems {
		switch e.Kind {
		case AVBool:
			if e.Bool {
				out.WriteByte(1)
			} else {
				out.WriteByte(0)
			}
		case AVU8:
			out.WriteByte(e.U8)
		case AVU64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], e.U64)
			out.Write(b[:])
		case AVU128:
			out.Write(u128ToBytesBE(e.U128.U128))
		default:
			return nil, fmt.Errorf("%w: unexpected element in primitive vector", ErrInternalTypeMismatch)
		}
	}
	return out.Bytes(), nil
}

// diffStruct implements §4.4.5: zip old and new field lists, fatal on tag
// mismatch, and for each differing field either append a SET fragment
// (scalars/Bytes/Address/U128 and packed primitive vectors), recurse into
// the child row (Struct), or delete+reinsert the element table
// (non-primitive Vector).
func (w *Writer) diffStruct(q querier, tag StructTag, id int64, old, new AnnotatedStruct) error {
	if !old.Tag.Equal(new.Tag) {
		return fmt.Errorf("%w: %s vs %s", ErrTagMismatch, old.Tag, new.Tag)
	}
	table := TagToTable(tag)

	var setFrags []string
	var args []any

	for i := range new.Fields {
		oldField := old.Fields[i]
		newField := new.Fields[i]
		if annotatedValueEqual(oldField.Value, newField.Value) {
			continue
		}
		switch newField.Value.Kind {
		case AVStruct:
			childID, err := w.readChildID(q, table, string(newField.Name), id)
			if err != nil {
				return err
			}
			if err := w.diffStruct(q, newField.Value.Struct.Tag, childID, *oldField.Value.Struct, *newField.Value.Struct); err != nil {
				return err
			}
		case AVVector:
			switch newField.Value.VectorElem.Kind {
			case TypeTagBool, TypeTagU8, TypeTagU64, TypeTagU128:
				b, err := vectorToBytes(newField.Value.Vector)
				if err != nil {
					return err
				}
				setFrags = append(setFrags, fmt.Sprintf("%s = ?", newField.Name))
				args = append(args, b)
			default:
				vt := VectorTableName(tag, newField.Name)
				if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE parent_id = ?", vt), id); err != nil {
					return fmt.Errorf("%w: clear %s: %v", ErrDatabaseError, vt, err)
				}
				if err := w.insertVectorElements(q, tag, newField.Name, id, newField.Value.VectorElem, newField.Value.Vector); err != nil {
					return err
				}
			}
		default:
			val, err := scalarSQLValue(newField.Value)
			if err != nil {
				return err
			}
			setFrags = append(setFrags, fmt.Sprintf("%s = ?", newField.Name))
			args = append(args, val)
		}
	}

	if len(setFrags) > 0 {
		args = append(args, id)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE __id = ?", table, strings.Join(setFrags, ", "))
		if _, err := q.Exec(stmt, args...); err != nil {
			return fmt.Errorf("%w: update %s: %v", ErrDatabaseError, table, err)
		}
	}
	return nil
}

func scalarSQLValue(v AnnotatedValue) (any, error) {
	switch v.Kind {
	case AVU8:
		return int64(v.U8), nil
	case AVU64:
		return int64(v.U64), nil
	case AVU128:
		return u128ToBytesBE(v.U128.U128), nil
	case AVBool:
		return v.Bool, nil
	case AVAddress:
		return v.Address.Bytes(), nil
	case AVBytes:
		return v.Bytes, nil
	default:
		return nil, fmt.Errorf("%w: not a scalar column value", ErrInternalTypeMismatch)
	}
}

func (w *Writer) readChildID(q querier, table, column string, id int64) (int64, error) {
	var childID int64
	if err := q.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE __id = ?", column, table), id).Scan(&childID); err != nil {
		return 0, fmt.Errorf("%w: read child id %s.%s: %v", ErrDatabaseError, table, column, err)
	}
	return childID, nil
}

func (w *Writer) ensureTable(q querier, name, ddl string) error {
	w.mu.Lock()
	_, cached := w.tableCache[name]
	w.mu.Unlock()
	if cached {
		return nil
	}
	if _, err := q.Exec(ddl); err != nil {
		return fmt.Errorf("%w: create table %s: %v", ErrDatabaseError, name, err)
	}
	w.mu.Lock()
	w.tableCache[name] = struct{}{}
	w.mu.Unlock()
	return nil
}

// annotatedValueEqual is structural equality on annotated values, per
// §4.4.5: U128 compares by value, not by encoded bytes.
func annotatedValueEqual(a, b AnnotatedValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AVBool:
		return a.Bool == b.Bool
	case AVU8:
		return a.U8 == b.U8
	case AVU64:
		return a.U64 == b.U64
	case AVU128:
		return a.U128.U128.Cmp(b.U128.U128) == 0
	case AVAddress:
		return a.Address == b.Address
	case AVBytes:
		return bytes.Equal(a.Bytes, b.Bytes)
	case AVVector:
		if len(a.Vector) != len(b.Vector) {
			return false
		}
		for i := range a.Vector {
			if !annotatedValueEqual(a.Vector[i], b.Vector[i]) {
				return false
			}
		}
		return true
	case AVStruct:
		return annotatedStructEqual(*a.Struct, *b.Struct)
	default:
		return false
	}
}

func annotatedStructEqual(a, b AnnotatedStruct) bool {
	if !a.Tag.Equal(b.Tag) || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if !annotatedValueEqual(a.Fields[i].Value, b.Fields[i].Value) {
			return false
		}
	}
	return true
}
