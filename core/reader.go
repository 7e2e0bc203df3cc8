package core

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Reader is the Value Materializer (§4.5): the inverse of Writer, walking
// a struct's row (and any side tables) back into a MoveValue tree under a
// caller-supplied resolved type. Grounded on
// original_source/src/db.rs's fetch_struct/fetch_vector/struct_columns.
type Reader struct {
	resolver *Resolver
	logger   *zap.SugaredLogger
}

// NewReader wires a Reader over a Resolver, used to resolve nested struct
// field types while walking a row.
func NewReader(resolver *Resolver) *Reader {
	return &Reader{resolver: resolver, logger: zap.L().Sugar()}
}

// FetchStruct reconstructs the MoveValue tree stored at row id in tag's
// table, resolving tag to learn the field layout.
func (rd *Reader) FetchStruct(q querier, tag StructTag, id int64) (MoveValue, error) {
	ty, err := rd.resolver.ResolveStruct(q, tag)
	if err != nil {
		return MoveValue{}, err
	}
	return rd.fetchStructTyped(q, ty, id)
}

// fetchStructTyped does the actual row read once the layout is known,
// letting nested struct fields recurse without re-resolving their tag.
func (rd *Reader) fetchStructTyped(q querier, ty FatStructType, id int64) (MoveValue, error) {
	tag, err := ty.StructTag()
	if err != nil {
		return MoveValue{}, err
	}
	table := TagToTable(tag)

	columns, err := structColumns(ty.Fields)
	if err != nil {
		return MoveValue{}, err
	}
	if len(columns) == 0 {
		var exists int64
		if err := q.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE __id = ?", table), id).Scan(&exists); err != nil {
			return MoveValue{}, fmt.Errorf("%w: fetch %s row %d: %v", ErrDatabaseError, table, id, err)
		}
		if len(ty.Fields) == 0 {
			return MVStructVal(nil), nil
		}
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = string(c.name)
	}
	scanArgs := make([]any, len(columns))
	scanDest := make([]sql.RawBytes, len(columns))
	for i := range columns {
		scanArgs[i] = &scanDest[i]
	}

	if len(columns) > 0 {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE __id = ?", joinColumns(names), table)
		if err := q.QueryRow(query, id).Scan(scanArgs...); err != nil {
			return MoveValue{}, fmt.Errorf("%w: fetch %s row %d: %v", ErrDatabaseError, table, id, err)
		}
	}

	fields := make([]MoveValue, len(ty.Fields))
	ci := 0
	for fi, f := range ty.Fields {
		if needsElementTable(f.Type) {
			elemTag, err := f.Type.Vector.TypeTag()
			if err != nil {
				return MoveValue{}, err
			}
			v, err := rd.fetchVector(q, tag, f.Name, id, elemTag, *f.Type.Vector)
			if err != nil {
				return MoveValue{}, err
			}
			fields[fi] = v
			continue
		}
		v, err := decodeColumn(f.Type, scanDest[ci], rd, q)
		if err != nil {
			return MoveValue{}, err
		}
		fields[fi] = v
		ci++
	}
	return MVStructVal(fields), nil
}

type column struct {
	name Identifier
	ty   FatType
}

// structColumns decides which fields get an inline column (scalars,
// Bytes-hoisted Vector<U8>, Struct foreign keys, primitive vectors) versus
// which are materialized entirely out of a side table (needsElementTable),
// mirroring original_source/src/db.rs's struct_columns filter.
func structColumns(fields []FatField) ([]column, error) {
	var cols []column
	for _, f := range fields {
		if needsElementTable(f.Type) {
			continue
		}
		cols = append(cols, column{name: f.Name, ty: f.Type})
	}
	return cols, nil
}

// needsElementTable reports whether field type ty is a non-primitive
// vector materialized via a side table rather than an inline column.
func needsElementTable(ty FatType) bool {
	if ty.Kind != FatVector {
		return false
	}
	switch ty.Vector.Kind {
	case FatBool, FatU8, FatU64, FatU128:
		return false
	default:
		return true
	}
}

func decodeColumn(ty FatType, raw sql.RawBytes, rd *Reader, q querier) (MoveValue, error) {
	switch ty.Kind {
	case FatBool:
		// A BOOLEAN column scans as "true"/"false" (driver bool) or as
		// "1"/"0" (plain integer), depending on the declared column type.
		return MVBoolVal(len(raw) > 0 && raw[0] != '0' && raw[0] != 'f'), nil
	case FatU8:
		if len(raw) == 0 {
			return MoveValue{}, fmt.Errorf("%w: empty u8 column", ErrDatabaseError)
		}
		return MVU8Val(uint8(parseColumnInt(raw))), nil
	case FatU64:
		return MVU64Val(uint64(parseColumnInt(raw))), nil
	case FatU128:
		return MVU128Val(u128FromBytesBE(raw)), nil
	case FatAddress:
		addr, err := NewAddress(raw)
		if err != nil {
			return MoveValue{}, err
		}
		return MVAddressVal(addr), nil
	case FatVector:
		// Only reached for primitive-element vectors (Bytes-hoisted
		// Vector<U8> or an inline packed Bool/U64/U128 vector): decode the
		// BLOB using the same per-element width as vectorToBytes wrote.
		return decodePackedVector(*ty.Vector, raw)
	case FatStruct:
		childID := parseColumnInt(raw)
		return rd.fetchStructTyped(q, *ty.Struct, childID)
	default:
		return MoveValue{}, fmt.Errorf("%w: cannot decode column of type %v", ErrInternalTypeMismatch, ty)
	}
}

func parseColumnInt(raw sql.RawBytes) int64 {
	// mattn/go-sqlite3 returns INTEGER columns as text in RawBytes scans;
	// parse defensively rather than assume a fixed width.
	var v int64
	for _, b := range raw {
		if b == '-' {
			continue
		}
		v = v*10 + int64(b-'0')
	}
	if len(raw) > 0 && raw[0] == '-' {
		v = -v
	}
	return v
}

func decodePackedVector(elemTy FatType, raw []byte) (MoveValue, error) {
	if elemTy.Kind == FatU8 {
		elems := make([]MoveValue, len(raw))
		for i, b := range raw {
			elems[i] = MVU8Val(b)
		}
		return MVVectorVal(elems), nil
	}
	var width int
	switch elemTy.Kind {
	case FatBool:
		width = 1
	case FatU64:
		width = 8
	case FatU128:
		width = 16
	default:
		return MoveValue{}, fmt.Errorf("%w: unexpected packed vector element type", ErrInternalTypeMismatch)
	}
	if len(raw)%width != 0 {
		return MoveValue{}, fmt.Errorf("%w: packed vector length not a multiple of element width", ErrDatabaseError)
	}
	n := len(raw) / width
	elems := make([]MoveValue, n)
	for i := 0; i < n; i++ {
		slot := raw[i*width : (i+1)*width]
		v, _, err := decodeAt(append(append([]byte{}, reverseIfNeeded(elemTy, slot)...)), 0, elemTy)
		if err != nil {
			return MoveValue{}, err
		}
		elems[i] = v
	}
	return MVVectorVal(elems), nil
}

// reverseIfNeeded adapts a big-endian storage slot back to the
// little-endian layout decodeAt expects for multi-byte scalars; Bool is
// single-byte and unaffected.
func reverseIfNeeded(ty FatType, slot []byte) []byte {
	if ty.Kind == FatBool {
		return slot
	}
	out := make([]byte, len(slot))
	for i := range slot {
		out[i] = slot[len(slot)-1-i]
	}
	return out
}

// fetchVector reconstructs a non-primitive vector field from its side
// table, ordered by the table's own row id (insertion order), per
// original_source/src/db.rs's fetch_vector.
func (rd *Reader) fetchVector(q querier, tag StructTag, field Identifier, parentID int64, elemTag TypeTag, elemFatTy FatType) (MoveValue, error) {
	name := VectorTableName(tag, field)
	rows, err := q.Query(fmt.Sprintf("SELECT slot FROM %s WHERE parent_id = ? ORDER BY id", name), parentID)
	if err != nil {
		return MoveValue{}, fmt.Errorf("%w: fetch vector table %s: %v", ErrDatabaseError, name, err)
	}
	defer rows.Close()

	var elems []MoveValue
	for rows.Next() {
		var slot sql.RawBytes
		if err := rows.Scan(&slot); err != nil {
			return MoveValue{}, fmt.Errorf("%w: scan vector table %s: %v", ErrDatabaseError, name, err)
		}
		switch elemTag.Kind {
		case TypeTagAddress:
			addr, err := NewAddress(slot)
			if err != nil {
				return MoveValue{}, err
			}
			elems = append(elems, MVAddressVal(addr))
		case TypeTagVector:
			if elemTag.Vector.Kind != TypeTagU8 {
				return MoveValue{}, fmt.Errorf("%w: vector of vector read", ErrNotImplemented)
			}
			bytesCopy := append([]byte(nil), slot...)
			inner := make([]MoveValue, len(bytesCopy))
			for i, b := range bytesCopy {
				inner[i] = MVU8Val(b)
			}
			elems = append(elems, MVVectorVal(inner))
		case TypeTagStruct:
			childID := parseColumnInt(slot)
			v, err := rd.fetchStructTyped(q, *elemFatTy.Struct, childID)
			if err != nil {
				return MoveValue{}, err
			}
			elems = append(elems, v)
		default:
			return MoveValue{}, fmt.Errorf("%w: unexpected vector element type in side table", ErrInternalTypeMismatch)
		}
	}
	if err := rows.Err(); err != nil {
		return MoveValue{}, fmt.Errorf("%w: iterate vector table %s: %v", ErrDatabaseError, name, err)
	}
	return MVVectorVal(elems), nil
}

func joinColumns(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
