package core

import "strings"

// TagToTable is the deterministic, injective function
// tag_to_table(StructTag) -> string from spec.md §4.4.1:
//
//	x<short-address>__<module>__<name>[__t_<ty_args_joined>_t]
//
// Grounded directly on original_source/src/db.rs's struct_tag_to_sql.
func TagToTable(tag StructTag) string {
	var b strings.Builder
	b.WriteString("x")
	b.WriteString(tag.Address.Short())
	b.WriteString("__")
	b.WriteString(string(tag.Module))
	b.WriteString("__")
	b.WriteString(string(tag.Name))
	if len(tag.TypeParams) > 0 {
		b.WriteString("__t_")
		b.WriteString(typeParamsToSQL(tag.TypeParams))
		b.WriteString("_t")
	}
	return b.String()
}

// typeParamToSQL renders one type tag as it appears inside a table name:
// primitives map to their bare names, Vector becomes
// Vector__t_<inner>_t, Struct recursively expands via TagToTable. Signer
// never appears here — it is rejected earlier, at resolution time.
func typeParamToSQL(t TypeTag) string {
	switch t.Kind {
	case TypeTagBool:
		return "Bool"
	case TypeTagU8:
		return "U8"
	case TypeTagU64:
		return "U64"
	case TypeTagU128:
		return "U128"
	case TypeTagAddress:
		return "Address"
	case TypeTagVector:
		return "Vector__t_" + typeParamToSQL(*t.Vector) + "_t"
	case TypeTagStruct:
		return TagToTable(*t.Struct)
	default:
		return "?"
	}
}

func typeParamsToSQL(params []TypeTag) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = typeParamToSQL(p)
	}
	return strings.Join(parts, "__")
}

// RootTableName is __root__<tag>, the address -> row-id mapping for a
// struct's root resource rows.
func RootTableName(tag StructTag) string {
	return "__root__" + TagToTable(tag)
}

// VectorTableName is <tag>__<field>__elements, the side table for a
// non-primitive vector field.
func VectorTableName(tag StructTag, field Identifier) string {
	return TagToTable(tag) + "__" + string(field) + "__elements"
}
