package main

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	core "movesqlize/core"
)

// SchemaService answers read-only queries against a replayed movesqlize
// database: the live table catalogue and resource/module lookups, in the
// spirit of original_source/src/state.rs's SqlState read path but exposed
// over HTTP instead of only through the VM's StateView callback.
type SchemaService struct {
	db       *sql.DB
	store    *core.ModuleStore
	resolver *core.Resolver
	reader   *core.Reader
}

// NewSchemaService wires a SchemaService over an already-open database.
func NewSchemaService(db *sql.DB, store *core.ModuleStore, resolver *core.Resolver, reader *core.Reader) *SchemaService {
	return &SchemaService{db: db, store: store, resolver: resolver, reader: reader}
}

// TableInfo describes one table in the generated schema.
type TableInfo struct {
	Name string `yaml:"name" json:"name"`
	DDL  string `yaml:"ddl" json:"ddl"`
}

// Tables lists every table movesqlize created, excluding sqlite's own
// bookkeeping tables.
func (s *SchemaService) Tables() ([]TableInfo, error) {
	rows, err := s.db.Query(`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.DDL); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TableRows returns up to limit raw rows from table, in column-name ->
// display-string form. This is a fixed, parameterized statement against an
// identifier already known to exist in sqlite_master — not a general query
// language (spec.md §1 Non-goals).
func (s *SchemaService) TableRows(table string, limit int) ([]map[string]any, error) {
	if !s.tableExists(table) {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT ?", table), limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(cols))
		raw := make([]sql.RawBytes, len(cols))
		for i := range dest {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw[i] == nil {
				rec[c] = nil
			} else {
				rec[c] = string(raw[i])
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SchemaService) tableExists(name string) bool {
	var n int
	_ = s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	return n == 1
}

// Resource looks up the row stored for tag at address (via the
// __root__<tag> mapping table), resolves the struct's type, and returns
// its pretty-printed annotated form.
func (s *SchemaService) Resource(address core.Address, tag core.StructTag) (string, error) {
	root := core.RootTableName(tag)
	if !s.tableExists(root) {
		return "", fmt.Errorf("no resources of type %s have ever been stored", tag)
	}
	var id int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE address = ?", root), address.Bytes()).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no %s resource at %s", tag, address.Short())
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s at %s: %w", tag, address.Short(), err)
	}

	ty, err := s.resolver.ResolveStruct(s.db, tag)
	if err != nil {
		return "", err
	}
	mv, err := s.reader.FetchStruct(s.db, tag, id)
	if err != nil {
		return "", err
	}
	annotator := core.NewAnnotator(s.resolver, nil)
	annotated, err := annotator.AnnotateStruct(mv, ty)
	if err != nil {
		return "", err
	}
	return annotated.String(), nil
}

// Module returns the raw byte length and declared struct names of a
// published module, without exposing the compiled bytes over HTTP.
func (s *SchemaService) Module(address core.Address, name core.Identifier) (map[string]any, error) {
	data, ok, err := s.store.Get(s.db, address, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("module %s::%s not found", address.Short(), name)
	}
	mod, err := core.UnmarshalModule(data)
	if err != nil {
		return nil, fmt.Errorf("decode module %s::%s: %w", address.Short(), name, err)
	}
	names := make([]string, len(mod.StructDefs))
	for i, def := range mod.StructDefs {
		h := mod.StructHandleAt(def.StructHandle)
		names[i] = string(mod.IdentifierAt(h.Name))
	}
	return map[string]any{
		"address": address.Hex(),
		"name":    string(name),
		"bytes":   len(data),
		"structs": names,
	}, nil
}

// Info summarizes the database for the landing page.
func (s *SchemaService) Info() map[string]any {
	tables, _ := s.Tables()
	return map[string]any{
		"tables": len(tables),
	}
}

// ParseAddressHex decodes a "0x"-optional hex string into an Address.
func ParseAddressHex(s string) (core.Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return core.Address{}, fmt.Errorf("bad address hex: %w", err)
	}
	if len(b) < core.AddressLength {
		padded := make([]byte, core.AddressLength)
		copy(padded[core.AddressLength-len(b):], b)
		b = padded
	}
	return core.NewAddress(b)
}
