package core

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// walletModule builds a small compiled module with two structs:
//
//	Coin::Balance{ value: u64 }
//	Coin::Wallet{ owner: address, friends: vector<address>, balance: Balance }
//
// exercising scalar columns, an address-vector side table, and a nested
// struct foreign key in one shape.
func walletModule(addr Address) *CompiledModule {
	return &CompiledModule{
		SelfAddress:        addr,
		SelfName:           "Coin",
		Identifiers:        []Identifier{"Coin", "Balance", "value", "Wallet", "owner", "friends", "balance"},
		AddressIdentifiers: []Address{addr},
		ModuleHandles:      []ModuleHandle{{Address: 0, Name: 0}},
		StructHandles: []StructHandle{
			{Module: 0, Name: 1}, // Balance
			{Module: 0, Name: 3, IsNominalResource: true}, // Wallet
		},
		StructDefs: []StructDefinition{
			{StructHandle: 0, Fields: []FieldDefinition{
				{Name: 2, Signature: SignatureToken{U64: &struct{}{}}},
			}},
			{StructHandle: 1, Fields: []FieldDefinition{
				{Name: 4, Signature: SignatureToken{Address: &struct{}{}}},
				{Name: 5, Signature: SignatureToken{Vector: &SignatureToken{Address: &struct{}{}}}},
				{Name: 6, Signature: SignatureToken{Struct: structHandleIndexPtr(0)}},
			}},
		},
	}
}

func structHandleIndexPtr(i StructHandleIndex) *StructHandleIndex { return &i }

type harness struct {
	db        *sql.DB
	store     *ModuleStore
	resolver  *Resolver
	annotator *Annotator
	writer    *Writer
	reader    *Reader
	moduleTag Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewModuleStore(db, nil)
	if err != nil {
		t.Fatalf("new module store: %v", err)
	}
	addr := coinAddr()
	mod := walletModule(addr)
	data, err := MarshalModule(mod)
	if err != nil {
		t.Fatalf("marshal module: %v", err)
	}
	if err := store.Put(db, addr, "Coin", data); err != nil {
		t.Fatalf("put module: %v", err)
	}

	resolver := NewResolver(store, nil)
	annotator := NewAnnotator(resolver, nil)
	reader := NewReader(resolver)
	writer := NewWriter(resolver, annotator, reader)

	return &harness{db: db, store: store, resolver: resolver, annotator: annotator, writer: writer, reader: reader, moduleTag: addr}
}

func (h *harness) walletTag() StructTag {
	return StructTag{Address: h.moduleTag, Module: "Coin", Name: "Wallet"}
}

func (h *harness) balanceTag() StructTag {
	return StructTag{Address: h.moduleTag, Module: "Coin", Name: "Balance"}
}

func friendAddr(last byte) Address {
	var a Address
	a[31] = last
	return a
}

func TestResolveStructNestedFields(t *testing.T) {
	h := newHarness(t)
	ty, err := h.resolver.ResolveStruct(h.db, h.walletTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(ty.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(ty.Fields))
	}
	if ty.Fields[2].Type.Kind != FatStruct || ty.Fields[2].Type.Struct.Name != "Balance" {
		t.Fatalf("expected nested Balance struct, got %+v", ty.Fields[2].Type)
	}
	if !ty.IsResource {
		t.Fatalf("expected Wallet to resolve as a resource")
	}
}

func TestWriterStoreAndReaderRoundTrip(t *testing.T) {
	h := newHarness(t)
	ty, err := h.resolver.ResolveStruct(h.db, h.walletTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	owner := friendAddr(0x0A)
	mv := MVStructVal([]MoveValue{
		MVAddressVal(owner),
		MVVectorVal([]MoveValue{MVAddressVal(friendAddr(1)), MVAddressVal(friendAddr(2))}),
		MVStructVal([]MoveValue{MVU64Val(100)}),
	})
	annotated, err := h.annotator.AnnotateStruct(mv, ty)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}

	if err := h.writer.Store(h.db, owner, h.walletTag(), annotated); err != nil {
		t.Fatalf("store: %v", err)
	}

	var id int64
	if err := h.db.QueryRow("SELECT id FROM "+RootTableName(h.walletTag())+" WHERE address = ?", owner.Bytes()).Scan(&id); err != nil {
		t.Fatalf("lookup root row: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first row id 1, got %d", id)
	}

	fetched, err := h.reader.FetchStruct(h.db, h.walletTag(), id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	reAnnotated, err := h.annotator.AnnotateStruct(fetched, ty)
	if err != nil {
		t.Fatalf("re-annotate: %v", err)
	}
	if !annotatedStructEqual(annotated, reAnnotated) {
		t.Fatalf("round trip mismatch:\nwant %s\ngot  %s", annotated, reAnnotated)
	}
}

func TestWriterDiffScalarAndVectorChange(t *testing.T) {
	h := newHarness(t)
	ty, err := h.resolver.ResolveStruct(h.db, h.walletTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	owner := friendAddr(0x0B)

	v1, err := h.annotator.AnnotateStruct(MVStructVal([]MoveValue{
		MVAddressVal(owner),
		MVVectorVal([]MoveValue{MVAddressVal(friendAddr(1))}),
		MVStructVal([]MoveValue{MVU64Val(1)}),
	}), ty)
	if err != nil {
		t.Fatalf("annotate v1: %v", err)
	}
	if err := h.writer.Store(h.db, owner, h.walletTag(), v1); err != nil {
		t.Fatalf("store v1: %v", err)
	}

	v2, err := h.annotator.AnnotateStruct(MVStructVal([]MoveValue{
		MVAddressVal(owner),
		MVVectorVal([]MoveValue{MVAddressVal(friendAddr(2)), MVAddressVal(friendAddr(3))}),
		MVStructVal([]MoveValue{MVU64Val(2)}),
	}), ty)
	if err != nil {
		t.Fatalf("annotate v2: %v", err)
	}
	if err := h.writer.Store(h.db, owner, h.walletTag(), v2); err != nil {
		t.Fatalf("store v2 (diff): %v", err)
	}

	var id int64
	if err := h.db.QueryRow("SELECT id FROM "+RootTableName(h.walletTag())+" WHERE address = ?", owner.Bytes()).Scan(&id); err != nil {
		t.Fatalf("lookup root row: %v", err)
	}
	fetched, err := h.reader.FetchStruct(h.db, h.walletTag(), id)
	if err != nil {
		t.Fatalf("fetch after diff: %v", err)
	}
	final, err := h.annotator.AnnotateStruct(fetched, ty)
	if err != nil {
		t.Fatalf("re-annotate after diff: %v", err)
	}
	if !annotatedStructEqual(final, v2) {
		t.Fatalf("diff result mismatch:\nwant %s\ngot  %s", v2, final)
	}
	if len(final.Fields[1].Vector) != 2 {
		t.Fatalf("expected friends vector of length 2 after diff, got %d", len(final.Fields[1].Vector))
	}
}

func TestWriterDiffNoOpProducesNoChange(t *testing.T) {
	h := newHarness(t)
	ty, err := h.resolver.ResolveStruct(h.db, h.walletTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	owner := friendAddr(0x0C)
	v, err := h.annotator.AnnotateStruct(MVStructVal([]MoveValue{
		MVAddressVal(owner),
		MVVectorVal([]MoveValue{MVAddressVal(friendAddr(1))}),
		MVStructVal([]MoveValue{MVU64Val(7)}),
	}), ty)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if err := h.writer.Store(h.db, owner, h.walletTag(), v); err != nil {
		t.Fatalf("store (first): %v", err)
	}
	if err := h.writer.Store(h.db, owner, h.walletTag(), v); err != nil {
		t.Fatalf("store (idempotent replay): %v", err)
	}

	var count int
	elemTable := VectorTableName(h.walletTag(), "friends")
	if err := h.db.QueryRow("SELECT COUNT(*) FROM " + elemTable).Scan(&count); err != nil {
		t.Fatalf("count elements: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected element table untouched by a no-op diff, got %d rows", count)
	}
}

func TestWriterDeleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ty, err := h.resolver.ResolveStruct(h.db, h.balanceTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	addr := friendAddr(0x0D)
	v, err := h.annotator.AnnotateStruct(MVStructVal([]MoveValue{MVU64Val(9)}), ty)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if err := h.writer.Store(h.db, addr, h.balanceTag(), v); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := h.writer.Delete(h.db, addr, h.balanceTag()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := h.writer.Delete(h.db, addr, h.balanceTag()); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}

	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM " + RootTableName(h.balanceTag())).Scan(&count); err != nil {
		t.Fatalf("count root rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected root mapping removed, got %d rows", count)
	}
}

func TestReplayApplyBlockAndStateView(t *testing.T) {
	h := newHarness(t)
	replay := NewReplay(h.db, h.store, h.resolver, h.annotator, h.writer, nil)
	sv := NewSqlState(h.db, h.store, h.resolver, h.reader)

	owner := friendAddr(0x0E)
	ty, err := h.resolver.ResolveStruct(h.db, h.balanceTag())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	blob, err := SerializeStruct(MVStructVal([]MoveValue{MVU64Val(55)}), ty)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	ops := []WriteSetOp{
		{
			Path: AccessPath{Address: owner, Path: AccessPathKind{Resource: &StructTag{Address: h.moduleTag, Module: "Coin", Name: "Balance"}}},
			Op:   WriteOp{Kind: WriteOpValue, Value: blob},
		},
	}
	if err := replay.ApplyBlock(ops); err != nil {
		t.Fatalf("apply block: %v", err)
	}

	path := AccessPath{Address: owner, Path: AccessPathKind{Resource: &StructTag{Address: h.moduleTag, Module: "Coin", Name: "Balance"}}}
	got, ok, err := sv.Get(path)
	if err != nil {
		t.Fatalf("state view get: %v", err)
	}
	if !ok {
		t.Fatal("expected resource present after replay")
	}
	decoded, err := DeserializeStruct(got, ty)
	if err != nil {
		t.Fatalf("deserialize state-view bytes: %v", err)
	}
	if decoded.Struct[0].U64 != 55 {
		t.Fatalf("got %d want 55", decoded.Struct[0].U64)
	}
}

func TestGenesisStateAlwaysAbsent(t *testing.T) {
	var g GenesisState
	_, ok, err := g.Get(AccessPath{})
	if err != nil || ok {
		t.Fatalf("genesis state should always report absent, got ok=%v err=%v", ok, err)
	}
	if !g.IsGenesis() {
		t.Fatal("expected IsGenesis() to be true")
	}
}
