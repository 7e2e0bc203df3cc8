package core

import "testing"

func coinAddr() Address {
	var a Address
	a[31] = 0x01
	return a
}

func TestTagToTableBasic(t *testing.T) {
	tag := StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance"}
	got := TagToTable(tag)
	want := "x" + coinAddr().Short() + "__Coin__Balance"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTagToTableWithTypeParams(t *testing.T) {
	inner := StructTag{Address: coinAddr(), Module: "XDX", Name: "XDX"}
	tag := StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance", TypeParams: []TypeTag{TagStruct(inner)}}
	got := TagToTable(tag)
	if got == "" {
		t.Fatal("empty table name")
	}
	if got == TagToTable(StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance"}) {
		t.Fatalf("generic instantiation collided with unparameterized tag: %q", got)
	}
}

func TestTagToTableInjective(t *testing.T) {
	a := StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance", TypeParams: []TypeTag{TagU64()}}
	b := StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance", TypeParams: []TypeTag{TagU128()}}
	if TagToTable(a) == TagToTable(b) {
		t.Fatalf("distinct tags mapped to the same table name: %q", TagToTable(a))
	}
}

func TestRootAndVectorTableNames(t *testing.T) {
	tag := StructTag{Address: coinAddr(), Module: "Coin", Name: "Wallet"}
	root := RootTableName(tag)
	if root != "__root__"+TagToTable(tag) {
		t.Fatalf("unexpected root table name: %q", root)
	}
	elems := VectorTableName(tag, "friends")
	if elems != TagToTable(tag)+"__friends__elements" {
		t.Fatalf("unexpected element table name: %q", elems)
	}
}
