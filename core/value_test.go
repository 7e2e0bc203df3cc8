package core

import (
	"math/big"
	"testing"
)

func TestU128RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    *big.Int
	}{
		{"zero", big.NewInt(0)},
		{"one", big.NewInt(1)},
		{"max", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			be := u128ToBytesBE(tc.v)
			if len(be) != 16 {
				t.Fatalf("expected 16 bytes, got %d", len(be))
			}
			got := u128FromBytesBE(be)
			if got.Cmp(tc.v) != 0 {
				t.Fatalf("got %s want %s", got, tc.v)
			}
		})
	}
}

func TestDeserializeSerializeStructRoundTrip(t *testing.T) {
	ty := FatStructType{
		Address: AddressZero,
		Module:  "Coin",
		Name:    "Balance",
		Fields: []FatField{
			{Name: "value", Type: FatType{Kind: FatU64}},
			{Name: "flags", Type: FatType{Kind: FatVector, Vector: &FatType{Kind: FatU8}}},
			{Name: "big", Type: FatType{Kind: FatU128}},
		},
	}
	original := MVStructVal([]MoveValue{
		MVU64Val(424242),
		MVVectorVal([]MoveValue{MVU8Val(1), MVU8Val(2), MVU8Val(3)}),
		MVU128Val(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 100), big.NewInt(7))),
	})

	blob, err := SerializeStruct(original, ty)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := DeserializeStruct(blob, ty)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if decoded.Struct[0].U64 != 424242 {
		t.Fatalf("field 0: got %d", decoded.Struct[0].U64)
	}
	if len(decoded.Struct[1].Vector) != 3 || decoded.Struct[1].Vector[2].U8 != 3 {
		t.Fatalf("field 1 mismatch: %+v", decoded.Struct[1])
	}
	if decoded.Struct[2].U128.Cmp(original.Struct[2].U128) != 0 {
		t.Fatalf("field 2: got %s want %s", decoded.Struct[2].U128, original.Struct[2].U128)
	}
}

func TestDeserializeEmptyVector(t *testing.T) {
	ty := FatStructType{Fields: []FatField{
		{Name: "items", Type: FatType{Kind: FatVector, Vector: &FatType{Kind: FatU8}}},
	}}
	blob, err := SerializeStruct(MVStructVal([]MoveValue{MVVectorVal(nil)}), ty)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(blob) != 1 || blob[0] != 0 {
		t.Fatalf("expected single zero-length byte, got %v", blob)
	}
	decoded, err := DeserializeStruct(blob, ty)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(decoded.Struct[0].Vector) != 0 {
		t.Fatalf("expected empty vector, got %d elements", len(decoded.Struct[0].Vector))
	}
}

func TestReadULEB128MultiByte(t *testing.T) {
	// 300 encodes as 0xAC 0x02 in ULEB128.
	data := []byte{0xAC, 0x02, 0xFF}
	v, n, err := readULEB128(data, 0)
	if err != nil {
		t.Fatalf("readULEB128: %v", err)
	}
	if v != 300 || n != 2 {
		t.Fatalf("got v=%d n=%d want v=300 n=2", v, n)
	}
}
