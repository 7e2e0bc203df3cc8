package core

import "testing"

func TestAnnotateHoistsVectorU8ToBytes(t *testing.T) {
	ty := FatStructType{
		Name: "Blob",
		Fields: []FatField{
			{Name: "payload", Type: FatType{Kind: FatVector, Vector: &FatType{Kind: FatU8}}},
		},
	}
	mv := MVStructVal([]MoveValue{MVVectorVal([]MoveValue{MVU8Val(0xDE), MVU8Val(0xAD)})})

	a := NewAnnotator(nil, nil)
	annotated, err := a.AnnotateStruct(mv, ty)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if annotated.Fields[0].Value.Kind != AVBytes {
		t.Fatalf("expected Vector<U8> hoisted to Bytes, got kind %d", annotated.Fields[0].Value.Kind)
	}
	if string(annotated.Fields[0].Value.Bytes) != "\xDE\xAD" {
		t.Fatalf("unexpected bytes: %x", annotated.Fields[0].Value.Bytes)
	}
}

func TestAnnotateVectorOfAddressStaysVector(t *testing.T) {
	ty := FatStructType{
		Name: "Friends",
		Fields: []FatField{
			{Name: "list", Type: FatType{Kind: FatVector, Vector: &FatType{Kind: FatAddress}}},
		},
	}
	mv := MVStructVal([]MoveValue{MVVectorVal([]MoveValue{MVAddressVal(friendAddr(1))})})

	a := NewAnnotator(nil, nil)
	annotated, err := a.AnnotateStruct(mv, ty)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if annotated.Fields[0].Value.Kind != AVVector {
		t.Fatalf("expected Vector<Address> to stay a Vector, got kind %d", annotated.Fields[0].Value.Kind)
	}
	if annotated.Fields[0].Value.VectorElem.Kind != TypeTagAddress {
		t.Fatalf("expected element type tag Address, got %v", annotated.Fields[0].Value.VectorElem)
	}
}

func TestAnnotatedValueStringPrettyPrint(t *testing.T) {
	s := AnnotatedStruct{
		IsResource: true,
		Tag:        StructTag{Address: coinAddr(), Module: "Coin", Name: "Balance"},
		Fields: []AnnotatedField{
			{Name: "value", Value: AnnotatedValue{Kind: AVU64, U64: 7}},
		},
	}
	str := s.String()
	if str == "" {
		t.Fatal("expected non-empty pretty-printed struct")
	}
}
