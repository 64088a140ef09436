package schema

import (
	"errors"
	"testing"
)

func TestBitvectorSizing(t *testing.T) {
	s := &PacketSchema{
		Fields: []FieldSchema{
			{Name: "a", Kind: U8, IsKey: true},
			{Name: "b", Kind: U8},
			{Name: "c", Kind: U8},
			{Name: "d", Kind: U8},
		},
	}

	if got := len(s.KeyFields()); got != 1 {
		t.Fatalf("KeyFields len = %d, want 1", got)
	}
	if got := len(s.NonKeyFields()); got != 3 {
		t.Fatalf("NonKeyFields len = %d, want 3", got)
	}
	if got := s.BitvectorBitCount(); got != 3 {
		t.Fatalf("BitvectorBitCount = %d, want 3", got)
	}
	if got := s.BitvectorByteCount(); got != 1 {
		t.Fatalf("BitvectorByteCount = %d, want 1", got)
	}
}

func TestBitvectorByteCountRoundsUp(t *testing.T) {
	fields := make([]FieldSchema, 9)
	for i := range fields {
		fields[i] = FieldSchema{Name: string(rune('a' + i)), Kind: U8}
	}
	s := &PacketSchema{Fields: fields}
	if got := s.BitvectorByteCount(); got != 2 {
		t.Fatalf("BitvectorByteCount = %d, want 2 (9 bits -> 2 bytes)", got)
	}
}

func TestIndexWidthBoundary(t *testing.T) {
	f255 := FieldSchema{Kind: ARRAY, Capacity: 255}
	f256 := FieldSchema{Kind: ARRAY, Capacity: 256}
	if w := f255.IndexWidth(); w != 1 {
		t.Fatalf("capacity 255: IndexWidth = %d, want 1", w)
	}
	if w := f256.IndexWidth(); w != 2 {
		t.Fatalf("capacity 256: IndexWidth = %d, want 2", w)
	}
}

func TestValidateRejectsKeyAfterNonKey(t *testing.T) {
	s := &PacketSchema{
		PacketType: 1,
		Fields: []FieldSchema{
			{Name: "a", Kind: U8},
			{Name: "b", Kind: U8, IsKey: true},
		},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected an error for key field after non-key field")
	}
}

func TestValidateRejectsBadCapacity(t *testing.T) {
	s := &PacketSchema{
		PacketType: 1,
		Fields:     []FieldSchema{{Name: "a", Kind: ARRAY, ElementKind: BOOL, Capacity: 0}},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected an error for capacity 0")
	}

	s2 := &PacketSchema{
		PacketType: 1,
		Fields:     []FieldSchema{{Name: "a", Kind: ARRAY, ElementKind: BOOL, Capacity: 70000}},
	}
	if err := s2.Validate(); err == nil {
		t.Fatal("expected an error for capacity > 65535")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	s := &PacketSchema{
		PacketType: 1,
		Fields: []FieldSchema{
			{Name: "a", Kind: U8},
			{Name: "a", Kind: U8},
		},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected an error for duplicate field names")
	}
}

func TestDefaultValueArrayLength(t *testing.T) {
	f := FieldSchema{Kind: ARRAY, ElementKind: BOOL, Capacity: 10}
	v := DefaultValue(f)
	arr, ok := v.([]bool)
	if !ok {
		t.Fatalf("DefaultValue returned %T, want []bool", v)
	}
	if len(arr) != 10 {
		t.Fatalf("len = %d, want 10", len(arr))
	}
	for i, b := range arr {
		if b {
			t.Fatalf("element %d is true, want false default", i)
		}
	}
}

func TestDecodedRecordCloneIsIndependent(t *testing.T) {
	orig := DecodedRecord{"flags": []bool{true, false}}
	clone := orig.Clone()

	clone["flags"].([]bool)[0] = false
	if orig["flags"].([]bool)[0] != true {
		t.Fatal("mutating the clone's array leaked back into the original record")
	}
}

func TestRegistrySeedAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := Seed(r); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	for _, pt := range []uint16{
		PacketProcessingStarted, PacketProcessingFinished,
		PacketServerJoinReq, PacketServerJoinReply,
		PacketServerInfo, PacketChatMsg, PacketGameInfo,
		PacketTileInfo, PacketPlayerInfo,
	} {
		if _, err := r.Lookup(pt); err != nil {
			t.Fatalf("Lookup(%d) failed: %v", pt, err)
		}
	}

	if _, err := r.Lookup(9999); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Lookup(9999) = %v, want ErrNotRegistered", err)
	}
}

func TestRegistryRejectsDuplicatePacketType(t *testing.T) {
	r := NewRegistry()
	s1 := &PacketSchema{PacketType: 100}
	s2 := &PacketSchema{PacketType: 100}

	if err := r.Register(s1); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(s2); err == nil {
		t.Fatal("expected an error registering a duplicate packet type")
	}
}

func TestRegistryLimitsRejectsSchemaCountOverflow(t *testing.T) {
	r := NewRegistryWithLimits(Limits{MaxSchemaCount: 1})
	if err := r.Register(&PacketSchema{PacketType: 1}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := r.Register(&PacketSchema{PacketType: 2})
	if !errors.Is(err, ErrSchemaCountLimitExceeded) {
		t.Fatalf("err = %v, want ErrSchemaCountLimitExceeded", err)
	}
}

func TestRegistryLimitsRejectsArrayCapacityOverflow(t *testing.T) {
	r := NewRegistryWithLimits(Limits{MaxArrayCapacity: 100})
	s := &PacketSchema{
		PacketType: 1,
		Fields:     []FieldSchema{{Name: "a", Kind: ARRAY, ElementKind: BOOL, Capacity: 200}},
	}
	if err := r.Register(s); !errors.Is(err, ErrArrayCapacityLimitExceeded) {
		t.Fatalf("err = %v, want ErrArrayCapacityLimitExceeded", err)
	}
}

func TestChatMsgSchemaMatchesSpecScenario(t *testing.T) {
	r := NewRegistry()
	if err := Seed(r); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	s, err := r.Lookup(PacketChatMsg)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !s.HasDelta {
		t.Fatal("chat-msg must be a delta packet")
	}
	if got := s.BitvectorBitCount(); got != 6 {
		t.Fatalf("BitvectorBitCount = %d, want 6", got)
	}
	if got := s.BitvectorByteCount(); got != 1 {
		t.Fatalf("BitvectorByteCount = %d, want 1", got)
	}
	if got := len(s.KeyFields()); got != 0 {
		t.Fatalf("chat-msg has %d key fields, want 0", got)
	}
}
