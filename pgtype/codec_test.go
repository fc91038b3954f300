package pgtype

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func roundTrip(t *testing.T, oid OID, v Value) Value {
	t.Helper()
	data, err := EncodeBinary(v)
	if err != nil {
		t.Fatalf("EncodeBinary(%v) error: %v", v, err)
	}
	got, err := DecodeBinary(oid, data)
	if err != nil {
		t.Fatalf("DecodeBinary(%s, %x) error: %v", oid, data, err)
	}
	return got
}

func TestBinaryRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		oid  OID
		v    Value
	}{
		{"bool true", Bool, NewBool(true)},
		{"bool false", Bool, NewBool(false)},
		{"int2", Int2, NewInt2(-1234)},
		{"int4", Int4, NewInt4(-123456789)},
		{"int8", Int8, NewInt8(-1234567890123456789)},
		{"float4", Float4, NewFloat4(3.5)},
		{"float8 nan-free", Float8, NewFloat8(-2.25e10)},
		{"text", Text, NewText("hello, world")},
		{"text empty", Text, NewText("")},
		{"bytea", Bytea, NewBytea([]byte{0x00, 0xff, 0x10})},
		{"timestamp", Timestamp, NewTimestamp(1234567890123)},
		{"date", Date, NewDate(9000)},
		{"time", Time, NewTime(86399999999)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.oid, tc.v)
			if !got.Equal(tc.v) {
				t.Errorf("round trip mismatch: got %v, want %v", got, tc.v)
			}
		})
	}
}

func TestFloat8BitPatternRoundTrip(t *testing.T) {
	v := NewFloat8(math.Pi)
	got := roundTrip(t, Float8, v)
	if math.Float64bits(got.Float) != math.Float64bits(v.Float) {
		t.Errorf("bit pattern mismatch: got %x want %x", math.Float64bits(got.Float), math.Float64bits(v.Float))
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	v, err := ParseUUID("123e4567-e89b-12d3-a456-426614174000")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if len(v.Bytes) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(v.Bytes))
	}
	got := roundTrip(t, UUID, v)
	if !got.Equal(v) {
		t.Errorf("uuid round trip mismatch: got %s want %s", got.UUIDString(), v.UUIDString())
	}
}

func TestTextLikeBinaryRoundTrip(t *testing.T) {
	// Property 2: text-like OIDs round trip through binary encode then
	// binary decode to the same string, independent of the text-decode path.
	for _, oid := range []OID{Text, Varchar, BPChar, Char, Name} {
		v := NewText("round-trip-me")
		data, err := EncodeBinary(v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeBinary(oid, data)
		if err != nil {
			t.Fatalf("decode(%s): %v", oid, err)
		}
		if got.Text != v.Text {
			t.Errorf("%s: got %q want %q", oid, got.Text, v.Text)
		}
	}
}

func TestStrictLengthValidation(t *testing.T) {
	if _, err := DecodeBinary(Int4, []byte{0, 0, 0}); err == nil {
		t.Error("expected error decoding int4 from 3 bytes")
	}
	if _, err := DecodeBinary(UUID, make([]byte, 15)); err == nil {
		t.Error("expected error decoding uuid from 15 bytes")
	}
	if _, err := DecodeBinary(Bool, []byte{0, 1}); err == nil {
		t.Error("expected error decoding bool from 2 bytes")
	}
}

func TestEmptyTextLikeIsEmptyString(t *testing.T) {
	v, err := DecodeBinary(Text, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Text != "" {
		t.Errorf("expected empty string, got %q", v.Text)
	}
}

func TestUnknownOIDFallsBackToRaw(t *testing.T) {
	v, err := DecodeBinary(OID(999999), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindRaw || v.OID != OID(999999) {
		t.Errorf("expected raw fallback preserving oid, got %+v", v)
	}
}

func TestNumericRoundTrip(t *testing.T) {
	cases := []string{"0", "123.456", "-123.456", "1000000", "0.0001", "-0.5"}
	for _, s := range cases {
		d, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatalf("decimal.NewFromString(%q): %v", s, err)
		}
		v := NewNumeric(d)
		data, err := EncodeBinary(v)
		if err != nil {
			t.Fatalf("encode numeric %q: %v", s, err)
		}
		got, err := DecodeBinary(Numeric, data)
		if err != nil {
			t.Fatalf("decode numeric %q: %v", s, err)
		}
		if !got.Dec.Equal(d) {
			t.Errorf("numeric round trip %q: got %s want %s", s, got.Dec.String(), d.String())
		}
	}
}

func TestJSONBVersionPrefix(t *testing.T) {
	v := NewJSON(`{"a":1}`)
	data, err := EncodeBinaryJSONB(v)
	if err != nil {
		t.Fatalf("encode jsonb: %v", err)
	}
	if data[0] != 1 {
		t.Errorf("expected version byte 1, got %d", data[0])
	}
	got, err := DecodeBinary(JSONB, data)
	if err != nil {
		t.Fatalf("decode jsonb: %v", err)
	}
	if got.Text != v.Text {
		t.Errorf("jsonb round trip: got %q want %q", got.Text, v.Text)
	}
}
