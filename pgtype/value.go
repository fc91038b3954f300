package pgtype

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt2
	KindInt4
	KindInt8
	KindFloat4
	KindFloat8
	KindText
	KindBytea
	KindUUID
	KindTimestamp
	KindDate
	KindTime
	KindJSON
	KindNumeric
	KindRaw
)

// Value is a tagged union over the PostgreSQL values this package knows how
// to move across the wire. Only the field matching Kind is meaningful.
//
// Invariants: Text/JSON hold valid UTF-8; Bytes for KindUUID is always 16
// bytes; KindNull carries no OID (TypeOID treats it as text, which is what a
// caller should send as the parameter type hint).
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64 // Int2/Int4/Int8 (sign-extended), Timestamp (µs since 2000-01-01), Date (days), Time (µs since midnight)
	Float float64
	Text  string
	Bytes []byte // Bytea, UUID (16 bytes), Raw payload
	OID   OID    // only meaningful for KindRaw
	Dec   decimal.Decimal
}

func Null() Value                 { return Value{Kind: KindNull} }
func NewBool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func NewInt2(i int16) Value        { return Value{Kind: KindInt2, Int: int64(i)} }
func NewInt4(i int32) Value        { return Value{Kind: KindInt4, Int: int64(i)} }
func NewInt8(i int64) Value        { return Value{Kind: KindInt8, Int: i} }
func NewFloat4(f float32) Value    { return Value{Kind: KindFloat4, Float: float64(f)} }
func NewFloat8(f float64) Value    { return Value{Kind: KindFloat8, Float: f} }
func NewText(s string) Value       { return Value{Kind: KindText, Text: s} }
func NewBytea(b []byte) Value      { return Value{Kind: KindBytea, Bytes: b} }
func NewJSON(s string) Value       { return Value{Kind: KindJSON, Text: s} }
func NewTimestamp(us int64) Value  { return Value{Kind: KindTimestamp, Int: us} }
func NewDate(days int32) Value     { return Value{Kind: KindDate, Int: int64(days)} }
func NewTime(us int64) Value       { return Value{Kind: KindTime, Int: us} }
func NewNumeric(d decimal.Decimal) Value { return Value{Kind: KindNumeric, Dec: d} }

func NewRaw(oid OID, b []byte) Value {
	return Value{Kind: KindRaw, OID: oid, Bytes: b}
}

// NewUUID wraps a 16-byte UUID. b is a fixed-size array, so the value always
// holds exactly 16 bytes, matching the invariant that a Uuid value is always
// fixed-width.
func NewUUID(b [16]byte) Value {
	return Value{Kind: KindUUID, Bytes: append([]byte(nil), b[:]...)}
}

// ParseUUID decodes a canonical textual UUID (e.g. as accepted by the
// simple-query text path) into a Value.
func ParseUUID(s string) (Value, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Value{}, fmt.Errorf("pgtype: invalid uuid %q: %w", s, err)
	}
	b := [16]byte(id)
	return NewUUID(b), nil
}

// UUIDString renders a UUID value in canonical textual form. It does not
// check Kind: on any other value it renders the first 16 bytes of v.Bytes,
// zero-padded.
func (v Value) UUIDString() string {
	var b [16]byte
	copy(b[:], v.Bytes)
	return uuid.UUID(b).String()
}

// TypeOID returns the OID a caller should send as the parameter type hint
// for this value. Null defaults to Text: PostgreSQL accepts a later
// coercion in most cases.
func (v Value) TypeOID() OID {
	switch v.Kind {
	case KindNull:
		return Text
	case KindBool:
		return Bool
	case KindInt2:
		return Int2
	case KindInt4:
		return Int4
	case KindInt8:
		return Int8
	case KindFloat4:
		return Float4
	case KindFloat8:
		return Float8
	case KindText:
		return Text
	case KindBytea:
		return Bytea
	case KindUUID:
		return UUID
	case KindTimestamp:
		return Timestamp
	case KindDate:
		return Date
	case KindTime:
		return Time
	case KindJSON:
		return JSON
	case KindNumeric:
		return Numeric
	case KindRaw:
		return v.OID
	default:
		return Text
	}
}

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal compares two values for the round-trip property tests: same kind,
// same payload. Floats are compared with == on the stored float64 (so NaN
// never equals itself), which is exact for values that originated from
// encode/decode of the same width.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt2, KindInt4, KindInt8, KindTimestamp, KindDate, KindTime:
		return v.Int == o.Int
	case KindFloat4, KindFloat8:
		return v.Float == o.Float
	case KindText, KindJSON:
		return v.Text == o.Text
	case KindBytea, KindUUID:
		return string(v.Bytes) == string(o.Bytes)
	case KindNumeric:
		return v.Dec.Equal(o.Dec)
	case KindRaw:
		return v.OID == o.OID && string(v.Bytes) == string(o.Bytes)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<nil>"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt2, KindInt4, KindInt8:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat4, KindFloat8:
		return fmt.Sprintf("%v", v.Float)
	case KindText, KindJSON:
		return v.Text
	case KindUUID:
		return v.UUIDString()
	case KindBytea:
		return fmt.Sprintf("\\x%x", v.Bytes)
	case KindTimestamp, KindDate, KindTime:
		return fmt.Sprintf("%d", v.Int)
	case KindNumeric:
		return v.Dec.String()
	case KindRaw:
		return fmt.Sprintf("raw(oid=%d, %d bytes)", v.OID, len(v.Bytes))
	default:
		return "?"
	}
}
