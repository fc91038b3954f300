// Package pgtype maps PostgreSQL wire values to and from their binary and
// text representations, keyed by type OID.
package pgtype

// OID identifies a PostgreSQL type on the wire. See pg_type.h in the
// PostgreSQL source for the canonical list; this package recognizes the
// subset the connection layer actually needs to move values in and out of
// the binary protocol.
type OID uint32

const (
	Bool        OID = 16
	Bytea       OID = 17
	Char        OID = 18
	Name        OID = 19
	Int8        OID = 20
	Int2        OID = 21
	Int4        OID = 23
	Text        OID = 25
	JSON        OID = 114
	JSONB       OID = 3802
	UUID        OID = 2950
	Float4      OID = 700
	Float8      OID = 701
	Varchar     OID = 1043
	BPChar      OID = 1042
	Date        OID = 1082
	Time        OID = 1083
	Timestamp   OID = 1114
	TimestampTZ OID = 1184
	TimeTZ      OID = 1266
	Numeric     OID = 1700
)

// isTextLike reports whether oid is encoded as raw bytes on the wire in both
// text and binary format, with no further numeric interpretation.
func isTextLike(oid OID) bool {
	switch oid {
	case Text, Varchar, BPChar, Char, Name, JSON:
		return true
	}
	return false
}

func (o OID) String() string {
	switch o {
	case Bool:
		return "bool"
	case Bytea:
		return "bytea"
	case Char:
		return "char"
	case Name:
		return "name"
	case Int8:
		return "int8"
	case Int2:
		return "int2"
	case Int4:
		return "int4"
	case Text:
		return "text"
	case JSON:
		return "json"
	case JSONB:
		return "jsonb"
	case UUID:
		return "uuid"
	case Float4:
		return "float4"
	case Float8:
		return "float8"
	case Varchar:
		return "varchar"
	case BPChar:
		return "bpchar"
	case Date:
		return "date"
	case Time:
		return "time"
	case Timestamp:
		return "timestamp"
	case TimestampTZ:
		return "timestamptz"
	case TimeTZ:
		return "timetz"
	case Numeric:
		return "numeric"
	default:
		return "unknown"
	}
}
