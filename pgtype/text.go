package pgtype

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// DecodeText parses data as the ASCII/UTF-8 text representation the server
// sends for a column of the given OID in the simple-query (text) protocol.
// Numeric, boolean and UUID types get their native Value kind and JSON/JSONB
// become KindJSON; everything else, including types this package doesn't
// specially recognize, is returned as text — the simple-query path never needs a binary round trip.
func DecodeText(oid OID, data []byte) (Value, error) {
	s := string(data)
	switch oid {
	case Bool:
		return NewBool(s == "t" || s == "true"), nil
	case Int2:
		n, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewInt2(int16(n)), nil
	case Int4:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewInt4(int32(n)), nil
	case Int8:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewInt8(n), nil
	case Float4:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewFloat4(float32(f)), nil
	case Float8:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewFloat8(f), nil
	case Numeric:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, typeErr(oid, 0, len(data))
		}
		return NewNumeric(d), nil
	case UUID:
		return ParseUUID(s)
	case JSON, JSONB:
		return NewJSON(s), nil
	default:
		return NewText(s), nil
	}
}
