package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBinary renders v in the PostgreSQL binary wire format for its OID.
// A NULL value encodes to a nil slice; callers must represent that as a
// length of -1 in the surrounding message, not as a zero-length payload.
func EncodeBinary(v Value) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindInt2:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(v.Int)))
		return b, nil
	case KindInt4:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(v.Int)))
		return b, nil
	case KindInt8:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Int))
		return b, nil
	case KindFloat4:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(v.Float)))
		return b, nil
	case KindFloat8:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Float))
		return b, nil
	case KindText, KindJSON:
		return []byte(v.Text), nil
	case KindBytea:
		return append([]byte(nil), v.Bytes...), nil
	case KindUUID:
		if len(v.Bytes) != 16 {
			return nil, fmt.Errorf("pgtype: uuid must be 16 bytes, got %d", len(v.Bytes))
		}
		return append([]byte(nil), v.Bytes...), nil
	case KindTimestamp:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Int))
		return b, nil
	case KindDate:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(v.Int)))
		return b, nil
	case KindTime:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Int))
		return b, nil
	case KindNumeric:
		return encodeNumeric(v.Dec), nil
	case KindRaw:
		return append([]byte(nil), v.Bytes...), nil
	default:
		return nil, fmt.Errorf("pgtype: unknown value kind %d", v.Kind)
	}
}

// EncodeBinaryJSONB is like EncodeBinary for the JSONB OID specifically: the
// server's binary JSONB representation is prefixed with a one-byte version
// number (currently 1), which EncodeBinary alone does not know to add since
// it dispatches on Kind, not OID.
func EncodeBinaryJSONB(v Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	payload, err := EncodeBinary(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(payload))
	out[0] = 1
	copy(out[1:], payload)
	return out, nil
}

// DecodeBinary parses data (the payload following a DataRow column's length
// prefix) as oid using the binary wire format. A caller should not invoke
// this for a NULL column (length -1); callers represent that out of band.
func DecodeBinary(oid OID, data []byte) (Value, error) {
	if isTextLike(oid) {
		// Empty bodies are valid empty strings; only the fixed-width
		// numeric/temporal types below require a minimum length.
		if oid == JSON {
			return NewJSON(string(data)), nil
		}
		return NewText(string(data)), nil
	}

	switch oid {
	case Bool:
		if len(data) != 1 {
			return Value{}, typeErr(oid, 1, len(data))
		}
		return NewBool(data[0] != 0), nil
	case Int2:
		if len(data) != 2 {
			return Value{}, typeErr(oid, 2, len(data))
		}
		return NewInt2(int16(binary.BigEndian.Uint16(data))), nil
	case Int4:
		if len(data) != 4 {
			return Value{}, typeErr(oid, 4, len(data))
		}
		return NewInt4(int32(binary.BigEndian.Uint32(data))), nil
	case Int8:
		if len(data) != 8 {
			return Value{}, typeErr(oid, 8, len(data))
		}
		return NewInt8(int64(binary.BigEndian.Uint64(data))), nil
	case Float4:
		if len(data) != 4 {
			return Value{}, typeErr(oid, 4, len(data))
		}
		return NewFloat4(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case Float8:
		if len(data) != 8 {
			return Value{}, typeErr(oid, 8, len(data))
		}
		return NewFloat8(math.Float64frombits(binary.BigEndian.Uint64(data))), nil
	case Bytea:
		return NewBytea(append([]byte(nil), data...)), nil
	case UUID:
		if len(data) != 16 {
			return Value{}, typeErr(oid, 16, len(data))
		}
		var b [16]byte
		copy(b[:], data)
		return NewUUID(b), nil
	case Timestamp, TimestampTZ:
		if len(data) != 8 {
			return Value{}, typeErr(oid, 8, len(data))
		}
		return NewTimestamp(int64(binary.BigEndian.Uint64(data))), nil
	case Date:
		if len(data) != 4 {
			return Value{}, typeErr(oid, 4, len(data))
		}
		return NewDate(int32(binary.BigEndian.Uint32(data))), nil
	case Time, TimeTZ:
		// TIMETZ appends a trailing zone-offset int32 which this decoder
		// tolerates but discards; only the leading
		// microseconds-since-midnight field is surfaced as the value.
		if len(data) < 8 {
			return Value{}, typeErr(oid, 8, len(data))
		}
		return NewTime(int64(binary.BigEndian.Uint64(data[:8]))), nil
	case JSONB:
		if len(data) < 1 {
			return Value{}, typeErr(oid, 1, len(data))
		}
		return NewJSON(string(data[1:])), nil
	case Numeric:
		d, err := decodeNumeric(data)
		if err != nil {
			return Value{}, err
		}
		return NewNumeric(d), nil
	default:
		return NewRaw(oid, append([]byte(nil), data...)), nil
	}
}

func typeErr(oid OID, want, got int) error {
	return fmt.Errorf("pgtype: %s expects %d bytes, got %d", oid, want, got)
}
