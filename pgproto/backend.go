package pgproto

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// ErrNeedMoreBytes signals that buf does not yet hold a complete message; the
// caller should read more from the socket and retry, not treat this as fatal.
var ErrNeedMoreBytes = fmt.Errorf("pgproto: need more bytes")

// Message is a decoded backend message: Type is the tag byte, Body is the
// payload that followed the length field (len(Body) == length-4).
type Message struct {
	Type byte
	Body []byte
}

// ReadMessage attempts to parse exactly one backend message from the front
// of buf. It returns the message, the number of bytes consumed from buf, and
// an error. A short buffer yields (Message{}, 0, ErrNeedMoreBytes): the
// caller must not advance its read cursor in that case. An unrecognized tag
// yields a protocol error; PostgreSQL's frontend/backend protocol reserves
// all tags it speaks, so an unknown one means we're out of sync.
func ReadMessage(buf []byte) (Message, int, error) {
	if len(buf) < 5 {
		return Message{}, 0, ErrNeedMoreBytes
	}
	tag := buf[0]
	length := binary.BigEndian.Uint32(buf[1:5])
	if length < 4 {
		return Message{}, 0, fmt.Errorf("pgproto: invalid message length %d", length)
	}
	total := 1 + int(length)
	if len(buf) < total {
		return Message{}, 0, ErrNeedMoreBytes
	}
	if !IsKnownBackendTag(tag) {
		return Message{}, 0, fmt.Errorf("pgproto: unknown backend message type %q", tag)
	}
	body := buf[5:total]
	return Message{Type: tag, Body: body}, total, nil
}

// AuthenticationRequest is the decoded body of an 'R' message.
type AuthenticationRequest struct {
	Type AuthType
	// Salt is populated for AuthMD5Password (4 bytes).
	Salt []byte
	// Data is the raw body following the auth-type code, populated for
	// AuthSASL (mechanism list), AuthSASLContinue and AuthSASLFinal.
	Data []byte
}

func DecodeAuthenticationRequest(body []byte) (AuthenticationRequest, error) {
	if len(body) < 4 {
		return AuthenticationRequest{}, fmt.Errorf("pgproto: authentication message too short")
	}
	typ := AuthType(int32(binary.BigEndian.Uint32(body[0:4])))
	rest := body[4:]
	req := AuthenticationRequest{Type: typ}
	switch typ {
	case AuthMD5Password:
		if len(rest) != 4 {
			return AuthenticationRequest{}, fmt.Errorf("pgproto: md5 auth salt must be 4 bytes, got %d", len(rest))
		}
		req.Salt = append([]byte(nil), rest...)
	case AuthSASL, AuthSASLContinue, AuthSASLFinal:
		req.Data = append([]byte(nil), rest...)
	}
	return req, nil
}

// ParameterStatus decodes an 'S' message: name and value, NUL-terminated.
func DecodeParameterStatus(body []byte) (name, value string, err error) {
	name, rest, err := readCString(body)
	if err != nil {
		return "", "", err
	}
	value, _, err = readCString(rest)
	if err != nil {
		return "", "", err
	}
	return name, value, nil
}

// BackendKeyData decodes a 'K' message.
type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

func DecodeBackendKeyData(body []byte) (BackendKeyData, error) {
	if len(body) != 8 {
		return BackendKeyData{}, fmt.Errorf("pgproto: backend key data must be 8 bytes, got %d", len(body))
	}
	return BackendKeyData{
		ProcessID: int32(binary.BigEndian.Uint32(body[0:4])),
		SecretKey: int32(binary.BigEndian.Uint32(body[4:8])),
	}, nil
}

// ReadyForQuery decodes a 'Z' message's single status byte.
func DecodeReadyForQuery(body []byte) (TransactionStatus, error) {
	if len(body) != 1 {
		return 0, fmt.Errorf("pgproto: ReadyForQuery must carry 1 status byte, got %d", len(body))
	}
	return TransactionStatus(body[0]), nil
}

// Field is one (code, value) pair from an ErrorResponse or NoticeResponse.
type Field struct {
	Code  byte
	Value string
}

// DecodeFields decodes the zero-terminated list of fields in an ErrorResponse
// or NoticeResponse body.
func DecodeFields(body []byte) ([]Field, error) {
	var fields []Field
	for len(body) > 0 {
		code := body[0]
		if code == 0 {
			return fields, nil
		}
		value, rest, err := readCString(body[1:])
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Code: code, Value: value})
		body = rest
	}
	return fields, nil
}

// FieldValue returns the first field with the given code, or "" if absent.
func FieldValue(fields []Field, code byte) string {
	for _, f := range fields {
		if f.Code == code {
			return f.Value
		}
	}
	return ""
}

// RowDescriptionField describes one column in a RowDescription ('T') message.
type RowDescriptionField struct {
	Name         string
	TableOID     int32
	ColumnAttNum int16
	DataTypeOID  uint32
	DataTypeSize int16
	TypeModifier int32
	FormatCode   int16
}

func DecodeRowDescription(body []byte) ([]RowDescriptionField, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("pgproto: RowDescription too short")
	}
	n := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	fields := make([]RowDescriptionField, 0, n)
	for i := 0; i < n; i++ {
		name, tail, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		if len(tail) < 18 {
			return nil, fmt.Errorf("pgproto: RowDescription field %d truncated", i)
		}
		f := RowDescriptionField{
			Name:         name,
			TableOID:     int32(binary.BigEndian.Uint32(tail[0:4])),
			ColumnAttNum: int16(binary.BigEndian.Uint16(tail[4:6])),
			DataTypeOID:  binary.BigEndian.Uint32(tail[6:10]),
			DataTypeSize: int16(binary.BigEndian.Uint16(tail[10:12])),
			TypeModifier: int32(binary.BigEndian.Uint32(tail[12:16])),
			FormatCode:   int16(binary.BigEndian.Uint16(tail[16:18])),
		}
		fields = append(fields, f)
		rest = tail[18:]
	}
	return fields, nil
}

// DecodeDataRow decodes a 'D' message's column values. A column with length
// -1 is SQL NULL and is represented as a nil slice (distinct from a
// zero-length non-NULL value, which is an empty, non-nil slice).
func DecodeDataRow(body []byte) ([][]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("pgproto: DataRow too short")
	}
	n := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	cols := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("pgproto: DataRow column %d truncated", i)
		}
		l := int32(binary.BigEndian.Uint32(rest[0:4]))
		rest = rest[4:]
		if l < 0 {
			cols = append(cols, nil)
			continue
		}
		if len(rest) < int(l) {
			return nil, fmt.Errorf("pgproto: DataRow column %d truncated", i)
		}
		cols = append(cols, append([]byte(nil), rest[:l]...))
		rest = rest[l:]
	}
	return cols, nil
}

// DecodeCommandComplete returns the command tag string (e.g. "SELECT 3",
// "INSERT 0 1", "UPDATE 2").
func DecodeCommandComplete(body []byte) (string, error) {
	tag, _, err := readCString(body)
	return tag, err
}

// DecodeParameterDescription returns the inferred parameter type OIDs from a
// 't' message.
func DecodeParameterDescription(body []byte) ([]uint32, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("pgproto: ParameterDescription too short")
	}
	n := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) != 2+4*n {
		return nil, fmt.Errorf("pgproto: ParameterDescription length mismatch")
	}
	oids := make([]uint32, n)
	for i := 0; i < n; i++ {
		oids[i] = binary.BigEndian.Uint32(body[2+4*i : 6+4*i])
	}
	return oids, nil
}

// readCString reads a NUL-terminated string from the front of buf, returning
// the decoded string, the remaining bytes after the terminator, and an
// error if no terminator is found. Invalid UTF-8 is replaced rather than
// rejected, matching the protocol's tolerant-decode stance for text fields.
func readCString(buf []byte) (string, []byte, error) {
	for i, c := range buf {
		if c == 0 {
			s := string(buf[:i])
			if !utf8.ValidString(s) {
				s = toValidUTF8(s)
			}
			return s, buf[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("pgproto: missing NUL terminator")
}

func toValidUTF8(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r == utf8.RuneError {
			b = append(b, utf8.RuneError)
			continue
		}
		b = append(b, r)
	}
	return string(b)
}
