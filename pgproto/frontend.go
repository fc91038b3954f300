package pgproto

import "sort"

// EncodeStartupMessage builds a StartupMessage. params typically carries
// "user", "database", and optionally "application_name"; it is iterated in
// sorted key order so encoding is deterministic (useful for tests).
func EncodeStartupMessage(params map[string]string) []byte {
	b := newStartupBuf()
	b.int32(int32(ProtocolVersion))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.cstring(k)
		b.cstring(params[k])
	}
	b.byte(0) // terminator
	return b.Bytes()
}

// EncodePasswordMessage builds a PasswordMessage carrying a cleartext or
// MD5-hashed password, per AuthenticationCleartextPassword /
// AuthenticationMD5Password.
func EncodePasswordMessage(password string) []byte {
	b := newWriteBuf(TagPasswordMessage)
	b.cstring(password)
	return b.Bytes()
}

// EncodeSASLInitialResponse builds the first SASL response message,
// naming the mechanism and carrying the client-first-message.
func EncodeSASLInitialResponse(mechanism string, clientFirst []byte) []byte {
	b := newWriteBuf(TagPasswordMessage)
	b.cstring(mechanism)
	b.int32(int32(len(clientFirst)))
	b.bytes(clientFirst)
	return b.Bytes()
}

// EncodeSASLResponse builds a subsequent (non-initial) SASL response
// message, carrying the raw client-final-message with no length prefix.
func EncodeSASLResponse(data []byte) []byte {
	b := newWriteBuf(TagPasswordMessage)
	b.bytes(data)
	return b.Bytes()
}

// EncodeQuery builds a simple-query protocol Query message.
func EncodeQuery(sql string) []byte {
	b := newWriteBuf(TagQuery)
	b.cstring(sql)
	return b.Bytes()
}

// EncodeParse builds a Parse message. paramOIDs may be empty to let the
// server infer parameter types.
func EncodeParse(stmtName, sql string, paramOIDs []uint32) []byte {
	b := newWriteBuf(TagParse)
	b.cstring(stmtName)
	b.cstring(sql)
	b.int16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		b.int32(int32(oid))
	}
	return b.Bytes()
}

// BindParam is one positional parameter for a Bind message: Value nil
// encodes as SQL NULL (length -1); otherwise Value holds the exact bytes to
// send, already binary-encoded by the caller (EncodeBind declares every
// parameter binary).
type BindParam struct {
	Value []byte
}

// EncodeBind builds a Bind message binding portalName to stmtName. All
// parameters and all result columns are sent in binary format (format code
// 1), matching the binary-only codec this protocol layer implements.
func EncodeBind(portalName, stmtName string, params []BindParam) []byte {
	b := newWriteBuf(TagBind)
	b.cstring(portalName)
	b.cstring(stmtName)

	b.int16(1) // one parameter format code for all params
	b.int16(1) // binary

	b.int16(int16(len(params)))
	for _, p := range params {
		if p.Value == nil {
			b.int32(-1)
			continue
		}
		b.int32(int32(len(p.Value)))
		b.bytes(p.Value)
	}

	b.int16(1) // one result format code for all columns
	b.int16(1) // binary
	return b.Bytes()
}

// DescribeTarget distinguishes a Describe message's target.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal     DescribeTarget = 'P'
)

// EncodeDescribe builds a Describe message for the named statement or portal.
func EncodeDescribe(target DescribeTarget, name string) []byte {
	b := newWriteBuf(TagDescribe)
	b.byte(byte(target))
	b.cstring(name)
	return b.Bytes()
}

// EncodeExecute builds an Execute message. maxRows of 0 means "no limit".
func EncodeExecute(portalName string, maxRows int32) []byte {
	b := newWriteBuf(TagExecute)
	b.cstring(portalName)
	b.int32(maxRows)
	return b.Bytes()
}

// EncodeClose builds a Close message for the named statement or portal.
func EncodeClose(target DescribeTarget, name string) []byte {
	b := newWriteBuf(TagClose)
	b.byte(byte(target))
	b.cstring(name)
	return b.Bytes()
}

// EncodeSync builds a Sync message; it carries no payload.
func EncodeSync() []byte {
	return newWriteBuf(TagSync).Bytes()
}

// EncodeFlush builds a Flush message; it carries no payload.
func EncodeFlush() []byte {
	return newWriteBuf(TagFlush).Bytes()
}

// EncodeTerminate builds a Terminate message; it carries no payload.
func EncodeTerminate() []byte {
	return newWriteBuf(TagTerminate).Bytes()
}
