package pgproto

import (
	"encoding/binary"
)

// writeBuf accumulates a single frontend message. The first byte is the tag
// and bytes 1:5 are reserved for the length field (a StartupMessage buffer
// has no tag byte, so its length field is bytes 0:4); the length is patched
// by Bytes once the payload is known, mirroring how
// PostgreSQL client libraries build messages without knowing their length in
// advance.
type writeBuf struct {
	buf []byte
	pos int
}

func newWriteBuf(tag byte) *writeBuf {
	b := make([]byte, 5)
	b[0] = tag
	return &writeBuf{buf: b, pos: 1}
}

// newStartupBuf is like newWriteBuf but without a tag byte, since
// StartupMessage is the one frontend message with no leading tag.
func newStartupBuf() *writeBuf {
	b := make([]byte, 4)
	return &writeBuf{buf: b, pos: 0}
}

func (b *writeBuf) int32(n int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(n))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *writeBuf) int16(n int16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(n))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *writeBuf) byte(c byte) {
	b.buf = append(b.buf, c)
}

func (b *writeBuf) bytes(p []byte) {
	b.buf = append(b.buf, p...)
}

// cstring writes s followed by a NUL terminator.
func (b *writeBuf) cstring(s string) {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}

// Bytes patches the length field (the four bytes immediately after the tag,
// or at the head for a startup buffer) and returns the complete message.
func (b *writeBuf) Bytes() []byte {
	lengthFieldStart := b.pos
	binary.BigEndian.PutUint32(b.buf[lengthFieldStart:lengthFieldStart+4], uint32(len(b.buf)-lengthFieldStart))
	return b.buf
}
