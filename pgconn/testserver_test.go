package pgconn

import (
	"net"
	"testing"

	"github.com/mevdschee/fkpg/pgproto"
)

// fakeServer drives the server side of a net.Pipe connection from a script
// of raw backend bytes to send, optionally reacting to frontend messages as
// they arrive. It lets tests exercise Conn against scripted protocol
// exchanges without a real PostgreSQL server.
type fakeServer struct {
	t      *testing.T
	server net.Conn
	client net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	client, server := net.Pipe()
	return &fakeServer{t: t, server: server, client: client}
}

func (f *fakeServer) send(b []byte) {
	f.t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.server.Write(b); err != nil {
			f.t.Logf("fakeServer.send: %v", err)
		}
	}()
	<-done
}

// readFrontendMessage reads exactly one frontend message (tag + length +
// body) off the server side, used to script request/response auth flows.
func (f *fakeServer) readFrontendMessage() pgproto.Message {
	f.t.Helper()
	var header [5]byte
	if _, err := readFull(f.server, header[:]); err != nil {
		f.t.Fatalf("fakeServer: read header: %v", err)
	}
	length := int(header[1])<<24 | int(header[2])<<16 | int(header[3])<<8 | int(header[4])
	body := make([]byte, length-4)
	if _, err := readFull(f.server, body); err != nil {
		f.t.Fatalf("fakeServer: read body: %v", err)
	}
	return pgproto.Message{Type: header[0], Body: body}
}

// readFrontendStartup reads the untagged StartupMessage.
func (f *fakeServer) readFrontendStartup() []byte {
	f.t.Helper()
	var lenBuf [4]byte
	if _, err := readFull(f.server, lenBuf[:]); err != nil {
		f.t.Fatalf("fakeServer: read startup length: %v", err)
	}
	length := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	rest := make([]byte, length-4)
	if _, err := readFull(f.server, rest); err != nil {
		f.t.Fatalf("fakeServer: read startup body: %v", err)
	}
	return rest
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (f *fakeServer) close() {
	f.client.Close()
	f.server.Close()
}

// authOKStartupReplies returns the canned sequence every test connection
// expects right after authentication succeeds: ParameterStatus(s) then
// BackendKeyData then ReadyForQuery(Idle).
func authOKStartupReplies() []byte {
	var out []byte
	out = append(out, encodeParamStatus("server_version", "16.0")...)
	out = append(out, encodeBackendKeyData(1234, 5678)...)
	out = append(out, encodeReadyForQuery('I')...)
	return out
}

func encodeAuthOK() []byte {
	return encodeMsg('R', []byte{0, 0, 0, 0})
}

func encodeParamStatus(name, value string) []byte {
	body := append([]byte(name), 0)
	body = append(body, append([]byte(value), 0)...)
	return encodeMsg('S', body)
}

func encodeBackendKeyData(pid, secret int32) []byte {
	body := make([]byte, 8)
	putInt32(body[0:4], pid)
	putInt32(body[4:8], secret)
	return encodeMsg('K', body)
}

func encodeReadyForQuery(status byte) []byte {
	return encodeMsg('Z', []byte{status})
}

func encodeMsg(tag byte, body []byte) []byte {
	out := make([]byte, 1+4+len(body))
	out[0] = tag
	putInt32(out[1:5], int32(4+len(body)))
	copy(out[5:], body)
	return out
}

func putInt32(b []byte, v int32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putInt16(b []byte, v int16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func encodeParseComplete() []byte { return encodeMsg('1', nil) }
func encodeBindComplete() []byte  { return encodeMsg('2', nil) }
func encodeNoData() []byte        { return encodeMsg('n', nil) }

func encodeParameterDescription(oids []uint32) []byte {
	body := make([]byte, 2+4*len(oids))
	putInt16(body[0:2], int16(len(oids)))
	for i, oid := range oids {
		putInt32(body[2+4*i:6+4*i], int32(oid))
	}
	return encodeMsg('t', body)
}

type testColumn struct {
	name string
	oid  uint32
}

func encodeRowDescription(cols []testColumn) []byte {
	var body []byte
	hdr := make([]byte, 2)
	putInt16(hdr, int16(len(cols)))
	body = append(body, hdr...)
	for _, c := range cols {
		body = append(body, append([]byte(c.name), 0)...)
		field := make([]byte, 18)
		putInt32(field[0:4], 0)  // table oid
		putInt16(field[4:6], 0) // column attnum
		putInt32(field[6:10], int32(c.oid))
		putInt16(field[10:12], -1) // type size
		putInt32(field[12:16], -1) // type modifier
		putInt16(field[16:18], 1)  // format code (binary)
		body = append(body, field...)
	}
	return encodeMsg('T', body)
}

func encodeDataRow(cols [][]byte) []byte {
	var body []byte
	hdr := make([]byte, 2)
	putInt16(hdr, int16(len(cols)))
	body = append(body, hdr...)
	for _, col := range cols {
		if col == nil {
			lenBuf := make([]byte, 4)
			putInt32(lenBuf, -1)
			body = append(body, lenBuf...)
			continue
		}
		lenBuf := make([]byte, 4)
		putInt32(lenBuf, int32(len(col)))
		body = append(body, lenBuf...)
		body = append(body, col...)
	}
	return encodeMsg('D', body)
}

func encodeCommandComplete(tag string) []byte {
	return encodeMsg('C', append([]byte(tag), 0))
}

// newReadyConn drives a fakeServer through a minimal AuthOK startup and
// returns a Conn already at ReadyForQuery(Idle), for tests that only care
// about post-startup behavior.
func newReadyConn(t *testing.T, cacheCapacity int) (*Conn, *fakeServer) {
	t.Helper()
	fs := newFakeServer(t)
	c, err := newTestConn(fs.client, cacheCapacity)
	if err != nil {
		t.Fatalf("newTestConn: %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.startup(Config{User: "alice", Database: "postgres"})
	}()
	fs.readFrontendStartup()
	fs.send(encodeAuthOK())
	fs.send(authOKStartupReplies())
	if err := <-errCh; err != nil {
		t.Fatalf("startup: %v", err)
	}
	return c, fs
}
