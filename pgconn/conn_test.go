package pgconn

import (
	"testing"

	"github.com/mevdschee/fkpg/pgproto"
)

// TestStartup_AuthOK implements scenario S1: StartupMessage, AuthenticationOk,
// then ParameterStatus/BackendKeyData/ReadyForQuery brings up an Idle
// connection.
func TestStartup_AuthOK(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.close()

	c, err := newTestConn(fs.client, 10)
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
	if c.TransactionStatus() != pgproto.TxIdle {
		t.Errorf("expected Idle status, got %c", c.TransactionStatus())
	}
	if c.BackendPID() != 1234 {
		t.Errorf("expected backend pid 1234, got %d", c.BackendPID())
	}
	if c.Parameter("server_version") != "16.0" {
		t.Errorf("expected server_version parameter, got %q", c.Parameter("server_version"))
	}
}

// TestStartup_MD5 implements scenario S5: AuthenticationMD5Password with a
// known salt, verifying the client sends the exact expected hash.
func TestStartup_MD5(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.close()

	c, err := newTestConn(fs.client, 10)
	if err != nil {
		t.Fatalf("newTestConn: %v", err)
	}

	salt := []byte{0x12, 0x34, 0x56, 0x78}
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.startup(Config{User: "alice", Password: "secret", Database: "postgres"})
	}()

	fs.readFrontendStartup()
	fs.send(encodeMD5Request(salt))

	pw := fs.readFrontendMessage()
	if pw.Type != 'p' {
		t.Fatalf("expected PasswordMessage, got %q", pw.Type)
	}
	got := string(pw.Body[:len(pw.Body)-1]) // strip NUL terminator
	want := md5Password("alice", "secret", salt)
	if got != want {
		t.Errorf("expected md5 hash %q, got %q", want, got)
	}

	fs.send(encodeAuthOK())
	fs.send(authOKStartupReplies())

	if err := <-errCh; err != nil {
		t.Fatalf("startup: %v", err)
	}
}

// TestStartup_ServerError implements scenario S7's startup
// analogue: an ErrorResponse during authentication surfaces as a *Error with
// KindServer and the SQLSTATE intact.
func TestStartup_ServerError(t *testing.T) {
	fs := newFakeServer(t)
	defer fs.close()

	c, err := newTestConn(fs.client, 10)
	if err != nil {
		t.Fatalf("newTestConn: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.startup(Config{User: "alice", Database: "postgres"})
	}()

	fs.readFrontendStartup()
	fs.send(encodeErrorResponse("FATAL", "28P01", "password authentication failed"))

	err = <-errCh
	if err == nil {
		t.Fatal("expected an error")
	}
	pgErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pgErr.Kind != KindServer {
		t.Errorf("expected KindServer, got %v", pgErr.Kind)
	}
	if pgErr.Server.SQLState != "28P01" {
		t.Errorf("expected SQLSTATE 28P01, got %q", pgErr.Server.SQLState)
	}
}

func encodeMD5Request(salt []byte) []byte {
	body := make([]byte, 8)
	putInt32(body[0:4], 5)
	copy(body[4:8], salt)
	return encodeMsg('R', body)
}

func encodeErrorResponse(severity, sqlstate, message string) []byte {
	var body []byte
	body = append(body, 'S')
	body = append(body, append([]byte(severity), 0)...)
	body = append(body, 'C')
	body = append(body, append([]byte(sqlstate), 0)...)
	body = append(body, 'M')
	body = append(body, append([]byte(message), 0)...)
	body = append(body, 0)
	return encodeMsg('E', body)
}
