package scram

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// fakeServer computes the server side of the exchange using the same
// formulas as a real PostgreSQL server, so the client under test can be
// driven through a full, successful handshake without a live backend.
type fakeServer struct {
	username string
	password string
	salt     []byte
	iters    int
	nonce    string // server's nonce contribution

	clientNonce        string
	combinedNonce       string
	clientFirstBare     string
	serverFirstMessage  string
	saltedPassword      []byte
}

func newFakeServer(password string) *fakeServer {
	return &fakeServer{
		password: password,
		salt:     []byte("fixedsaltfixedsalt"),
		iters:    4096,
		nonce:    "servernonce123",
	}
}

func (s *fakeServer) firstMessage(clientFirst []byte) []byte {
	msg := string(clientFirst)
	msg = strings.TrimPrefix(msg, "n,,")
	s.clientFirstBare = msg
	for _, part := range strings.Split(msg, ",") {
		if strings.HasPrefix(part, "r=") {
			s.clientNonce = part[2:]
		}
	}
	s.combinedNonce = s.clientNonce + s.nonce
	s.serverFirstMessage = fmt.Sprintf("r=%s,s=%s,i=%d",
		s.combinedNonce, base64.StdEncoding.EncodeToString(s.salt), s.iters)
	return []byte(s.serverFirstMessage)
}

func (s *fakeServer) finalMessage(clientFinal []byte) []byte {
	s.saltedPassword = pbkdf2.Key([]byte(s.password), s.salt, s.iters, 32, sha256.New)
	clientFinalWithoutProof := string(clientFinal)
	if i := strings.Index(clientFinalWithoutProof, ",p="); i >= 0 {
		clientFinalWithoutProof = clientFinalWithoutProof[:i]
	}
	authMessage := s.clientFirstBare + "," + s.serverFirstMessage + "," + clientFinalWithoutProof

	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))
	sig := hmacSHA256(serverKey, []byte(authMessage))
	return []byte("v=" + base64.StdEncoding.EncodeToString(sig))
}

func TestClient_FullExchangeSucceeds(t *testing.T) {
	server := newFakeServer("trustno1")
	client := New("alice", "trustno1")

	clientFirst := client.ClientFirstMessage()
	if !strings.HasPrefix(string(clientFirst), "n,,n=alice,r=") {
		t.Fatalf("unexpected client-first-message: %q", clientFirst)
	}

	serverFirst := server.firstMessage(clientFirst)
	clientFinal, err := client.ProcessServerFirst(serverFirst)
	if err != nil {
		t.Fatalf("ProcessServerFirst: %v", err)
	}

	serverFinal := server.finalMessage(clientFinal)
	if err := client.VerifyServerFinal(serverFinal); err != nil {
		t.Fatalf("VerifyServerFinal: %v", err)
	}
}

func TestClient_WrongPasswordFailsSignatureCheck(t *testing.T) {
	server := newFakeServer("correct-password")
	client := New("alice", "wrong-password")

	clientFirst := client.ClientFirstMessage()
	serverFirst := server.firstMessage(clientFirst)
	clientFinal, err := client.ProcessServerFirst(serverFirst)
	if err != nil {
		t.Fatalf("ProcessServerFirst: %v", err)
	}
	serverFinal := server.finalMessage(clientFinal)

	err = client.VerifyServerFinal(serverFinal)
	if err == nil {
		t.Fatal("expected signature mismatch error")
	}
	scramErr, ok := err.(*Error)
	if !ok || scramErr.Kind != ErrServerSignatureMismatch {
		t.Errorf("expected ErrServerSignatureMismatch, got %v", err)
	}
}

func TestClient_InvalidServerFirstMessage(t *testing.T) {
	client := New("alice", "secret")
	client.ClientFirstMessage()

	_, err := client.ProcessServerFirst([]byte("garbage"))
	if err == nil {
		t.Fatal("expected error")
	}
	scramErr := err.(*Error)
	if scramErr.Kind != ErrInvalidServerFirstMessage {
		t.Errorf("expected ErrInvalidServerFirstMessage, got %v", scramErr.Kind)
	}
}

func TestClient_NonceMismatch(t *testing.T) {
	client := New("alice", "secret")
	clientFirst := client.ClientFirstMessage()
	_ = clientFirst

	_, err := client.ProcessServerFirst([]byte("r=doesnotmatch,s=c2FsdA==,i=4096"))
	if err == nil {
		t.Fatal("expected error")
	}
	scramErr := err.(*Error)
	if scramErr.Kind != ErrNonceMismatch {
		t.Errorf("expected ErrNonceMismatch, got %v", scramErr.Kind)
	}
}

func TestClient_InvalidSalt(t *testing.T) {
	client := New("alice", "secret")
	clientFirst := client.ClientFirstMessage()
	nonce := extractNonce(clientFirst)

	_, err := client.ProcessServerFirst([]byte(fmt.Sprintf("r=%sserver,s=not-valid-base64!!,i=4096", nonce)))
	if err == nil {
		t.Fatal("expected error")
	}
	scramErr := err.(*Error)
	if scramErr.Kind != ErrInvalidSalt {
		t.Errorf("expected ErrInvalidSalt, got %v", scramErr.Kind)
	}
}

func TestClient_InvalidIterationCount(t *testing.T) {
	client := New("alice", "secret")
	clientFirst := client.ClientFirstMessage()
	nonce := extractNonce(clientFirst)

	_, err := client.ProcessServerFirst([]byte(fmt.Sprintf("r=%sserver,s=c2FsdA==,i=not-a-number", nonce)))
	if err == nil {
		t.Fatal("expected error")
	}
	scramErr := err.(*Error)
	if scramErr.Kind != ErrInvalidIterationCount {
		t.Errorf("expected ErrInvalidIterationCount, got %v", scramErr.Kind)
	}
}

func TestClient_InvalidServerFinalMessage(t *testing.T) {
	server := newFakeServer("secret")
	client := New("alice", "secret")

	clientFirst := client.ClientFirstMessage()
	serverFirst := server.firstMessage(clientFirst)
	if _, err := client.ProcessServerFirst(serverFirst); err != nil {
		t.Fatalf("ProcessServerFirst: %v", err)
	}

	err := client.VerifyServerFinal([]byte("not-a-valid-final-message"))
	if err == nil {
		t.Fatal("expected error")
	}
	scramErr := err.(*Error)
	if scramErr.Kind != ErrInvalidServerFinalMessage {
		t.Errorf("expected ErrInvalidServerFinalMessage, got %v", scramErr.Kind)
	}
}

func extractNonce(clientFirst []byte) string {
	s := string(clientFirst)
	idx := strings.Index(s, "r=")
	return s[idx+2:]
}
