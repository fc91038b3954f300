// Package scram implements the client side of a SCRAM-SHA-256 SASL exchange
// (RFC 5802, RFC 7677), as used by PostgreSQL's AuthenticationSASL handshake.
// It is wire-agnostic: callers feed it the server's messages and send its
// output over whatever transport they like.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism is the SASL mechanism name this package speaks.
const Mechanism = "SCRAM-SHA-256"

// gs2HeaderBase64 is base64("n,,"), the GS2 header for a client that does
// not support channel binding; the wire format sends it as "c=biws".
const gs2HeaderBase64 = "biws"

// Client drives one SCRAM-SHA-256 authentication exchange. Create one with
// New, call ClientFirstMessage, feed the server's first message to
// ProcessServerFirst, then feed the server's final message to
// VerifyServerFinal.
type Client struct {
	username string
	password string
	nonce    string // client nonce

	serverFirstMessage string
	combinedNonce      string
	saltedPassword     []byte
	authMessage        string
}

// New creates a Client for the given username and password. SASLprep is
// deliberately not applied to the password: PostgreSQL accepts passwords
// that don't fit the RFC 4013 profile, and real-world passwords routinely
// contain characters the profile would reject or transform, so this client
// sends the password exactly as given.
func New(username, password string) *Client {
	return &Client{username: username, password: password, nonce: makeNonce()}
}

// ClientFirstMessage returns "n,,n=<user>,r=<client-nonce>". The leading
// "n,," is the GS2 header declaring no channel binding; it is not part of
// client-first-message-bare, which excludes it when building the auth
// message later.
func (c *Client) ClientFirstMessage() []byte {
	return []byte("n,," + c.clientFirstMessageBare())
}

func (c *Client) clientFirstMessageBare() string {
	return "n=" + saslprepIdentity(c.username) + ",r=" + c.nonce
}

func saslprepIdentity(s string) string { return s }

// ProcessServerFirst parses the server-first-message (r=<nonce>,s=<salt>,
// i=<iterations>, fields in any order), derives the salted password, and
// returns the client-final-message to send back.
func (c *Client) ProcessServerFirst(serverFirst []byte) ([]byte, error) {
	sfm := string(serverFirst)
	c.serverFirstMessage = sfm

	var nonce, saltB64, itersStr string
	var haveNonce, haveSalt, haveIters bool
	for _, part := range strings.Split(sfm, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
			haveNonce = true
		case strings.HasPrefix(part, "s="):
			saltB64 = part[2:]
			haveSalt = true
		case strings.HasPrefix(part, "i="):
			itersStr = part[2:]
			haveIters = true
		}
	}
	if !haveNonce || !haveSalt || !haveIters {
		return nil, newErr(ErrInvalidServerFirstMessage, "missing r=/s=/i= field in %q", sfm)
	}
	if len(nonce) <= len(c.nonce) || !strings.HasPrefix(nonce, c.nonce) {
		return nil, newErr(ErrNonceMismatch, "combined nonce %q does not extend client nonce %q", nonce, c.nonce)
	}
	c.combinedNonce = nonce

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, newErr(ErrInvalidSalt, "%v", err)
	}

	iters, err := strconv.Atoi(itersStr)
	if err != nil || iters <= 0 {
		return nil, newErr(ErrInvalidIterationCount, "%q", itersStr)
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iters, 32, sha256.New)

	clientFinalWithoutProof := "c=" + gs2HeaderBase64 + ",r=" + c.combinedNonce
	c.authMessage = c.clientFirstMessageBare() + "," + c.serverFirstMessage + "," + clientFinalWithoutProof

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))

	proof := make([]byte, len(clientKey))
	for i := range proof {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	final := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	return []byte(final), nil
}

// VerifyServerFinal checks the server-final-message's v=<ServerSignature>
// against what the client independently computes, and fails the exchange if
// they don't match (the server hasn't proven it knows the password verifier).
func (c *Client) VerifyServerFinal(serverFinal []byte) error {
	sfm := string(serverFinal)
	if !strings.HasPrefix(sfm, "v=") {
		return newErr(ErrInvalidServerFinalMessage, "missing v= field in %q", sfm)
	}
	got := sfm[2:]

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	want := base64.StdEncoding.EncodeToString(hmacSHA256(serverKey, []byte(c.authMessage)))

	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return newErr(ErrServerSignatureMismatch, "")
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func makeNonce() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		panic("scram: failed to read random nonce: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(buf)
}
