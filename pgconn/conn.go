// Package pgconn implements a single PostgreSQL v3 protocol connection:
// startup/authentication, the simple-query and extended-query protocols,
// deferred-BEGIN transaction pipelining, and per-connection prepared
// statement caching.
package pgconn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net"
	"strings"

	"github.com/mevdschee/fkpg/pgproto"
	"github.com/mevdschee/fkpg/scram"
	"github.com/mevdschee/fkpg/stmtcache"
)

// DefaultStatementCacheCapacity matches the pool's documented default.
const DefaultStatementCacheCapacity = 100

// Conn is a single, non-pipelined-by-default connection to a PostgreSQL
// server. It is not safe for concurrent use: every method assumes exclusive
// ownership by one goroutine, matching the cooperative, single-threaded
// model the wire protocol's strict FIFO ordering requires.
type Conn struct {
	netConn net.Conn
	reader  *pgproto.Reader
	pending []byte // buffered frontend bytes not yet written to netConn

	cache *stmtcache.Cache

	txStatus   pgproto.TransactionStatus
	backendPID int32
	secretKey  int32
	parameters map[string]string

	closed   bool
	poisoned bool
}

// Connect dials dsn, completes the startup/authentication handshake, and
// returns a ready connection whose transaction status is Idle.
func Connect(ctx context.Context, dsn string, statementCacheCapacity int) (*Conn, error) {
	cfg, err := ParseURL(dsn)
	if err != nil {
		return nil, err
	}
	return ConnectConfig(ctx, cfg, statementCacheCapacity)
}

// ConnectConfig is like Connect but takes an already-parsed Config.
func ConnectConfig(ctx context.Context, cfg Config, statementCacheCapacity int) (*Conn, error) {
	if statementCacheCapacity <= 0 {
		statementCacheCapacity = DefaultStatementCacheCapacity
	}
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, errIO(err)
	}
	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	cache, err := stmtcache.New(statementCacheCapacity)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	c := &Conn{
		netConn:    netConn,
		reader:     pgproto.NewReader(netConn),
		cache:      cache,
		parameters: make(map[string]string),
	}

	if err := c.startup(cfg); err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

// newTestConn wraps an existing net.Conn (typically a mock in tests) and
// skips dialing; callers still must drive startup() themselves.
func newTestConn(netConn net.Conn, statementCacheCapacity int) (*Conn, error) {
	if statementCacheCapacity <= 0 {
		statementCacheCapacity = DefaultStatementCacheCapacity
	}
	cache, err := stmtcache.New(statementCacheCapacity)
	if err != nil {
		return nil, err
	}
	return &Conn{
		netConn:    netConn,
		reader:     pgproto.NewReader(netConn),
		cache:      cache,
		parameters: make(map[string]string),
	}, nil
}

func (c *Conn) startup(cfg Config) error {
	if _, err := c.netConn.Write(pgproto.EncodeStartupMessage(cfg.startupParams())); err != nil {
		return errIO(err)
	}

	for {
		msg, err := c.reader.Next()
		if err != nil {
			return errIO(err)
		}
		switch msg.Type {
		case pgproto.TagAuthentication:
			done, err := c.handleAuthMessage(msg.Body, cfg)
			if err != nil {
				return err
			}
			if done {
				continue
			}
		case pgproto.TagParameterStatus:
			name, value, err := pgproto.DecodeParameterStatus(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			c.parameters[name] = value
		case pgproto.TagBackendKeyData:
			kd, err := pgproto.DecodeBackendKeyData(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			c.backendPID = kd.ProcessID
			c.secretKey = kd.SecretKey
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			c.txStatus = status
			return nil
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			return errServer(fields)
		default:
			// Ignored during startup, per protocol.
		}
	}
}

// handleAuthMessage processes one 'R' message during startup. It returns
// done=true once the message has been handled; for AuthenticationSASL that
// covers the whole multi-message SCRAM sub-exchange, which doSCRAM reads and
// answers to completion before returning. A write to the server may be
// issued as a side effect.
func (c *Conn) handleAuthMessage(body []byte, cfg Config) (bool, error) {
	req, err := pgproto.DecodeAuthenticationRequest(body)
	if err != nil {
		return false, errProtocol("%v", err)
	}
	switch req.Type {
	case pgproto.AuthOK:
		return true, nil
	case pgproto.AuthCleartextPassword:
		if _, err := c.netConn.Write(pgproto.EncodePasswordMessage(cfg.Password)); err != nil {
			return false, errIO(err)
		}
		return true, nil
	case pgproto.AuthMD5Password:
		hashed := md5Password(cfg.User, cfg.Password, req.Salt)
		if _, err := c.netConn.Write(pgproto.EncodePasswordMessage(hashed)); err != nil {
			return false, errIO(err)
		}
		return true, nil
	case pgproto.AuthSASL:
		// req.Data lists the offered mechanisms, each NUL-terminated.
		if !strings.Contains("\x00"+string(req.Data), "\x00"+scram.Mechanism+"\x00") {
			return false, errAuth("server does not offer %s", scram.Mechanism)
		}
		return true, c.doSCRAM(cfg)
	default:
		return false, errAuth("unsupported authentication method %d", req.Type)
	}
}

// md5Password implements "md5" ‖ hex(MD5(hex(MD5(password ‖ user)) ‖ salt)).
func md5Password(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum([]byte(innerHex + string(salt)))
	return "md5" + hex.EncodeToString(outer[:])
}

// doSCRAM drives the SCRAM-SHA-256 sub-exchange to completion once the
// server has announced AuthenticationSASL. The mechanism list isn't
// inspected byte-for-byte beyond requiring this client's mechanism be
// offered, since PostgreSQL currently offers only SCRAM-SHA-256.
func (c *Conn) doSCRAM(cfg Config) error {
	client := scram.New(cfg.User, cfg.Password)
	clientFirst := client.ClientFirstMessage()
	if _, err := c.netConn.Write(pgproto.EncodeSASLInitialResponse(scram.Mechanism, clientFirst)); err != nil {
		return errIO(err)
	}

	msg, err := c.reader.Next()
	if err != nil {
		return errIO(err)
	}
	if msg.Type != pgproto.TagAuthentication {
		return errProtocol("expected AuthenticationSASLContinue, got %q", msg.Type)
	}
	req, err := pgproto.DecodeAuthenticationRequest(msg.Body)
	if err != nil {
		return errProtocol("%v", err)
	}
	if req.Type != pgproto.AuthSASLContinue {
		return errAuth("expected AuthenticationSASLContinue, got auth type %d", req.Type)
	}
	clientFinal, err := client.ProcessServerFirst(req.Data)
	if err != nil {
		return errAuth("scram: %v", err)
	}
	if _, err := c.netConn.Write(pgproto.EncodeSASLResponse(clientFinal)); err != nil {
		return errIO(err)
	}

	msg, err = c.reader.Next()
	if err != nil {
		return errIO(err)
	}
	if msg.Type != pgproto.TagAuthentication {
		return errProtocol("expected AuthenticationSASLFinal, got %q", msg.Type)
	}
	req, err = pgproto.DecodeAuthenticationRequest(msg.Body)
	if err != nil {
		return errProtocol("%v", err)
	}
	if req.Type != pgproto.AuthSASLFinal {
		return errAuth("expected AuthenticationSASLFinal, got auth type %d", req.Type)
	}
	if err := client.VerifyServerFinal(req.Data); err != nil {
		return errAuth("scram: %v", err)
	}
	return nil
}

// BackendPID returns the server process ID from BackendKeyData.
func (c *Conn) BackendPID() int32 { return c.backendPID }

// Parameter returns a server parameter recorded from ParameterStatus.
func (c *Conn) Parameter(name string) string { return c.parameters[name] }

// TransactionStatus reports the connection's current transaction state, as
// of the last ReadyForQuery.
func (c *Conn) TransactionStatus() pgproto.TransactionStatus { return c.txStatus }

// IsClosed reports whether Close has been called. A poisoned connection is
// not reported here; see IsPoisoned.
func (c *Conn) IsClosed() bool { return c.closed }

// IsPoisoned reports whether the connection is in an indeterminate state
// (mid-pipeline I/O error, or an error in a no-sync pipeline) and must not
// be returned to a pool.
func (c *Conn) IsPoisoned() bool { return c.poisoned }

// Close sends Terminate and marks the connection closed. Further operations
// fail with ConnectionClosed.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = c.netConn.Write(pgproto.EncodeTerminate())
	return c.netConn.Close()
}

// bufferWrite appends msg to the pending write buffer without writing to
// the socket, enabling pipelining: several frontend messages can be staged
// and sent with a single flush.
func (c *Conn) bufferWrite(msg []byte) {
	c.pending = append(c.pending, msg...)
}

// flush writes any buffered frontend bytes to the socket in one call and
// empties the buffer.
func (c *Conn) flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	_, err := c.netConn.Write(c.pending)
	c.pending = c.pending[:0]
	if err != nil {
		c.poisoned = true
		return errIO(err)
	}
	return nil
}

// Sync sends a Sync message and waits for ReadyForQuery, restoring the Idle
// invariant after a batch of no-sync pipelined operations.
func (c *Conn) Sync() error {
	if c.closed {
		return errClosed()
	}
	c.bufferWrite(pgproto.EncodeSync())
	if err := c.flush(); err != nil {
		return err
	}
	return c.drainToReadyForQuery()
}

// drainToReadyForQuery reads and discards messages until ReadyForQuery,
// recording transaction status from it. Any ErrorResponse encountered along
// the way is retained and returned after the drain completes.
func (c *Conn) drainToReadyForQuery() error {
	var serverErr error
	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.poisoned = true
			return errIO(err)
		}
		switch msg.Type {
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			c.txStatus = status
			return serverErr
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return errProtocol("%v", err)
			}
			serverErr = errServer(fields)
		}
	}
}
