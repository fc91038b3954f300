package pgconn

import (
	"fmt"

	"github.com/mevdschee/fkpg/pgproto"
)

// ErrorKind classifies a failure at the connection boundary.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindProtocol
	KindAuth
	KindServer
	KindType
	KindConnectionClosed
	KindStatementNotFound
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	case KindType:
		return "type"
	case KindConnectionClosed:
		return "connection_closed"
	case KindStatementNotFound:
		return "statement_not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ServerError carries the structured fields of a PostgreSQL ErrorResponse.
type ServerError struct {
	Severity string
	SQLState string
	Message  string
	Detail   string
	Hint     string
}

func (s *ServerError) Error() string {
	if s.Detail != "" {
		return fmt.Sprintf("%s: %s (%s): %s", s.Severity, s.Message, s.SQLState, s.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", s.Severity, s.Message, s.SQLState)
}

func newServerError(fields []pgproto.Field) *ServerError {
	return &ServerError{
		Severity: pgproto.FieldValue(fields, 'S'),
		SQLState: pgproto.FieldValue(fields, 'C'),
		Message:  pgproto.FieldValue(fields, 'M'),
		Detail:   pgproto.FieldValue(fields, 'D'),
		Hint:     pgproto.FieldValue(fields, 'H'),
	}
}

// Error is the error type pgconn's connection and query operations return
// on failure; URL parsing (ParseURL, and Connect when it fails there)
// returns plain fmt errors instead. Wrap-and-check with errors.As for Server
// to inspect SQLSTATE.
type Error struct {
	Kind   ErrorKind
	Msg    string
	Server *ServerError
	Cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindServer && e.Server != nil {
		return fmt.Sprintf("pgconn: %s", e.Server.Error())
	}
	if e.Cause != nil {
		return fmt.Sprintf("pgconn: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("pgconn: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func errIO(cause error) *Error {
	return &Error{Kind: KindIO, Msg: "i/o error", Cause: cause}
}

func errProtocol(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Msg: fmt.Sprintf(format, args...)}
}

func errAuth(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Msg: fmt.Sprintf(format, args...)}
}

func errServer(fields []pgproto.Field) *Error {
	return &Error{Kind: KindServer, Msg: "server error", Server: newServerError(fields)}
}

func errType(format string, args ...interface{}) *Error {
	return &Error{Kind: KindType, Msg: fmt.Sprintf(format, args...)}
}

func errClosed() *Error {
	return &Error{Kind: KindConnectionClosed, Msg: "operation attempted on a closed connection"}
}

func errStatementNotFound(name string) *Error {
	return &Error{Kind: KindStatementNotFound, Msg: fmt.Sprintf("no such prepared statement: %s", name)}
}
