package pgtx

import "fmt"

// Error reports misuse of a Tx value, as opposed to a server or I/O failure
// (which pgconn.Conn methods return directly, unwrapped).
type Error struct {
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("pgtx: %s", e.Msg) }

func errTxDone() *Error {
	return &Error{Msg: "transaction already committed or rolled back"}
}
