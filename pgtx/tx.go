// Package pgtx wraps a pgconn.Conn with deferred-BEGIN transaction
// semantics: BEGIN is buffered rather than sent eagerly, and the caller is
// guaranteed a COMMIT or ROLLBACK before the underlying connection is
// released back to its pool.
package pgtx

import (
	"github.com/mevdschee/fkpg/metrics"
	"github.com/mevdschee/fkpg/pgconn"
)

// Tx is a single transaction on a borrowed connection. It is not safe for
// concurrent use, matching the exclusive-ownership model of pgconn.Conn
// itself.
type Tx struct {
	conn  *pgconn.Conn
	begun bool
	done  bool
}

// Begin stages BEGIN on conn without flushing it; the transaction truly
// starts on the wire only when the first Query call piggybacks it onto the
// same round trip.
func Begin(conn *pgconn.Conn) (*Tx, error) {
	tx := &Tx{conn: conn}
	if err := conn.BeginDeferred(); err != nil {
		return nil, err
	}
	tx.begun = true
	return tx, nil
}

// Query executes sql inside the transaction. The first call after Begin
// flushes BEGIN's buffered bytes along with sql's; later calls take the same
// QueryInTransaction path, each ending in its own Sync and ReadyForQuery
// (Conn.QueryNoSync is not used here). A query error does not itself end the transaction: the server
// now requires an explicit ROLLBACK to leave its Failed state, so Query only
// records that BEGIN's bytes are no longer pending — Commit/Rollback still
// decide the transaction's fate.
func (tx *Tx) Query(sql string, params []pgconn.Param) (*pgconn.Result, error) {
	if tx.done {
		return nil, errTxDone()
	}
	tx.begun = false
	return tx.conn.QueryInTransaction(sql, params)
}

// Commit sends COMMIT and marks the transaction finished. Calling Commit on
// a transaction whose Begin was never followed by a Query is a no-op success
// on the wire: BEGIN; COMMIT; is harmless, but in the deferred model BEGIN's
// bytes wouldn't have been flushed yet, so Commit flushes them first via the
// ordinary extended-query path.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	wasBegun := tx.begun
	tx.done = true
	tx.begun = false
	metrics.TransactionTotal.WithLabelValues("commit").Inc()
	if wasBegun {
		if _, err := tx.conn.QueryInTransaction("COMMIT", nil); err != nil {
			return err
		}
		return nil
	}
	return tx.conn.CommitOrRollback(true)
}

// Rollback sends ROLLBACK and marks the transaction finished. Safe to call
// after a failed Query: the server itself rejects further statements in a
// failed transaction block until it sees ROLLBACK, and since Query no longer
// marks the transaction done on error, Rollback always actually runs here
// rather than short-circuiting on a stale done flag.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	wasBegun := tx.begun
	tx.done = true
	tx.begun = false
	metrics.TransactionTotal.WithLabelValues("rollback").Inc()
	if wasBegun {
		if _, err := tx.conn.QueryInTransaction("ROLLBACK", nil); err != nil {
			return err
		}
		return nil
	}
	return tx.conn.CommitOrRollback(false)
}

// Finish commits on success or rolls back on failure, the standard
// defer-guarded pattern for callers that compute err across a body of
// Query calls:
//
//	tx, err := pgtx.Begin(conn)
//	if err != nil { return err }
//	defer func() { err = tx.Finish(err) }()
func (tx *Tx) Finish(err error) error {
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return rerr
		}
		return err
	}
	return tx.Commit()
}
