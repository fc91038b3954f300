package pgconn

import (
	"strconv"
	"strings"
	"time"

	"github.com/mevdschee/fkpg/metrics"
	"github.com/mevdschee/fkpg/pgproto"
	"github.com/mevdschee/fkpg/pgtype"
	"github.com/mevdschee/fkpg/stmtcache"
)

// Result is one result set: its column names, decoded rows, and the
// server's completion tag.
type Result struct {
	Columns    []string
	Rows       [][]pgtype.Value
	CommandTag string
}

// RowsAffected parses the trailing integer out of a command tag
// ("INSERT 0 3" -> 3, "UPDATE 2" -> 2, "SELECT 5" -> 5); anything that
// doesn't end in an integer yields 0.
func RowsAffected(commandTag string) int64 {
	fields := strings.Fields(commandTag)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SimpleQuery executes sql via the text protocol, returning every result set
// up to ReadyForQuery (a single sql string may contain multiple
// semicolon-separated statements, each producing its own Result).
func (c *Conn) SimpleQuery(sql string) (results []*Result, err error) {
	if c.closed {
		return nil, errClosed()
	}
	start := time.Now()
	defer func() {
		metrics.QueryLatency.WithLabelValues("simple").Observe(time.Since(start).Seconds())
		metrics.QueryTotal.WithLabelValues("simple", outcomeLabel(err)).Inc()
	}()
	if _, err := c.netConn.Write(pgproto.EncodeQuery(sql)); err != nil {
		c.poisoned = true
		return nil, errIO(err)
	}

	var cur *Result
	var colOIDs []uint32
	var serverErr error

	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.poisoned = true
			return nil, errIO(err)
		}
		switch msg.Type {
		case pgproto.TagRowDescription:
			fields, err := pgproto.DecodeRowDescription(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			cur = &Result{Columns: make([]string, len(fields))}
			colOIDs = make([]uint32, len(fields))
			for i, f := range fields {
				cur.Columns[i] = f.Name
				colOIDs[i] = f.DataTypeOID
			}
		case pgproto.TagDataRow:
			cols, err := pgproto.DecodeDataRow(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			if cur == nil {
				cur = &Result{}
			}
			row, err := decodeTextRow(cols, colOIDs)
			if err != nil {
				return nil, err
			}
			cur.Rows = append(cur.Rows, row)
		case pgproto.TagCommandComplete:
			tag, err := pgproto.DecodeCommandComplete(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			if cur == nil {
				cur = &Result{}
			}
			cur.CommandTag = tag
			results = append(results, cur)
			cur = nil
			colOIDs = nil
		case pgproto.TagEmptyQueryResponse:
			results = append(results, &Result{})
			cur = nil
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			serverErr = errServer(fields)
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			c.txStatus = status
			if serverErr != nil {
				return nil, serverErr
			}
			return results, nil
		}
	}
}

// decodeTextRow decodes DataRow column payloads using the simple-query text
// format, typing column i by oids[i] from the current RowDescription via
// pgtype.DecodeText; a column with no known OID decodes as text.
func decodeTextRow(cols [][]byte, oids []uint32) ([]pgtype.Value, error) {
	row := make([]pgtype.Value, len(cols))
	for i, col := range cols {
		if col == nil {
			row[i] = pgtype.Null()
			continue
		}
		var oid pgtype.OID
		if i < len(oids) {
			oid = pgtype.OID(oids[i])
		}
		v, err := pgtype.DecodeText(oid, col)
		if err != nil {
			return nil, errType("%v", err)
		}
		row[i] = v
	}
	return row, nil
}

// Param is one positional value for an extended-query execution.
type Param = pgtype.Value

// outcomeLabel maps an error to the "ok"/"error" metric label.
func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Query executes sql with binary-protocol parameters, using (and
// populating) the per-connection prepared-statement cache. It is the
// standard entry point for parameterized statements outside a transaction.
func (c *Conn) Query(sql string, params []Param) (result *Result, err error) {
	if c.closed {
		return nil, errClosed()
	}
	start := time.Now()
	defer func() {
		metrics.QueryLatency.WithLabelValues("extended").Observe(time.Since(start).Seconds())
		metrics.QueryTotal.WithLabelValues("extended", outcomeLabel(err)).Inc()
	}()

	stmt, err := c.ensurePrepared(sql, nil)
	if err != nil {
		return nil, err
	}

	if err := c.bufferExecute(stmt, params, true); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	return c.readExecuteResults(stmt, true)
}

// ensurePrepared returns the cached descriptor for sql, preparing it on the
// server first if it isn't already cached. paramOIDs, if non-nil, overrides
// type inference (the prepare(query, &param_types) entry point).
func (c *Conn) ensurePrepared(sql string, paramOIDs []uint32) (*stmtcache.Statement, error) {
	if stmt, ok := c.cache.GetAndTouch(sql); ok {
		metrics.StatementCacheHits.Inc()
		return stmt, nil
	}
	metrics.StatementCacheMisses.Inc()
	return c.prepare(sql, paramOIDs)
}

func (c *Conn) prepare(sql string, paramOIDs []uint32) (*stmtcache.Statement, error) {
	name := c.cache.NextStatementName()

	c.bufferWrite(pgproto.EncodeParse(name, sql, paramOIDs))
	c.bufferWrite(pgproto.EncodeDescribe(pgproto.DescribeStatement, name))
	c.bufferWrite(pgproto.EncodeSync())
	if err := c.flush(); err != nil {
		return nil, err
	}

	stmt := &stmtcache.Statement{Name: name, Query: sql, ParamOIDs: paramOIDs}

	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.poisoned = true
			return nil, errIO(err)
		}
		switch msg.Type {
		case pgproto.TagParseComplete:
			// continue
		case pgproto.TagParameterDescription:
			oids, err := pgproto.DecodeParameterDescription(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			stmt.ParamOIDs = oids
		case pgproto.TagRowDescription:
			fields, err := pgproto.DecodeRowDescription(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			stmt.Columns = make([]stmtcache.Column, len(fields))
			for i, f := range fields {
				stmt.Columns[i] = stmtcache.Column{Name: f.Name, DataTypeOID: f.DataTypeOID}
			}
		case pgproto.TagNoData:
			stmt.Columns = nil
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			if derr := c.drainToReadyForQuery(); derr != nil {
				return nil, derr
			}
			return nil, errServer(fields)
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			c.txStatus = status
			if _, didEvict := c.cache.Insert(sql, stmt); didEvict {
				metrics.StatementCacheEvictions.Inc()
			}
			return stmt, nil
		}
	}
}

// bufferBindExecute stages Bind + Execute for an already prepared statement
// with no trailing Sync or Flush, so the caller can append more messages (or
// another statement's own Bind/Execute) before picking a terminator.
func (c *Conn) bufferBindExecute(stmt *stmtcache.Statement, params []Param) error {
	bindParams := make([]pgproto.BindParam, len(params))
	for i, p := range params {
		if p.IsNull() {
			bindParams[i] = pgproto.BindParam{Value: nil}
			continue
		}
		b, err := pgtype.EncodeBinary(p)
		if err != nil {
			return errType("%v", err)
		}
		bindParams[i] = pgproto.BindParam{Value: b}
	}
	c.bufferWrite(pgproto.EncodeBind("", stmt.Name, bindParams))
	c.bufferWrite(pgproto.EncodeExecute("", 0))
	return nil
}

// bufferExecute stages Bind + Execute + (Sync or Flush) for an already
// prepared statement.
func (c *Conn) bufferExecute(stmt *stmtcache.Statement, params []Param, withSync bool) error {
	if err := c.bufferBindExecute(stmt, params); err != nil {
		return err
	}
	if withSync {
		c.bufferWrite(pgproto.EncodeSync())
	} else {
		c.bufferWrite(pgproto.EncodeFlush())
	}
	return nil
}

// readExecuteResults consumes BindComplete, DataRows, and the terminator
// (CommandComplete/EmptyQueryResponse, then ReadyForQuery if withSync).
func (c *Conn) readExecuteResults(stmt *stmtcache.Statement, withSync bool) (*Result, error) {
	result := &Result{}
	if stmt.Columns != nil {
		result.Columns = make([]string, len(stmt.Columns))
		for i, col := range stmt.Columns {
			result.Columns[i] = col.Name
		}
	}

	var serverErr error
	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.poisoned = true
			return nil, errIO(err)
		}
		switch msg.Type {
		case pgproto.TagBindComplete:
			// continue
		case pgproto.TagDataRow:
			cols, err := pgproto.DecodeDataRow(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			row, err := c.decodeBinaryRow(stmt, cols)
			if err != nil {
				return nil, err
			}
			result.Rows = append(result.Rows, row)
		case pgproto.TagCommandComplete:
			tag, err := pgproto.DecodeCommandComplete(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			result.CommandTag = tag
			if !withSync {
				return result, serverErr
			}
		case pgproto.TagEmptyQueryResponse:
			if !withSync {
				return result, serverErr
			}
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			serverErr = errServer(fields)
			if !withSync {
				c.poisoned = true
				return nil, serverErr
			}
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			c.txStatus = status
			if serverErr != nil {
				return nil, serverErr
			}
			return result, nil
		}
	}
}

func (c *Conn) decodeBinaryRow(stmt *stmtcache.Statement, cols [][]byte) ([]pgtype.Value, error) {
	row := make([]pgtype.Value, len(cols))
	for i, col := range cols {
		if col == nil {
			row[i] = pgtype.Null()
			continue
		}
		var oid pgtype.OID
		if i < len(stmt.Columns) {
			oid = pgtype.OID(stmt.Columns[i].DataTypeOID)
		}
		v, err := pgtype.DecodeBinary(oid, col)
		if err != nil {
			return nil, errType("%v", err)
		}
		row[i] = v
	}
	return row, nil
}

// Prepare forces sql into the statement cache up front, optionally
// overriding inferred parameter type OIDs.
func (c *Conn) Prepare(sql string, paramOIDs []uint32) error {
	if c.closed {
		return errClosed()
	}
	if c.cache.Contains(sql) {
		return nil
	}
	_, err := c.prepare(sql, paramOIDs)
	return err
}

// beginSQL names BEGIN's own cache slot. It is inserted into the cache the
// first time a transaction starts on this connection so later transactions
// skip re-Parsing it for as long as it stays cached; BeginDeferred looks it up
// with Peek, so if other statements evict it, the next BeginDeferred Parses
// it again under a new name.
const beginSQL = "BEGIN"

// BeginDeferred stages BEGIN's Parse/Describe (the first time this
// connection ever starts a transaction) and Bind/Execute in the pending
// buffer without writing to the socket and without any terminator of its
// own: no Sync, no Flush. The bytes sit alongside whatever the first real
// query of the transaction adds via QueryInTransaction, which supplies the
// eventual Sync, so everything - BEGIN included - reaches the server in a
// single write.
func (c *Conn) BeginDeferred() error {
	if c.closed {
		return errClosed()
	}
	stmt, ok := c.cache.Peek(beginSQL)
	if !ok {
		name := c.cache.NextStatementName()
		stmt = &stmtcache.Statement{Name: name, Query: beginSQL}
		c.bufferWrite(pgproto.EncodeParse(name, beginSQL, nil))
		c.bufferWrite(pgproto.EncodeDescribe(pgproto.DescribeStatement, name))
		if _, didEvict := c.cache.Insert(beginSQL, stmt); didEvict {
			metrics.StatementCacheEvictions.Inc()
		}
	}
	return c.bufferBindExecute(stmt, nil)
}

// QueryInTransaction appends sql's Parse/Describe (if uncached) and
// Bind/Execute/Sync to whatever is already pending from BeginDeferred (or a
// prior call in the same transaction) and flushes once. On a cache hit this
// is just bufferExecute+flush+readExecuteResults, which already tolerates
// BEGIN's own leading BindComplete/CommandComplete ahead of the real query's.
// On a cache miss, prepareAndExecuteInTransaction buffers the new
// statement's Parse/Describe alongside its own Bind/Execute/Sync so the
// whole pipeline - BEGIN plus the first query, cold cache and all - goes out
// in a single flush; calling the standalone prepare() here would flush
// early and cost BEGIN its free ride.
func (c *Conn) QueryInTransaction(sql string, params []Param) (*Result, error) {
	if c.closed {
		return nil, errClosed()
	}
	if stmt, ok := c.cache.GetAndTouch(sql); ok {
		metrics.StatementCacheHits.Inc()
		if err := c.bufferExecute(stmt, params, true); err != nil {
			return nil, err
		}
		if err := c.flush(); err != nil {
			return nil, err
		}
		return c.readExecuteResults(stmt, true)
	}
	metrics.StatementCacheMisses.Inc()
	return c.prepareAndExecuteInTransaction(sql, params)
}

// prepareAndExecuteInTransaction handles QueryInTransaction's cold-cache
// path: Parse+Describe for the new statement, Bind+Execute+Sync for its
// first execution, all buffered together (on top of whatever BeginDeferred
// already staged) and flushed once. The single reply loop below folds
// together what prepare()'s loop and readExecuteResults's loop each do
// separately, because there is exactly one ReadyForQuery terminating
// everything - BEGIN's responses, this statement's Parse/Describe
// responses, and its Bind/Execute results all arrive before it. BEGIN's own
// ParseComplete/ParameterDescription/NoData (sent only the first time a
// transaction ever begins on this connection) land first and are
// overwritten by the real statement's once those arrive, since the two
// message blocks appear strictly in send order.
func (c *Conn) prepareAndExecuteInTransaction(sql string, params []Param) (*Result, error) {
	name := c.cache.NextStatementName()
	c.bufferWrite(pgproto.EncodeParse(name, sql, nil))
	c.bufferWrite(pgproto.EncodeDescribe(pgproto.DescribeStatement, name))

	stmt := &stmtcache.Statement{Name: name, Query: sql}

	if err := c.bufferExecute(stmt, params, true); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}

	result := &Result{}
	var serverErr error
	for {
		msg, err := c.reader.Next()
		if err != nil {
			c.poisoned = true
			return nil, errIO(err)
		}
		switch msg.Type {
		case pgproto.TagParseComplete, pgproto.TagBindComplete:
			// May belong to BEGIN's own Parse/Bind or this statement's;
			// neither carries state this loop needs to record.
		case pgproto.TagParameterDescription:
			oids, err := pgproto.DecodeParameterDescription(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			stmt.ParamOIDs = oids
		case pgproto.TagRowDescription:
			fields, err := pgproto.DecodeRowDescription(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			stmt.Columns = make([]stmtcache.Column, len(fields))
			result.Columns = make([]string, len(fields))
			for i, f := range fields {
				stmt.Columns[i] = stmtcache.Column{Name: f.Name, DataTypeOID: f.DataTypeOID}
				result.Columns[i] = f.Name
			}
		case pgproto.TagNoData:
			stmt.Columns = nil
			result.Columns = nil
		case pgproto.TagDataRow:
			cols, err := pgproto.DecodeDataRow(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			row, err := c.decodeBinaryRow(stmt, cols)
			if err != nil {
				return nil, err
			}
			result.Rows = append(result.Rows, row)
		case pgproto.TagCommandComplete:
			tag, err := pgproto.DecodeCommandComplete(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			result.CommandTag = tag
		case pgproto.TagErrorResponse:
			fields, err := pgproto.DecodeFields(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			serverErr = errServer(fields)
		case pgproto.TagReadyForQuery:
			status, err := pgproto.DecodeReadyForQuery(msg.Body)
			if err != nil {
				return nil, errProtocol("%v", err)
			}
			c.txStatus = status
			if serverErr == nil {
				if _, didEvict := c.cache.Insert(sql, stmt); didEvict {
					metrics.StatementCacheEvictions.Inc()
				}
				return result, nil
			}
			return nil, serverErr
		}
	}
}

// QueryNoSync executes sql with Bind+Execute+Flush (no Sync), for statements
// pipelined inside an already-open transaction where round-trip avoidance
// matters more than eagerly restoring Idle status. Any server error poisons
// the connection: without a Sync there is no ReadyForQuery to resynchronize
// on, so the caller must not reuse this connection afterward.
func (c *Conn) QueryNoSync(sql string, params []Param) (*Result, error) {
	if c.closed {
		return nil, errClosed()
	}
	stmt, err := c.ensurePrepared(sql, nil)
	if err != nil {
		return nil, err
	}
	if err := c.bufferExecute(stmt, params, false); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	return c.readExecuteResults(stmt, false)
}

// CommitOrRollback sends COMMIT or ROLLBACK through the simple-query
// protocol and waits for ReadyForQuery, ending the current transaction. The
// simple-query path (rather than Parse/Bind/Execute) is deliberate: it is
// the one command PostgreSQL always accepts regardless of transaction
// status, including a Failed transaction that extended-query Parse would
// otherwise be rejected in.
func (c *Conn) CommitOrRollback(commit bool) error {
	if c.closed {
		return errClosed()
	}
	sql := "ROLLBACK"
	if commit {
		sql = "COMMIT"
	}
	_, err := c.SimpleQuery(sql)
	return err
}
