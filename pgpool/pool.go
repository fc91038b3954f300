// Package pgpool provides a bounded pool of pgconn.Conn connections, backed
// by puddle's generic resource pool, with idle-connection reuse and
// deferred-BEGIN transaction helpers built on top of a checked-out
// connection.
package pgpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/mevdschee/fkpg/metrics"
	"github.com/mevdschee/fkpg/pgconn"
	"github.com/mevdschee/fkpg/pgtx"
)

// Config configures a Pool.
type Config struct {
	URL                    string
	MinConnections         int32
	MaxConnections          int32
	StatementCacheCapacity int
}

// Pool hands out exclusively-owned *pgconn.Conn values, capped at
// MaxConnections concurrently checked out, reusing idle connections when
// available. The invariant held at all times is permits-held plus
// idle-count never exceeds MaxConnections, which is exactly what puddle's
// own semaphore-gated pool enforces; this package only teaches it how to
// construct and destroy a fkpg connection.
type Pool struct {
	cfg  Config
	pool *puddle.Pool[*pgconn.Conn]
}

// New creates a Pool and eagerly establishes MinConnections idle
// connections.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.StatementCacheCapacity <= 0 {
		cfg.StatementCacheCapacity = pgconn.DefaultStatementCacheCapacity
	}

	p := &Pool{cfg: cfg}
	constructor := func(ctx context.Context) (*pgconn.Conn, error) {
		return pgconn.Connect(ctx, cfg.URL, cfg.StatementCacheCapacity)
	}
	destructor := func(conn *pgconn.Conn) {
		_ = conn.Close()
	}

	puddlePool, err := puddle.NewPool(&puddle.Config[*pgconn.Conn]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     cfg.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("pgpool: %w", err)
	}
	p.pool = puddlePool

	for i := int32(0); i < cfg.MinConnections; i++ {
		if err := puddlePool.CreateResource(ctx); err != nil {
			return nil, fmt.Errorf("pgpool: warming pool: %w", err)
		}
	}
	return p, nil
}

// Conn is a checked-out connection; Release must be called exactly once to
// return it to the pool (or destroy it, if it was left poisoned).
type Conn struct {
	res  *puddle.Resource[*pgconn.Conn]
	pool *Pool
}

// Acquire checks out an idle connection if one is available, otherwise
// blocks (subject to ctx) until one is released or a new one can be
// constructed under MaxConnections.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	res, err := p.pool.Acquire(ctx)
	metrics.PoolAcquireLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("pgpool: %w", err)
	}
	p.reportStat()
	return &Conn{res: res, pool: p}, nil
}

func (p *Pool) reportStat() {
	s := p.Stat()
	metrics.PoolIdleConnections.Set(float64(s.IdleCount))
	metrics.PoolAcquiredConnections.Set(float64(s.AcquiredCount))
}

// Raw returns the underlying *pgconn.Conn for issuing queries.
func (c *Conn) Raw() *pgconn.Conn { return c.res.Value() }

// Begin starts a deferred-BEGIN transaction on this checked-out connection.
func (c *Conn) Begin() (*pgtx.Tx, error) {
	return pgtx.Begin(c.res.Value())
}

// Release returns the connection to the pool, or destroys it if it was
// closed or poisoned by an unrecoverable error along the way.
func (c *Conn) Release() {
	conn := c.res.Value()
	if conn.IsPoisoned() {
		metrics.ConnectionsPoisoned.Inc()
	}
	if conn.IsClosed() || conn.IsPoisoned() {
		c.res.Destroy()
	} else {
		c.res.Release()
	}
	c.pool.reportStat()
}

// Stat reports observability counters: idle connections and connections
// currently checked out.
type Stat struct {
	IdleCount     int32
	AcquiredCount int32
	TotalCount    int32
}

// Stat reports the pool's current occupancy.
func (p *Pool) Stat() Stat {
	s := p.pool.Stat()
	return Stat{
		IdleCount:     int32(s.IdleResources()),
		AcquiredCount: int32(s.AcquiredResources()),
		TotalCount:    int32(s.TotalResources()),
	}
}

// Close destroys every idle connection and prevents further acquisition.
// Connections still checked out are closed as they're released.
func (p *Pool) Close() {
	p.pool.Close()
}
