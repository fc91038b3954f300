// Command fkpg-bench is a small exerciser for the pgpool client: it loads a
// pool configuration, runs a configurable number of concurrent workers each
// issuing queries inside deferred-BEGIN transactions, and serves Prometheus
// metrics alongside the run.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mevdschee/fkpg/config"
	"github.com/mevdschee/fkpg/metrics"
	"github.com/mevdschee/fkpg/pgpool"
)

func main() {
	configPath := flag.String("config", "config.ini", "Path to configuration file")
	metricsAddr := flag.String("metrics", ":9090", "Metrics endpoint address")
	workers := flag.Int("workers", 4, "Number of concurrent query workers")
	query := flag.String("query", "SELECT 1", "Query to run in a loop inside a transaction")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	metrics.Init()
	go func() {
		http.Handle("/metrics", metrics.Handler())
		log.Printf("metrics endpoint at http://localhost%s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgpool.New(ctx, *cfg)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	log.Printf("connected: max_connections=%d statement_cache_capacity=%d", cfg.MaxConnections, cfg.StatementCacheCapacity)

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, pool, *query, id)
		}(i)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	wg.Wait()
}

// runWorker repeatedly begins a deferred transaction, runs query once, and
// commits, stopping when ctx is cancelled or the connection is unusable.
func runWorker(ctx context.Context, pool *pgpool.Pool, query string, id int) {
	for ctx.Err() == nil {
		if err := runOnce(ctx, pool, query); err != nil {
			log.Printf("worker %d: %v", id, err)
			return
		}
	}
}

func runOnce(ctx context.Context, pool *pgpool.Pool, query string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Query(query, nil)
	return tx.Finish(err)
}
