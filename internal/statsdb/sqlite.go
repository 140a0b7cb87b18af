// Package statsdb keeps a queryable sqlite index of per-tick city stats.
// Writes are queued to a single writer goroutine so the tick loop never
// waits on disk.
package statsdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"citysim/internal/city"
)

type DB struct {
	db *sql.DB

	ch   chan city.Summary
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	errs    atomic.Uint64
}

func OpenSQLite(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &DB{db: db, ch: make(chan city.Summary, 4096)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			population INTEGER NOT NULL,
			employed INTEGER NOT NULL,
			jobs INTEGER NOT NULL,
			developed INTEGER NOT NULL,
			abandoned INTEGER NOT NULL,
			power_capacity REAL NOT NULL,
			power_supplied REAL NOT NULL,
			vehicles INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteTick queues s. When the writer falls behind the row is dropped; the
// journal remains the complete record.
func (s *DB) WriteTick(sum city.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- sum:
	default:
		s.dropped.Add(1)
	}
}

func (s *DB) loop() {
	for sum := range s.ch {
		_, err := s.db.Exec(`INSERT OR REPLACE INTO ticks
			(tick, population, employed, jobs, developed, abandoned, power_capacity, power_supplied, vehicles)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.Tick, sum.Population, sum.Employed, sum.Jobs, sum.Developed, sum.Abandoned,
			sum.PowerCapacity, sum.PowerSupplied, sum.Vehicles)
		if err != nil {
			s.errs.Add(1)
		}
	}
}

type Stats struct {
	Dropped     uint64 `json:"dropped"`
	WriteErrors uint64 `json:"writeErrors"`
	QueueDepth  int    `json:"queueDepth"`
}

func (s *DB) Stats() Stats {
	return Stats{Dropped: s.dropped.Load(), WriteErrors: s.errs.Load(), QueueDepth: len(s.ch)}
}

// Range returns the stored rows with from <= tick <= to in tick order.
func (s *DB) Range(ctx context.Context, from, to uint64) ([]city.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick, population, employed, jobs, developed, abandoned,
			power_capacity, power_supplied, vehicles
		FROM ticks WHERE tick BETWEEN ? AND ? ORDER BY tick`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []city.Summary
	for rows.Next() {
		var r city.Summary
		if err := rows.Scan(&r.Tick, &r.Population, &r.Employed, &r.Jobs, &r.Developed, &r.Abandoned,
			&r.PowerCapacity, &r.PowerSupplied, &r.Vehicles); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drains the queue and closes the database.
func (s *DB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
