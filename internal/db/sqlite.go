// Package db opens the registry's SQLite store and applies its schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Pool modes.
const (
	ModeWrite = "write"
	ModeRead  = "read"
)

const (
	defaultBusyTimeout = "5000" // ms
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
	defaultReadMaxOpen = 4
	pingTimeout        = 5 * time.Second
)

// Pools holds the write and read connection pools for one SQLite file.
// The caller owns both and must Close them.
type Pools struct {
	Write *sql.DB
	Read  *sql.DB
}

// Close closes both pools.
func (p *Pools) Close() error {
	return errors.Join(p.Read.Close(), p.Write.Close())
}

// Open opens a single pool for path.
//
// A write pool holds exactly one connection and begins transactions with
// BEGIN IMMEDIATE, so every registry write is serialized at the database.
// A read pool holds up to maxOpen connections (0 selects the default of 4).
func Open(path, mode string, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == ModeWrite {
		maxOpen = 1
	} else if maxOpen <= 0 {
		maxOpen = defaultReadMaxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

// OpenPools opens the write pool first, so the file and its WAL journal
// exist before readers attach, then the read pool.
func OpenPools(path string, readMaxOpen int) (*Pools, error) {
	writeDB, err := Open(path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	readDB, err := Open(path, ModeRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}
	return &Pools{Write: writeDB, Read: readDB}, nil
}

func buildDSN(path, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
