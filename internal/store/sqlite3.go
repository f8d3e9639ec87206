// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"open-swarm/pkg/simtypes"
)

// TxMethodFunc applies a single StateUpdate's decoded arguments to the
// store within an open transaction.
type TxMethodFunc func(tx *sql.Tx, update simtypes.StateUpdate) error

// TxDispatcher maps method names to the functions that apply them
// transactionally, mirroring the Python implementation's
// getattr(store, method) call made from inside a `with con:` block.
type TxDispatcher struct {
	methods map[string]TxMethodFunc
}

// NewTxDispatcher returns an empty TxDispatcher.
func NewTxDispatcher() *TxDispatcher {
	return &TxDispatcher{methods: make(map[string]TxMethodFunc)}
}

// Register adds fn under name.
func (d *TxDispatcher) Register(name string, fn TxMethodFunc) {
	d.methods[name] = fn
}

func (d *TxDispatcher) apply(tx *sql.Tx, update simtypes.StateUpdate) error {
	fn, ok := d.methods[update.Method]
	if !ok {
		return fmt.Errorf("no method %q registered", update.Method)
	}
	return fn(tx, update)
}

// SQLite3Store is an illustrative StateStore backed by a SQLite
// database file, one attached schema per store name sharing a single
// connection, mirroring sqlite3_connector.py's "attach database ? as
// {dbname}" pattern. It is not a production storage backend; it exists
// to demonstrate the StateStore contract end to end against a real
// driver.
type SQLite3Store struct {
	*Base

	mu    sync.Mutex
	cache []simtypes.StateUpdate

	db         *sql.DB
	schemaName string
	dispatcher *TxDispatcher

	insertCache         map[string]string
	insertOrIgnoreCache map[string]string
}

// NewSQLite3Store attaches dsn to db under schemaName and returns a
// store that sorts and applies buffered updates through dispatcher
// inside a single transaction per flush.
func NewSQLite3Store(storeName string, rank, worldSize int, db *sql.DB, schemaName, dsn string, dispatcher *TxDispatcher, logger *slog.Logger) (*SQLite3Store, error) {
	if _, err := db.Exec(fmt.Sprintf("attach database '%s' as %s", dsn, schemaName)); err != nil {
		return nil, fmt.Errorf("store %s: attach database: %w", storeName, err)
	}

	s := &SQLite3Store{
		db:                  db,
		schemaName:          schemaName,
		dispatcher:          dispatcher,
		insertCache:         make(map[string]string),
		insertOrIgnoreCache: make(map[string]string),
	}
	s.Base = NewBase(storeName, rank, worldSize, s.doFlush, logger)
	return s, nil
}

// HandleUpdate implements StateStore.
func (s *SQLite3Store) HandleUpdate(update simtypes.StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append(s.cache, update)
	return nil
}

// InsertSQL returns the cached "insert into {schema}.{table} values
// (...)" statement for table and nParams positional values, building
// and caching it on first use. Intended for TxMethodFunc implementations.
func (s *SQLite3Store) InsertSQL(table string, nParams int) string {
	if cached, ok := s.insertCache[table]; ok {
		return cached
	}
	sqlStmt := fmt.Sprintf("insert into %s.%s values (%s)", s.schemaName, table, placeholders(nParams))
	s.insertCache[table] = sqlStmt
	return sqlStmt
}

// InsertOrIgnoreSQL returns the cached "insert or ignore into
// {schema}.{table} values (...)" statement for table and nParams
// positional values.
func (s *SQLite3Store) InsertOrIgnoreSQL(table string, nParams int) string {
	if cached, ok := s.insertOrIgnoreCache[table]; ok {
		return cached
	}
	sqlStmt := fmt.Sprintf("insert or ignore into %s.%s values (%s)", s.schemaName, table, placeholders(nParams))
	s.insertOrIgnoreCache[table] = sqlStmt
	return sqlStmt
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ",")
}

func (s *SQLite3Store) doFlush() error {
	s.mu.Lock()
	cache := s.cache
	s.cache = nil
	s.mu.Unlock()

	simtypes.SortUpdates(cache)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store %s: begin transaction: %w", s.Name(), err)
	}

	for _, update := range cache {
		if err := s.dispatcher.apply(tx, update); err != nil {
			tx.Rollback()
			return fmt.Errorf("store %s: apply %s.%s: %w", s.Name(), update.StoreName, update.Method, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store %s: commit transaction: %w", s.Name(), err)
	}
	return nil
}
