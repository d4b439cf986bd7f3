// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"database/sql"
	"testing"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/docdesk/internal/store"
)

// New returns a migrated in-memory store. The SQLite pool is limited to one
// connection so every query sees the same in-memory database; code under
// test must therefore only use the transaction-bound store inside a
// transaction.
func New(t *testing.T) *store.Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	db, err := store.Open(conn)
	require.NoError(t, err)
	return store.NewWithDB(db, nil)
}

// NewBadger returns an in-memory badger database
func NewBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
