package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/docdesk/internal/config"
)

// Store provides unified access to SQLite (document, page and revision
// tables) and BadgerDB (short-lived keyed records)
type Store struct {
	db     *gorm.DB
	badger *badger.DB
}

// New opens both databases under the configured data directory and migrates
// the relational schema.
func New(cfg *config.StorageConfig) (*Store, error) {
	sqlitePath := cfg.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.DataDir, "docdesk.db")
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite has a single writer; a small pool avoids lock churn.
	sqliteDB.SetMaxOpenConns(4)
	sqliteDB.SetMaxIdleConns(4)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := Open(sqliteDB)
	if err != nil {
		return nil, err
	}

	badgerPath := cfg.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db, badger: badgerDB}, nil
}

// Open wraps an existing SQL connection pool in GORM and migrates it.
func Open(conn *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			// Timestamps are compared as text by SQLite; keep one offset.
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithDB builds a Store over already-open handles. badgerDB may be nil
// when the caller does not need keyed records.
func NewWithDB(db *gorm.DB, badgerDB *badger.DB) *Store {
	return &Store{db: db, badger: badgerDB}
}

// Migrate creates or updates the relational schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ProcessingDocument{},
		&DocumentPage{},
		&DocumentRevision{},
		&RevisionLineItem{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	// At most one APPROVED revision per document, enforced by the engine.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_one_approved
		ON document_revisions(processing_document_id) WHERE status = 'APPROVED'`).Error; err != nil {
		return fmt.Errorf("failed to create approved revision index: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_doc_review_tenant
		ON processing_documents(tenant_id, created_at DESC, id DESC)`).Error; err != nil {
		return fmt.Errorf("failed to create review index: %w", err)
	}
	return nil
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []string
	if s.badger != nil {
		if err := s.badger.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// Transaction runs fn inside one database transaction. The Store passed to
// fn is bound to the transaction and must be used for every read and write
// that belongs to it.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, badger: s.badger})
	})
}

// BaseKey returns the stable storage prefix of a document
func BaseKey(tenantID, documentID string) string {
	return fmt.Sprintf("tenants/%s/documents/%s", tenantID, documentID)
}

// VersionKey returns a fresh storage key for a new binary of a document.
// Every write gets its own key so an uncommitted upload never replaces the
// bytes a committed row points at.
func VersionKey(tenantID, documentID string, version int64) string {
	return fmt.Sprintf("%s/v%d-%s.pdf", BaseKey(tenantID, documentID), version, uuid.NewString()[:8])
}
