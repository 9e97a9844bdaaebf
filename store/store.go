// Package store implements the wallet.Store persistence capability, per
// spec §4.E: key/value storage with optional AES-256-GCM-SIV
// encryption at rest, key-derived from a descriptor via HKDF.
//
// Grounded on lightweight-wallet/keyring/storage.go's FileKeyStateStore
// (load-on-construct, mutex-guarded in-memory cache) generalized from a
// single JSON file into a real key/value backend, and
// lightweight-wallet/db/factory.go's Config+constructor wiring idiom.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"golang.org/x/crypto/hkdf"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// SqliteStore is a wallet.Store backed by a SQLite key/value table,
// generalized down from the teacher's tapdb.SqliteStore wiring (one
// driver, migrations run once at construction).
type SqliteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Config mirrors the teacher's db.Config shape: a file path, or
// UseMemory for an ephemeral in-memory database (tests).
type Config struct {
	DBPath    string
	UseMemory bool
}

// DefaultConfig returns a Config pointed at dbPath.
func DefaultConfig(dbPath string) *Config {
	return &Config{DBPath: dbPath}
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// NewSqliteStore opens (creating if necessary) a SQLite-backed store.
func NewSqliteStore(cfg *Config) (*SqliteStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: config is required")
	}

	dsn := cfg.DBPath
	if cfg.UseMemory || dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Get implements wallet.Store.
func (s *SqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put implements wallet.Store.
func (s *SqliteStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// Delete implements wallet.Store.
func (s *SqliteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// Close releases the underlying database handle.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// MemStore is an in-memory wallet.Store, useful for tests and for
// watch-only sessions that don't need durability.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// backingStore is the minimal surface EncryptedStore wraps; it matches
// wallet.Store exactly but is redeclared here so this package does not
// need to import wallet (which would create an import cycle, since
// wallet.Store implementations live in this package).
type backingStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// EncryptedStore wraps a backingStore, encrypting values with
// AES-256-GCM-SIV before writing and decrypting on read, per spec §4.E.
// The encryption key is derived via HKDF-SHA256 from the wallet
// descriptor's canonical text, so two processes sharing a descriptor
// derive the same key without exchanging one out of band.
type EncryptedStore struct {
	inner  backingStore
	cipher *Cipher
	rand   io.Reader

	// deterministic selects EncryptWithDeterministicNonce over a random
	// nonce; deterministic encryption makes identical writes produce
	// identical ciphertext, which store/ tests rely on, at the cost of
	// leaking equality of stored values to an observer of ciphertext.
	deterministic bool
}

// DeriveKey derives a 32-byte AES-256-GCM-SIV key from descriptorText via
// HKDF-SHA256, per spec §4.E.
func DeriveKey(descriptorText string) ([32]byte, error) {
	var key [32]byte
	hk := hkdf.New(sha256.New, []byte(descriptorText), nil, []byte("lwk-store-encryption-key/1.0"))
	if _, err := io.ReadFull(hk, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// NewEncryptedStore wraps inner with AES-256-GCM-SIV encryption keyed by
// key. Pass deterministic=true for idempotent re-puts (store/Update
// payloads), false for fresh-random-nonce writes.
func NewEncryptedStore(inner backingStore, key [32]byte, deterministic bool, rand io.Reader) *EncryptedStore {
	return &EncryptedStore{
		inner:         inner,
		cipher:        NewCipher(key),
		rand:          rand,
		deterministic: deterministic,
	}
}

func (e *EncryptedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	plaintext, err := e.cipher.Decrypt(raw)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

func (e *EncryptedStore) Put(ctx context.Context, key string, value []byte) error {
	var (
		encrypted []byte
		err       error
	)
	if e.deterministic {
		encrypted, err = e.cipher.EncryptWithDeterministicNonce(value)
	} else {
		encrypted, err = e.cipher.EncryptWithRandomNonce(e.rand, value)
	}
	if err != nil {
		return err
	}
	return e.inner.Put(ctx, key, encrypted)
}

func (e *EncryptedStore) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}
