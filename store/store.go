// Package store keeps translated programs and a run history in SQLite.
//
// Programs are content addressed by the SHA-256 of their raw source, so a
// source file that has not changed is never translated twice.
package store

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/tapevm/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tapevm.store")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// RunRecord describes one execution.
type RunRecord struct {
	ID          uuid.UUID
	ProgramHash [32]byte
	StartedAt   time.Time
	Duration    time.Duration
	OutputLen   int
	Error       string // empty on success
}

// NewRunRecord starts a record for a run of prog beginning now.
func NewRunRecord(prog *bytecode.Program) RunRecord {
	return RunRecord{
		ID:          uuid.New(),
		ProgramHash: prog.ContentHash(),
		StartedAt:   time.Now(),
	}
}

// Store handles SQLite storage for programs and runs.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create tables if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		source_hash BLOB PRIMARY KEY,
		image BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating programs table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		program_hash BLOB NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		output_len INTEGER NOT NULL,
		error TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	log.Debugf("opened store %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SourceHash returns the cache key for a raw source.
func SourceHash(src []byte) [32]byte {
	return sha256.Sum256(src)
}

// Get returns the cached program for a source hash.
// The second result is false on a cache miss.
func (s *Store) Get(sourceHash [32]byte) (*bytecode.Program, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, false, ErrClosed
	}

	var image []byte
	err := s.db.QueryRow("SELECT image FROM programs WHERE source_hash = ?", sourceHash[:]).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying program: %w", err)
	}

	prog, err := bytecode.UnmarshalProgram(image)
	if err != nil {
		// A stale or corrupt entry is treated as a miss and replaced on Put.
		log.Warningf("discarding cached program %x: %s", sourceHash[:8], err)
		return nil, false, nil
	}
	return prog, true, nil
}

// Put caches a program under its source hash.
func (s *Store) Put(sourceHash [32]byte, prog *bytecode.Program) error {
	image, err := bytecode.MarshalProgram(prog)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO programs (source_hash, image, created_at) VALUES (?, ?, ?)",
		sourceHash[:], image, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Translate returns the program for src, translating and caching it on a
// miss. The second result reports a cache hit.
func (s *Store) Translate(src []byte) (*bytecode.Program, bool, error) {
	key := SourceHash(src)

	prog, ok, err := s.Get(key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		log.Debugf("cache hit %x", key[:8])
		return prog, true, nil
	}

	prog, err = bytecode.Translate(src)
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(key, prog); err != nil {
		return nil, false, err
	}
	log.Debugf("cached %x (%d ops)", key[:8], prog.Len())
	return prog, false, nil
}

// RecordRun stores a finished run.
func (s *Store) RecordRun(r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, program_hash, started_at, duration_ns, output_len, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.ProgramHash[:], r.StartedAt.UnixNano(), int64(r.Duration), r.OutputLen, r.Error,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(
		`SELECT id, program_hash, started_at, duration_ns, output_len, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			id        string
			hash      []byte
			startedAt int64
			duration  int64
			r         RunRecord
		)
		if err := rows.Scan(&id, &hash, &startedAt, &duration, &r.OutputLen, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("bad run id %q: %w", id, err)
		}
		copy(r.ProgramHash[:], hash)
		r.StartedAt = time.Unix(0, startedAt)
		r.Duration = time.Duration(duration)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
