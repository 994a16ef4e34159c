package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	cachekey "github.com/always-cache/shellcache/pkg/cache-key"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists partitions in a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens the store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("could not open cache db: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS partitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			partition_id INTEGER NOT NULL,
			method TEXT NOT NULL,
			base TEXT NOT NULL,
			query TEXT NOT NULL,
			stored_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (partition_id, method, base, query)
		)`,
		"CREATE INDEX IF NOT EXISTS entries_base_idx ON entries (partition_id, method, base, stored_at)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteStore{}, fmt.Errorf("could not initialize cache db: %w", err)
		}
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}

func (s SQLiteStore) Open(name string) (Partition, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO partitions (name, created_at) VALUES (?, ?)",
		name, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create partition %s: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM partitions WHERE name = ?", name).Scan(&id); err != nil {
		return nil, fmt.Errorf("could not open partition %s: %w", name, err)
	}
	return sqlitePartition{store: s, id: id, name: name}, nil
}

func (s SQLiteStore) Has(name string) (bool, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM partitions WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s SQLiteStore) Delete(name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow("SELECT id FROM partitions WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE partition_id = ?", id); err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM partitions WHERE id = ?", id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s SQLiteStore) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM partitions ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// sqlitePartition refers to its partition by row id, so a handle to a
// deleted partition does not write into a recreated one.
type sqlitePartition struct {
	store SQLiteStore
	id    int64
	name  string
}

func (p sqlitePartition) Name() string {
	return p.name
}

func (p sqlitePartition) Match(key cachekey.Key, opts MatchOptions) (Entry, bool, error) {
	var row *sql.Row
	if opts.IgnoreQuery {
		row = p.store.db.QueryRow(`SELECT query, stored_at, bytes FROM entries
			WHERE partition_id = ? AND method = ? AND base = ?
			ORDER BY stored_at DESC LIMIT 1`,
			p.id, key.Method, key.Base)
	} else {
		row = p.store.db.QueryRow(`SELECT query, stored_at, bytes FROM entries
			WHERE partition_id = ? AND method = ? AND base = ? AND query = ?`,
			p.id, key.Method, key.Base, key.Query)
	}
	entry := Entry{Key: key}
	var storedAt int64
	err := row.Scan(&entry.Key.Query, &storedAt, &entry.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	} else if err != nil {
		return Entry{}, false, err
	}
	entry.StoredAt = time.Unix(0, storedAt)
	return entry, true, nil
}

func (p sqlitePartition) Put(entry Entry) error {
	p.store.writeMutex.Lock()
	defer p.store.writeMutex.Unlock()
	result, err := p.store.db.Exec(`INSERT OR REPLACE INTO entries
		(partition_id, method, base, query, stored_at, bytes)
		SELECT ?, ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM partitions WHERE id = ?)`,
		p.id, entry.Key.Method, entry.Key.Base, entry.Key.Query, entry.StoredAt.UnixNano(), entry.Bytes, p.id)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err != nil {
		return err
	} else if rows == 0 {
		return ErrNoPartition
	}
	return nil
}

func (p sqlitePartition) Delete(key cachekey.Key) (bool, error) {
	p.store.writeMutex.Lock()
	defer p.store.writeMutex.Unlock()
	result, err := p.store.db.Exec(
		"DELETE FROM entries WHERE partition_id = ? AND method = ? AND base = ? AND query = ?",
		p.id, key.Method, key.Base, key.Query,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (p sqlitePartition) Keys() ([]cachekey.Key, error) {
	rows, err := p.store.db.Query(
		"SELECT method, base, query FROM entries WHERE partition_id = ? ORDER BY method, base, query",
		p.id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]cachekey.Key, 0)
	for rows.Next() {
		var key cachekey.Key
		if err := rows.Scan(&key.Method, &key.Base, &key.Query); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
