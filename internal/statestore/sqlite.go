package statestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS properties (
	name TEXT PRIMARY KEY,
	descriptor_json TEXT NOT NULL DEFAULT '{}',
	value_json TEXT,
	ack INTEGER NOT NULL DEFAULT 0,
	origin TEXT NOT NULL DEFAULT '',
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS binaries (
	name TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
`

// dbPair holds separate read and write connections for optimal SQLite
// concurrency. With WAL mode, readers don't block writers and vice versa.
type dbPair struct {
	reader *sql.DB
	writer *sql.DB
}

func (p *dbPair) Close() error {
	var errs []error
	if err := p.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := p.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func initDB(dbPath string) (*dbPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	writerConnStr := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=rwc", dbPath)
	writer, err := sql.Open("sqlite3", writerConnStr)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1) // SQLite serializes writes anyway
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(time.Hour)

	if _, err := writer.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		writer.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	readerConnStr := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=ro", dbPath)
	reader, err := sql.Open("sqlite3", readerConnStr)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(2)
	reader.SetConnMaxLifetime(time.Hour)

	return &dbPair{reader: reader, writer: writer}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) loadAll() error {
	rows, err := s.db.reader.Query("SELECT name, descriptor_json, value_json, ack, origin, updated_at FROM properties")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, descriptorJSON string
		var valueJSON, updatedAt sql.NullString
		var ack int
		var origin string
		if err := rows.Scan(&name, &descriptorJSON, &valueJSON, &ack, &origin, &updatedAt); err != nil {
			return err
		}

		var d Descriptor
		if err := json.Unmarshal([]byte(descriptorJSON), &d); err != nil {
			return fmt.Errorf("descriptor %s: %w", name, err)
		}
		s.descriptors[name] = d

		if valueJSON.Valid {
			var val any
			if err := json.Unmarshal([]byte(valueJSON.String), &val); err != nil {
				return fmt.Errorf("value %s: %w", name, err)
			}
			v := Value{Val: val, Ack: ack != 0, From: origin}
			if updatedAt.Valid {
				if ts, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
					v.UpdatedAt = ts
				}
			}
			s.values[name] = v
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	binRows, err := s.db.reader.Query("SELECT name, payload FROM binaries")
	if err != nil {
		return err
	}
	defer binRows.Close()

	for binRows.Next() {
		var name string
		var payload []byte
		if err := binRows.Scan(&name, &payload); err != nil {
			return err
		}
		s.binaries[name] = payload
	}
	return binRows.Err()
}

func (s *Store) persistDescriptor(name string, d Descriptor) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.writer.Exec(`
		INSERT INTO properties (name, descriptor_json) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET descriptor_json = excluded.descriptor_json`,
		name, string(raw))
	return err
}

func (s *Store) persistValue(name string, v Value) error {
	raw, err := json.Marshal(v.Val)
	if err != nil {
		return err
	}
	ack := 0
	if v.Ack {
		ack = 1
	}
	_, err = s.db.writer.Exec(`
		INSERT INTO properties (name, value_json, ack, origin, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value_json = excluded.value_json,
			ack = excluded.ack,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		name, string(raw), ack, v.From, v.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) persistBinary(name string, payload []byte) error {
	_, err := s.db.writer.Exec(`
		INSERT INTO binaries (name, payload) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`,
		name, payload)
	return err
}
