// Package sqlite is the SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 0 - snapshots table
// 1 - snapshot_history table
const currentSchemaVersion = 1

var _ storage.SnapshotStore = (*Store)(nil)

type Store struct {
	db  *sql.DB
	log log.Log
}

// Open creates or opens the database at path and applies pragmas and
// migrations. Use ":memory:" for a throwaway store.
func Open(path string, logger log.Log) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	// one writer; also keeps a ":memory:" database on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err = applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("snapshot store opened", log.String("path", path))
	return &Store{db: db, log: logger}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, docID string, snapshot any) (storage.Record, bool, error) {
	if docID == "" {
		return storage.Record{}, false, errors.New("empty document id")
	}
	data, sum, err := storage.Encode(snapshot)
	if err != nil {
		return storage.Record{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Record{}, false, errors.Wrap(err, "begin save")
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT doc_id, version, checksum, data, saved_at FROM snapshots WHERE doc_id = ?`, docID))
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
	case err != nil:
		return storage.Record{}, false, err
	case latest.Checksum == sum:
		return latest, false, nil
	}

	rec := storage.Record{
		DocID:    docID,
		Version:  latest.Version + 1,
		Checksum: sum,
		Data:     data,
		SavedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (doc_id, version, checksum, data, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			version = excluded.version,
			checksum = excluded.checksum,
			data = excluded.data,
			saved_at = excluded.saved_at`,
		rec.DocID, rec.Version, formatChecksum(rec.Checksum), rec.Data, rec.SavedAt.UnixMilli())
	if err != nil {
		return storage.Record{}, false, errors.Wrapf(err, "save snapshot %q", docID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_history (doc_id, version, checksum, saved_at) VALUES (?, ?, ?, ?)`,
		rec.DocID, rec.Version, formatChecksum(rec.Checksum), rec.SavedAt.UnixMilli())
	if err != nil {
		return storage.Record{}, false, errors.Wrapf(err, "record history %q", docID)
	}
	if err = tx.Commit(); err != nil {
		return storage.Record{}, false, errors.Wrap(err, "commit save")
	}

	s.log.Debug("snapshot saved",
		log.String("doc", docID),
		log.Int64("version", rec.Version),
		log.Uint64("checksum", rec.Checksum))
	return rec, true, nil
}

func (s *Store) Load(ctx context.Context, docID string) (storage.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT doc_id, version, checksum, data, saved_at FROM snapshots WHERE doc_id = ?`, docID))
}

func (s *Store) History(ctx context.Context, docID string) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, checksum, saved_at FROM snapshot_history WHERE doc_id = ? ORDER BY version`, docID)
	if err != nil {
		return nil, errors.Wrapf(err, "query history %q", docID)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec := storage.Record{DocID: docID}
		var checksum string
		var savedAt int64
		if err = rows.Scan(&rec.Version, &checksum, &savedAt); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		if rec.Checksum, err = parseChecksum(checksum); err != nil {
			return nil, err
		}
		rec.SavedAt = time.UnixMilli(savedAt).UTC()
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate history")
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM snapshots ORDER BY doc_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan snapshot id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "iterate snapshots")
}

func scanRecord(row *sql.Row) (storage.Record, error) {
	var rec storage.Record
	var checksum string
	var savedAt int64
	err := row.Scan(&rec.DocID, &rec.Version, &checksum, &rec.Data, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrSnapshotNotFound
	}
	if err != nil {
		return storage.Record{}, errors.Wrap(err, "scan snapshot")
	}
	if rec.Checksum, err = parseChecksum(checksum); err != nil {
		return storage.Record{}, err
	}
	rec.SavedAt = time.UnixMilli(savedAt).UTC()
	return rec, nil
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func parseChecksum(s string) (uint64, error) {
	sum, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad checksum %q", s)
	}
	return sum, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %q", pragma)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "execute schema")
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "read user_version")
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	return nil
}

// migrateToV1 adds the per-version history table.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot_history (
			doc_id   TEXT NOT NULL,
			version  INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			saved_at INTEGER NOT NULL,
			PRIMARY KEY (doc_id, version)
		)`)
	return errors.Wrap(err, "migrate to v1")
}
