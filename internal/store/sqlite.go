package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/boreal-data/neige-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geobase_cache (
	id         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	etag       TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS streets (
	id           TEXT PRIMARY KEY,
	street_id    INTEGER NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS status_history (
	id          TEXT PRIMARY KEY,
	street_id   INTEGER NOT NULL,
	code        INTEGER NOT NULL,
	state       TEXT NOT NULL,
	status      TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_history_street ON status_history(street_id, recorded_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGeobasePayload(ctx context.Context) (*GeobasePayload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, etag, fetched_at FROM geobase_cache ORDER BY fetched_at DESC LIMIT 1`,
	)

	var gp GeobasePayload
	err := row.Scan(&gp.Payload, &gp.ETag, &gp.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get geobase payload")
	}
	return &gp, nil
}

func (s *SQLiteStore) SetGeobasePayload(ctx context.Context, payload []byte, etag string, fetchedAt time.Time) error {
	// One cached document is enough; replace rather than accumulate.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM geobase_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear geobase cache")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO geobase_cache (id, payload, etag, fetched_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), payload, etag, fetchedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set geobase payload")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit geobase payload")
}

func (s *SQLiteStore) SaveStreet(ctx context.Context, streetID int, displayName string) (*model.ResolvedStreet, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streets (id, street_id, display_name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(street_id) DO UPDATE SET display_name = excluded.display_name`,
		id, streetID, displayName, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save street %d", streetID)
	}

	return &model.ResolvedStreet{
		ID:          id,
		StreetID:    streetID,
		DisplayName: displayName,
		CreatedAt:   now,
	}, nil
}

func (s *SQLiteStore) ListStreets(ctx context.Context) ([]model.ResolvedStreet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, street_id, display_name, created_at FROM streets ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list streets")
	}
	defer rows.Close()

	var streets []model.ResolvedStreet
	for rows.Next() {
		var rs model.ResolvedStreet
		if err := rows.Scan(&rs.ID, &rs.StreetID, &rs.DisplayName, &rs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan street")
		}
		streets = append(streets, rs)
	}
	return streets, eris.Wrap(rows.Err(), "sqlite: list streets iterate")
}

func (s *SQLiteStore) RemoveStreet(ctx context.Context, streetID int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM streets WHERE street_id = ?`, streetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove street %d", streetID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("street not found: %d", streetID)
	}
	return nil
}

func (s *SQLiteStore) RecordStatus(ctx context.Context, status model.SnowStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal status")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO status_history (id, street_id, code, state, status, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), status.StreetID, int(status.Code), status.State, string(statusJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record status")
}

func (s *SQLiteStore) LatestStatus(ctx context.Context, streetID int) (*model.SnowStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status FROM status_history WHERE street_id = ? ORDER BY recorded_at DESC LIMIT 1`,
		streetID,
	)

	var statusJSON string
	err := row.Scan(&statusJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest status")
	}

	var status model.SnowStatus
	if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal status")
	}
	return &status, nil
}

func (s *SQLiteStore) ListStatusHistory(ctx context.Context, streetID int, limit int) ([]model.SnowStatus, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status FROM status_history WHERE street_id = ? ORDER BY recorded_at DESC LIMIT ?`,
		streetID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list status history")
	}
	defer rows.Close()

	var statuses []model.SnowStatus
	for rows.Next() {
		var statusJSON string
		if err := rows.Scan(&statusJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status")
		}
		var status model.SnowStatus
		if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal status")
		}
		statuses = append(statuses, status)
	}
	return statuses, eris.Wrap(rows.Err(), "sqlite: list status history iterate")
}
