package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/boreal-data/neige-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, extracted so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geobase_cache (
	id         TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	etag       TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS streets (
	id           TEXT PRIMARY KEY,
	street_id    INTEGER NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS status_history (
	id          TEXT PRIMARY KEY,
	street_id   INTEGER NOT NULL,
	code        INTEGER NOT NULL,
	state       TEXT NOT NULL,
	status      JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_history_street ON status_history(street_id, recorded_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetGeobasePayload(ctx context.Context) (*GeobasePayload, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload, etag, fetched_at FROM geobase_cache ORDER BY fetched_at DESC LIMIT 1`,
	)

	var gp GeobasePayload
	err := row.Scan(&gp.Payload, &gp.ETag, &gp.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get geobase payload")
	}
	return &gp, nil
}

func (s *PostgresStore) SetGeobasePayload(ctx context.Context, payload []byte, etag string, fetchedAt time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM geobase_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear geobase cache")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geobase_cache (id, payload, etag, fetched_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), payload, etag, fetchedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: set geobase payload")
}

func (s *PostgresStore) SaveStreet(ctx context.Context, streetID int, displayName string) (*model.ResolvedStreet, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO streets (id, street_id, display_name, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (street_id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		id, streetID, displayName, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save street %d", streetID)
	}

	return &model.ResolvedStreet{
		ID:          id,
		StreetID:    streetID,
		DisplayName: displayName,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) ListStreets(ctx context.Context) ([]model.ResolvedStreet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, street_id, display_name, created_at FROM streets ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list streets")
	}
	defer rows.Close()

	var streets []model.ResolvedStreet
	for rows.Next() {
		var rs model.ResolvedStreet
		if err := rows.Scan(&rs.ID, &rs.StreetID, &rs.DisplayName, &rs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan street")
		}
		streets = append(streets, rs)
	}
	return streets, eris.Wrap(rows.Err(), "postgres: list streets iterate")
}

func (s *PostgresStore) RemoveStreet(ctx context.Context, streetID int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM streets WHERE street_id = $1`, streetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove street %d", streetID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("street not found: %d", streetID)
	}
	return nil
}

func (s *PostgresStore) RecordStatus(ctx context.Context, status model.SnowStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal status")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO status_history (id, street_id, code, state, status, recorded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), status.StreetID, int(status.Code), status.State, statusJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: record status")
}

func (s *PostgresStore) LatestStatus(ctx context.Context, streetID int) (*model.SnowStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT status FROM status_history WHERE street_id = $1 ORDER BY recorded_at DESC LIMIT 1`,
		streetID,
	)

	var statusJSON []byte
	err := row.Scan(&statusJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest status")
	}

	var status model.SnowStatus
	if err := json.Unmarshal(statusJSON, &status); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal status")
	}
	return &status, nil
}

func (s *PostgresStore) ListStatusHistory(ctx context.Context, streetID int, limit int) ([]model.SnowStatus, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT status FROM status_history WHERE street_id = $1 ORDER BY recorded_at DESC LIMIT $2`,
		streetID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list status history")
	}
	defer rows.Close()

	var statuses []model.SnowStatus
	for rows.Next() {
		var statusJSON []byte
		if err := rows.Scan(&statusJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status")
		}
		var status model.SnowStatus
		if err := json.Unmarshal(statusJSON, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal status")
		}
		statuses = append(statuses, status)
	}
	return statuses, eris.Wrap(rows.Err(), "postgres: list status history iterate")
}
