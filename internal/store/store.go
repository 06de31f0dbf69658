package store

import (
	"context"
	"time"

	"github.com/boreal-data/neige-cli/internal/model"
)

// GeobasePayload is the durably cached raw geobase document, kept so a
// process restart within the freshness horizon does not re-download.
type GeobasePayload struct {
	Payload   []byte
	ETag      string
	FetchedAt time.Time
}

// Store defines the persistence interface shared by the sqlite and postgres
// backends.
type Store interface {
	// Geobase payload cache
	GetGeobasePayload(ctx context.Context) (*GeobasePayload, error)
	SetGeobasePayload(ctx context.Context, payload []byte, etag string, fetchedAt time.Time) error

	// Resolved streets
	SaveStreet(ctx context.Context, streetID int, displayName string) (*model.ResolvedStreet, error)
	ListStreets(ctx context.Context) ([]model.ResolvedStreet, error)
	RemoveStreet(ctx context.Context, streetID int) error

	// Status history
	RecordStatus(ctx context.Context, status model.SnowStatus) error
	LatestStatus(ctx context.Context, streetID int) (*model.SnowStatus, error)
	ListStatusHistory(ctx context.Context, streetID int, limit int) ([]model.SnowStatus, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
