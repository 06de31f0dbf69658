package geobase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boreal-data/neige-cli/internal/fetcher"
	"github.com/boreal-data/neige-cli/internal/model"
	"github.com/boreal-data/neige-cli/internal/observability"
	"github.com/boreal-data/neige-cli/internal/store"
)

// ErrDataUnavailable reports that the geobase could not be fetched or parsed
// and no usable snapshot exists to fall back on. Callers use it to tell
// "could not look anything up" apart from an ordinary empty search result.
var ErrDataUnavailable = eris.New("geobase data unavailable")

// Snapshot is one fully-formed, immutable load of the geobase. It is
// replaced wholesale on refresh, never edited in place, so readers can hold
// it without locking.
type Snapshot struct {
	Segments  []model.StreetSegment
	FetchedAt time.Time

	byID map[int]int
}

// NewSnapshot builds an indexed snapshot over the given segments.
func NewSnapshot(segments []model.StreetSegment, fetchedAt time.Time) *Snapshot {
	byID := make(map[int]int, len(segments))
	for i, seg := range segments {
		byID[seg.ID] = i
	}
	return &Snapshot{Segments: segments, FetchedAt: fetchedAt, byID: byID}
}

// ByID returns the segment with the given identifier, or nil.
func (s *Snapshot) ByID(id int) *model.StreetSegment {
	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	return &s.Segments[i]
}

// Options configures a Store.
type Options struct {
	Fetcher fetcher.Fetcher
	Persist store.Store     // optional durable payload cache
	Clock   clockwork.Clock // defaults to the real clock
	URL     string
	TTL     time.Duration // freshness horizon, defaults to 24h
	City    string        // optional municipality filter
	Metrics *observability.Metrics
}

// Store owns the cached geobase snapshot: download, durable caching,
// TTL-based reuse, and single-flight refresh.
type Store struct {
	fetcher fetcher.Fetcher
	persist store.Store
	clock   clockwork.Clock
	url     string
	ttl     time.Duration
	city    string
	metrics *observability.Metrics

	mu   sync.RWMutex
	snap *Snapshot
	etag string

	sf singleflight.Group
}

// New creates a Store. The snapshot is loaded lazily on first use.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Store{
		fetcher: opts.Fetcher,
		persist: opts.Persist,
		clock:   opts.Clock,
		url:     opts.URL,
		ttl:     opts.TTL,
		city:    opts.City,
		metrics: opts.Metrics,
	}
}

// Snapshot returns the current snapshot, refreshing it first when it is
// missing or older than the freshness horizon. When a refresh fails but a
// stale snapshot exists, the stale snapshot is served and the failure only
// logged.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := s.current(); snap != nil && s.fresh(snap) {
		return snap, nil
	}

	snap, err := s.ensure(ctx, false)
	if err != nil {
		if stale := s.current(); stale != nil {
			zap.L().Warn("geobase refresh failed, serving stale snapshot",
				zap.Time("fetched_at", stale.FetchedAt),
				zap.Error(err),
			)
			return stale, nil
		}
		return nil, err
	}
	return snap, nil
}

// Refresh forces a download and snapshot swap regardless of freshness. On
// failure the previous snapshot, if any, remains in place and servable.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	return s.ensure(ctx, true)
}

func (s *Store) current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Store) fresh(snap *Snapshot) bool {
	return s.clock.Since(snap.FetchedAt) < s.ttl
}

// ensure serializes snapshot loading: concurrent callers during a cold cache
// or refresh join the in-flight load instead of duplicating the download.
func (s *Store) ensure(ctx context.Context, force bool) (*Snapshot, error) {
	v, err, _ := s.sf.Do("refresh", func() (any, error) {
		if !force {
			// Re-check under the flight: an earlier caller may have
			// already installed a fresh snapshot.
			if snap := s.current(); snap != nil && s.fresh(snap) {
				return snap, nil
			}
			if snap := s.loadDurable(ctx); snap != nil {
				return snap, nil
			}
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// loadDurable restores a snapshot from the persisted payload when it is
// still within the freshness horizon. Any failure just falls through to a
// network refresh.
func (s *Store) loadDurable(ctx context.Context) *Snapshot {
	if s.persist == nil {
		return nil
	}

	gp, err := s.persist.GetGeobasePayload(ctx)
	if err != nil {
		zap.L().Warn("geobase: durable cache read failed", zap.Error(err))
		return nil
	}
	if gp == nil || s.clock.Since(gp.FetchedAt) >= s.ttl {
		return nil
	}

	segments, err := ParseGeoJSON(bytes.NewReader(gp.Payload), s.city)
	if err != nil || len(segments) == 0 {
		zap.L().Warn("geobase: durable cache unusable", zap.Error(err))
		return nil
	}

	snap := NewSnapshot(segments, gp.FetchedAt)
	s.install(snap, gp.ETag)
	zap.L().Info("geobase: restored snapshot from durable cache",
		zap.Int("segments", len(segments)),
		zap.Time("fetched_at", gp.FetchedAt),
	)
	return snap
}

func (s *Store) refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	etag := s.etag
	prior := s.snap
	s.mu.RUnlock()

	started := s.clock.Now()

	body, newETag, changed, err := s.fetcher.DownloadIfChanged(ctx, s.url, etag)
	if err != nil {
		s.observeRefresh("error", started)
		return nil, eris.Wrapf(ErrDataUnavailable, "download geobase: %v", err)
	}

	now := s.clock.Now().UTC()

	// 304: the upstream document is unchanged, so the current segments are
	// still valid; only the freshness stamp moves.
	if !changed {
		if prior == nil {
			s.observeRefresh("error", started)
			return nil, eris.Wrap(ErrDataUnavailable, "geobase not modified but no snapshot held")
		}
		snap := NewSnapshot(prior.Segments, now)
		s.install(snap, etag)
		s.persistPayload(ctx, nil, etag, now)
		s.observeRefresh("not_modified", started)
		return snap, nil
	}
	defer body.Close() //nolint:errcheck

	payload, err := io.ReadAll(body)
	if err != nil {
		s.observeRefresh("error", started)
		return nil, eris.Wrapf(ErrDataUnavailable, "read geobase: %v", err)
	}

	segments, err := ParseGeoJSON(bytes.NewReader(payload), s.city)
	if err != nil {
		s.observeRefresh("error", started)
		return nil, eris.Wrapf(ErrDataUnavailable, "parse geobase: %v", err)
	}
	if len(segments) == 0 {
		s.observeRefresh("error", started)
		return nil, eris.Wrap(ErrDataUnavailable, "geobase yielded zero usable records")
	}

	snap := NewSnapshot(segments, now)
	s.install(snap, newETag)
	s.persistPayload(ctx, payload, newETag, now)
	s.observeRefresh("success", started)

	zap.L().Info("geobase: refreshed snapshot",
		zap.Int("segments", len(segments)),
		zap.String("etag", newETag),
	)
	return snap, nil
}

func (s *Store) observeRefresh(outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.GeobaseRefreshes.WithLabelValues(outcome).Inc()
	s.metrics.GeobaseRefreshDuration.Observe(s.clock.Since(started).Seconds())
	if snap := s.current(); snap != nil {
		s.metrics.GeobaseSegments.Set(float64(len(snap.Segments)))
		s.metrics.GeobaseSnapshotAge.Set(s.clock.Since(snap.FetchedAt).Seconds())
	}
}

// install atomically swaps in the new snapshot.
func (s *Store) install(snap *Snapshot, etag string) {
	s.mu.Lock()
	s.snap = snap
	s.etag = etag
	s.mu.Unlock()
}

// persistPayload writes the payload to durable storage, best-effort. A nil
// payload only re-stamps the freshness of the already-stored one.
func (s *Store) persistPayload(ctx context.Context, payload []byte, etag string, fetchedAt time.Time) {
	if s.persist == nil {
		return
	}
	if payload == nil {
		gp, err := s.persist.GetGeobasePayload(ctx)
		if err != nil || gp == nil {
			return
		}
		payload = gp.Payload
	}
	if err := s.persist.SetGeobasePayload(ctx, payload, etag, fetchedAt); err != nil {
		zap.L().Warn("geobase: durable cache write failed", zap.Error(err))
	}
}

// LoadShapefile replaces the snapshot with segments read from a local
// geobase shapefile export. Useful for offline bootstrap; the snapshot is
// stamped with the current time so the TTL applies as usual.
func (s *Store) LoadShapefile(path string) (*Snapshot, error) {
	segments, err := ParseShapefile(path, s.city)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "shapefile yielded zero usable records")
	}
	snap := NewSnapshot(segments, s.clock.Now().UTC())
	s.install(snap, "")
	return snap, nil
}
