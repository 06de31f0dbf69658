package geobase

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-data/neige-cli/internal/store"
)

// stubFetcher serves canned payloads and counts downloads.
type stubFetcher struct {
	mu      sync.Mutex
	payload string
	etag    string
	err     error
	calls   int32
}

func (f *stubFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	rc, _, _, err := f.DownloadIfChanged(ctx, url, "")
	return rc, err
}

func (f *stubFetcher) DownloadIfChanged(_ context.Context, _ string, etag string) (io.ReadCloser, string, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", false, f.err
	}
	if etag != "" && etag == f.etag {
		return nil, f.etag, false, nil
	}
	return io.NopCloser(strings.NewReader(f.payload)), f.etag, true, nil
}

func (f *stubFetcher) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func (f *stubFetcher) set(payload, etag string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload, f.etag, f.err = payload, etag, err
}

func newTestStore(t *testing.T, f *stubFetcher, clock clockwork.Clock, persist store.Store) *Store {
	t.Helper()
	return New(Options{
		Fetcher: f,
		Persist: persist,
		Clock:   clock,
		URL:     "https://example.test/gbdouble.json",
		TTL:     24 * time.Hour,
	})
}

func TestSnapshotDownloadsOnceWithinTTL(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	s := newTestStore(t, f, clock, nil)

	ctx := context.Background()
	first, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, first.Segments, 3)
	assert.Equal(t, 1, f.callCount())

	// Repeated reads inside the freshness horizon reuse the snapshot.
	clock.Advance(23 * time.Hour)
	for i := 0; i < 5; i++ {
		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		assert.Same(t, first, snap)
	}
	assert.Equal(t, 1, f.callCount())

	// Crossing the horizon triggers exactly one more download.
	clock.Advance(2 * time.Hour)
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, snap)
	assert.Equal(t, 2, f.callCount())
}

func TestSnapshotByID(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON}
	s := newTestStore(t, f, clockwork.NewFakeClock(), nil)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	seg := snap.ByID(10200162)
	require.NotNil(t, seg)
	assert.Equal(t, "Acadie", seg.Name)
	assert.Nil(t, snap.ByID(999999))
}

func TestSnapshotFailureWithoutPrior(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{err: errors.New("connection refused")}
	s := newTestStore(t, f, clockwork.NewFakeClock(), nil)

	_, err := s.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestSnapshotServesStaleOnFailure(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	s := newTestStore(t, f, clock, nil)

	ctx := context.Background()
	first, err := s.Snapshot(ctx)
	require.NoError(t, err)

	// Expired snapshot plus a failing upstream: the stale data still serves.
	clock.Advance(30 * time.Hour)
	f.set("", "", errors.New("HTTP 500"))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, snap)

	// Refresh, by contrast, always reports the failure.
	_, err = s.Refresh(ctx)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.Same(t, first, s.current())
}

func TestRefreshZeroRecordsKeepsPriorSnapshot(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON}
	s := newTestStore(t, f, clockwork.NewFakeClock(), nil)

	ctx := context.Background()
	first, err := s.Refresh(ctx)
	require.NoError(t, err)

	f.set(`{"type":"FeatureCollection","features":[]}`, "", nil)
	_, err = s.Refresh(ctx)
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Same(t, first, s.current())
}

func TestRefreshNotModifiedRestampsSnapshot(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON, etag: `"v1"`}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	s := newTestStore(t, f, clock, nil)

	ctx := context.Background()
	first, err := s.Refresh(ctx)
	require.NoError(t, err)

	// Upstream still serves the same entity tag, so the segments are reused
	// and only the freshness stamp moves.
	clock.Advance(25 * time.Hour)
	second, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, len(first.Segments), len(second.Segments))
	assert.True(t, second.FetchedAt.After(first.FetchedAt))
	assert.Equal(t, 2, f.callCount())
}

func TestConcurrentSnapshotSingleDownload(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{payload: sampleGeoJSON}
	s := newTestStore(t, f, clockwork.NewFakeClock(), nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Snapshot(ctx)
			assert.NoError(t, err)
			assert.Len(t, snap.Segments, 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.callCount())
}

func TestSnapshotRestoresFromDurableCache(t *testing.T) {
	t.Parallel()

	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "neige.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	f := &stubFetcher{payload: sampleGeoJSON, etag: `"v1"`}

	// First store downloads and persists the payload.
	s1 := newTestStore(t, f, clock, db)
	_, err = s1.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.callCount())

	// A fresh store over the same database restores without downloading.
	s2 := newTestStore(t, f, clock, db)
	snap, err := s2.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Segments, 3)
	assert.Equal(t, 1, f.callCount())

	// Once the persisted payload ages out, the network is hit again.
	clock.Advance(25 * time.Hour)
	s3 := newTestStore(t, f, clock, db)
	_, err = s3.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
}
