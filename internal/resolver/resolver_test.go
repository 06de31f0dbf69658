package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boreal-data/neige-cli/internal/geobase"
	"github.com/boreal-data/neige-cli/internal/model"
)

type fixedSource struct {
	snap *geobase.Snapshot
	err  error
}

func (f *fixedSource) Snapshot(context.Context) (*geobase.Snapshot, error) {
	return f.snap, f.err
}

func testResolver() *Resolver {
	segments := []model.StreetSegment{
		{ID: 10200162, Name: "Acadie", Side: model.SideLeft, AddressStart: 1000, AddressEnd: 1200, Borough: "Ahuntsic-Cartierville", Lat: 45.52, Lon: -73.65},
		{ID: 10200163, Name: "Acadie", Side: model.SideRight, AddressStart: 1001, AddressEnd: 1199, Borough: "Ahuntsic-Cartierville", Lat: 45.521, Lon: -73.649},
		{ID: 10200170, Name: "Acadie", Side: model.SideLeft, AddressStart: 0, AddressEnd: 0, Borough: "Saint-Laurent", Lat: 45.50, Lon: -73.68},
		{ID: 20100001, Name: "Saint-Denis", Side: model.SideLeft, AddressStart: 4000, AddressEnd: 4400, Borough: "Le Plateau-Mont-Royal", Lat: 45.525, Lon: -73.585},
		{ID: 20100002, Name: "Saint-Denis", Side: model.SideRight, AddressStart: 4001, AddressEnd: 4399, Borough: "Le Plateau-Mont-Royal", Lat: 45.526, Lon: -73.584},
		{ID: 30100001, Name: "Sherbrooke Ouest", Side: model.SideLeft, AddressStart: 1, AddressEnd: 999, Borough: "Ville-Marie", Lat: 45.50, Lon: -73.57},
	}
	snap := geobase.NewSnapshot(segments, time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC))
	return New(&fixedSource{snap: snap})
}

func TestSearchExact(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "Acadie", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Equal(t, "Acadie", m.Segment.Name)
		assert.Equal(t, scoreExact, m.Score)
	}
	// Equal scores order by borough, then left side before right.
	assert.Equal(t, 10200162, matches[0].Segment.ID)
	assert.Equal(t, 10200163, matches[1].Segment.ID)
	assert.Equal(t, 10200170, matches[2].Segment.ID)
}

func TestSearchCivicFilter(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "acadie", 1100)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// In-range segments carry the civic bonus and rank first; the
	// unbounded Saint-Laurent segment stays as a trailing fallback.
	assert.Equal(t, 10200162, matches[0].Segment.ID)
	assert.Equal(t, 10200163, matches[1].Segment.ID)
	assert.Equal(t, scoreExact+civicBonus, matches[0].Score)
	assert.Equal(t, scoreExact+civicBonus, matches[1].Score)
	assert.Equal(t, model.SideLeft, matches[0].Segment.Side)

	assert.Equal(t, 10200170, matches[2].Segment.ID)
	assert.True(t, matches[2].Segment.Unbounded())
	assert.Equal(t, scoreExact, matches[2].Score)
}

func TestSearchCivicUnboundedFallback(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "acadie", 5000)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 10200170, matches[0].Segment.ID)
	assert.True(t, matches[0].Segment.Unbounded())
}

func TestSearchCivicNoFallbackIsEmpty(t *testing.T) {
	t.Parallel()

	// Saint-Denis has only bounded segments, so a civic number outside
	// every range yields no results at all.
	r := testResolver()
	matches, err := r.Search(context.Background(), "saint-denis", 9999)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchAbbreviationAndAccents(t *testing.T) {
	t.Parallel()

	r := testResolver()
	for _, query := range []string{"St-Denis", "saint-denis", "rue Saint-Denis", "SAINT-DENIS"} {
		matches, err := r.Search(context.Background(), query, 0)
		require.NoError(t, err)
		require.Len(t, matches, 2, "query %q", query)
		assert.Equal(t, "Saint-Denis", matches[0].Segment.Name)
	}
}

func TestSearchParticles(t *testing.T) {
	t.Parallel()

	// "rue de l'Acadie" and "Acadie" are the same street.
	r := testResolver()
	matches, err := r.Search(context.Background(), "rue de l'Acadie", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, scoreExact, matches[0].Score)
	assert.Equal(t, "Acadie", matches[0].Segment.Name)
}

func TestSearchWordAndPrefix(t *testing.T) {
	t.Parallel()

	r := testResolver()

	matches, err := r.Search(context.Background(), "sherbrooke", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, scorePrefix, matches[0].Score)

	matches, err = r.Search(context.Background(), "ouest", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, scoreWord, matches[0].Score)
}

func TestSearchFuzzy(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "akadie", 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Acadie", matches[0].Segment.Name)
	assert.Less(t, matches[0].Score, scoreSubstring+1)
}

func TestSearchNoMatch(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "rue imaginaire de nulle part", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	r := testResolver()
	matches, err := r.Search(context.Background(), "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchDataUnavailable(t *testing.T) {
	t.Parallel()

	r := New(&fixedSource{err: geobase.ErrDataUnavailable})
	_, err := r.Search(context.Background(), "acadie", 0)
	assert.ErrorIs(t, err, geobase.ErrDataUnavailable)
}

func TestByID(t *testing.T) {
	t.Parallel()

	r := testResolver()
	seg, err := r.ByID(context.Background(), 10200162)
	require.NoError(t, err)
	require.NotNil(t, seg)
	assert.Equal(t, "Acadie", seg.Name)

	seg, err = r.ByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, seg)
}

func TestNearest(t *testing.T) {
	t.Parallel()

	r := testResolver()
	// A point right on the Plateau should rank Saint-Denis first.
	segs, err := r.Nearest(context.Background(), 45.525, -73.585, 2)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 20100001, segs[0].ID)
	assert.Equal(t, 20100002, segs[1].ID)
}
