package resolver

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/boreal-data/neige-cli/internal/geobase"
	"github.com/boreal-data/neige-cli/internal/model"
)

// Score tiers. A civic-number hit on a bounded segment adds civicBonus on
// top of the name tier, so a ranged match always outranks its unbounded
// siblings.
const (
	scoreExact     = 100
	scorePrefix    = 80
	scoreWord      = 60
	scoreSubstring = 40
	civicBonus     = 20

	// Below this a fuzzy candidate is noise, not a typo.
	minFuzzySimilarity = 0.72
	maxResults         = 25
)

// Match is one ranked search hit.
type Match struct {
	Segment model.StreetSegment
	Score   int
}

// SnapshotSource yields the current geobase snapshot. *geobase.Store
// satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*geobase.Snapshot, error)
}

// Resolver answers street lookups against the current geobase snapshot.
type Resolver struct {
	geobase SnapshotSource
}

func New(src SnapshotSource) *Resolver {
	return &Resolver{geobase: src}
}

// Search returns segments matching the given name, best first. A civic
// number of zero means "no number given": every name match is returned.
// With a civic number, segments whose address range contains it rank
// first, unbounded segments of matching streets follow as fallbacks, and
// out-of-range bounded segments are dropped. Returns
// geobase.ErrDataUnavailable when no snapshot can be obtained.
func (r *Resolver) Search(ctx context.Context, name string, civic int) ([]Match, error) {
	snap, err := r.geobase.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	query := Canonical(name)
	if query == "" {
		return nil, nil
	}
	queryWords := strings.Fields(query)

	var matches []Match
	for _, seg := range snap.Segments {
		score := nameScore(query, queryWords, Canonical(seg.Name))
		if score == 0 {
			continue
		}
		matches = append(matches, Match{Segment: seg, Score: score})
	}

	if civic > 0 {
		matches = filterCivic(matches, civic)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return lessMatch(matches[i], matches[j])
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// ByID returns the segment with the given identifier, or nil when the
// identifier is unknown to the current snapshot.
func (r *Resolver) ByID(ctx context.Context, id int) (*model.StreetSegment, error) {
	snap, err := r.geobase.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ByID(id), nil
}

// Nearest returns up to limit segments ordered by distance from the given
// point, using each segment's geometry centroid. Segments without a
// centroid are skipped.
func (r *Resolver) Nearest(ctx context.Context, lat, lon float64, limit int) ([]model.StreetSegment, error) {
	snap, err := r.geobase.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	type candidate struct {
		seg  model.StreetSegment
		dist float64
	}
	var cands []candidate
	for _, seg := range snap.Segments {
		if seg.Lat == 0 && seg.Lon == 0 {
			continue
		}
		cands = append(cands, candidate{seg, haversineKm(lat, lon, seg.Lat, seg.Lon)})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

	if len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]model.StreetSegment, len(cands))
	for i, c := range cands {
		out[i] = c.seg
	}
	return out, nil
}

func nameScore(query string, queryWords []string, canonical string) int {
	if canonical == "" {
		return 0
	}
	if canonical == query {
		return scoreExact
	}
	if strings.HasPrefix(canonical, query) {
		return scorePrefix
	}
	words := strings.Fields(canonical)
	if containsAll(words, queryWords) {
		return scoreWord
	}
	if strings.Contains(canonical, query) {
		return scoreSubstring
	}
	if sim := levenshtein.Similarity(query, canonical, nil); sim >= minFuzzySimilarity {
		return int(sim * float64(scoreSubstring))
	}
	return 0
}

func containsAll(words, queryWords []string) bool {
	for _, q := range queryWords {
		found := false
		for _, w := range words {
			if w == q {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// filterCivic drops segments whose bounded address range excludes the
// civic number. In-range segments get the civic bonus so they rank
// above unbounded (0,0) segments, which are always retained as
// fallback candidates for streets with missing range data.
func filterCivic(matches []Match, civic int) []Match {
	var kept []Match
	for _, m := range matches {
		switch {
		case m.Segment.ContainsCivic(civic):
			m.Score += civicBonus
			kept = append(kept, m)
		case m.Segment.Unbounded():
			kept = append(kept, m)
		}
	}
	return kept
}

// lessMatch orders by score, then borough, then side with left before
// right, then identifier, so equal-score results come out stable.
func lessMatch(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Segment.Borough != b.Segment.Borough {
		return a.Segment.Borough < b.Segment.Borough
	}
	if a.Segment.Side != b.Segment.Side {
		return sideRank(a.Segment.Side) < sideRank(b.Segment.Side)
	}
	return a.Segment.ID < b.Segment.ID
}

func sideRank(s model.Side) int {
	switch s {
	case model.SideLeft:
		return 0
	case model.SideRight:
		return 1
	default:
		return 2
	}
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
