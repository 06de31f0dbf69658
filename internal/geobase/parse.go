package geobase

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/model"
)

// feature is one geobase GeoJSON feature. Only the properties this system
// needs are decoded; the upstream carries many more.
type feature struct {
	Properties featureProps    `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// featureProps uses json.RawMessage for the numeric-ish fields because the
// upstream serializes them inconsistently (numbers in some exports, quoted
// strings in others).
type featureProps struct {
	CoteRueID json.RawMessage `json:"COTE_RUE_ID"`
	NomVoie   string          `json:"NOM_VOIE"`
	Cote      string          `json:"COTE"`
	Debut     json.RawMessage `json:"DEBUT_ADRESSE"`
	Fin       json.RawMessage `json:"FIN_ADRESSE"`
	NomArr    string          `json:"NOM_ARR"`
	Arr       string          `json:"ARR"`
	NomVille  string          `json:"NOM_VILLE"`
	Ville     string          `json:"VILLE"`
}

// ParseGeoJSON streams the geobase document and returns one StreetSegment
// per usable feature. Malformed features are skipped; only a document that
// yields zero usable records is an error for the caller to act on.
//
// city, when non-empty, keeps only features whose city attribute matches it
// (case-insensitive); features without a city attribute are always kept.
func ParseGeoJSON(r io.Reader, city string) ([]model.StreetSegment, error) {
	dec := json.NewDecoder(r)

	// Walk to the top-level "features" array without buffering the whole
	// document; the geobase runs to tens of thousands of features.
	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "geobase: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, eris.Errorf("geobase: expected object, got %v", tok)
	}

	var segments []model.StreetSegment
	var skipped int

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "geobase: read key")
		}
		key, _ := keyTok.(string)

		if key != "features" {
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return nil, eris.Wrapf(err, "geobase: skip %q", key)
			}
			continue
		}

		tok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "geobase: read features token")
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, eris.Errorf("geobase: features is not an array")
		}

		for dec.More() {
			var f feature
			if err := dec.Decode(&f); err != nil {
				return nil, eris.Wrap(err, "geobase: decode feature")
			}
			seg, ok := segmentFromFeature(f, city)
			if !ok {
				skipped++
				continue
			}
			segments = append(segments, seg)
		}

		if _, err := dec.Token(); err != nil {
			return nil, eris.Wrap(err, "geobase: read features close")
		}
	}

	if skipped > 0 {
		zap.L().Debug("geobase: skipped unusable features", zap.Int("skipped", skipped))
	}

	return segments, nil
}

func segmentFromFeature(f feature, city string) (model.StreetSegment, bool) {
	props := f.Properties

	id, ok := rawInt(props.CoteRueID)
	if !ok || id == 0 {
		return model.StreetSegment{}, false
	}

	name := strings.TrimSpace(props.NomVoie)
	if name == "" {
		return model.StreetSegment{}, false
	}

	segCity := props.NomVille
	if segCity == "" {
		segCity = props.Ville
	}
	if city != "" && segCity != "" && !strings.EqualFold(segCity, city) {
		return model.StreetSegment{}, false
	}

	borough := props.NomArr
	if borough == "" {
		borough = props.Arr
	}

	start, _ := rawInt(props.Debut)
	end, _ := rawInt(props.Fin)

	seg := model.StreetSegment{
		ID:           id,
		Name:         name,
		Side:         model.SideFromGeobase(props.Cote),
		AddressStart: start,
		AddressEnd:   end,
		Borough:      borough,
		City:         segCity,
	}

	if lat, lon, ok := centroid(f.Geometry); ok {
		seg.Lat, seg.Lon = lat, lon
	}

	return seg, true
}

// rawInt decodes a raw JSON value that may be a number, a quoted number, or
// null into an int.
func rawInt(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, false
	}
	// Some exports serialize ids as floats ("10200162.0").
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// centroid computes the average coordinate of a GeoJSON geometry, returned
// as (lat, lon). GeoJSON orders coordinates lon-first.
func centroid(raw json.RawMessage) (float64, float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, 0, false
	}

	var g geom.T
	if err := geomjson.Unmarshal(raw, &g); err != nil {
		return 0, 0, false
	}

	var coords []float64
	var stride int
	switch t := g.(type) {
	case *geom.Point:
		coords, stride = t.FlatCoords(), t.Stride()
	case *geom.LineString:
		coords, stride = t.FlatCoords(), t.Stride()
	case *geom.MultiLineString:
		coords, stride = t.FlatCoords(), t.Stride()
	default:
		return 0, 0, false
	}
	if stride < 2 || len(coords) < stride {
		return 0, 0, false
	}

	var sumX, sumY float64
	n := len(coords) / stride
	for i := 0; i < len(coords); i += stride {
		sumX += coords[i]
		sumY += coords[i+1]
	}
	return sumY / float64(n), sumX / float64(n), true
}
