package geobase

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/model"
)

// ParseShapefile reads street segments from a geobase shapefile export.
// The city distributes the geobase both as GeoJSON and as a shapefile; the
// attribute names are the same in both.
func ParseShapefile(path string, city string) ([]model.StreetSegment, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geobase: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	// DBF numeric attributes sometimes carry a decimal part.
	attrInt := func(name string) int {
		s := attr(name)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f)
		}
		return 0
	}

	var segments []model.StreetSegment
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		id := attrInt("COTE_RUE_ID")
		if id == 0 {
			skipped++
			continue
		}
		name := attr("NOM_VOIE")
		if name == "" {
			skipped++
			continue
		}

		segCity := attr("NOM_VILLE")
		if segCity == "" {
			segCity = attr("VILLE")
		}
		if city != "" && segCity != "" && !strings.EqualFold(segCity, city) {
			continue
		}

		borough := attr("NOM_ARR")
		if borough == "" {
			borough = attr("ARR")
		}

		start := attrInt("DEBUT_ADRESSE")
		end := attrInt("FIN_ADRESSE")

		seg := model.StreetSegment{
			ID:           id,
			Name:         name,
			Side:         model.SideFromGeobase(attr("COTE")),
			AddressStart: start,
			AddressEnd:   end,
			Borough:      borough,
			City:         segCity,
		}

		if lat, lon, ok := shapeCentroid(shape); ok {
			seg.Lat, seg.Lon = lat, lon
		}

		segments = append(segments, seg)
	}

	if skipped > 0 {
		zap.L().Debug("geobase: skipped shapefile records", zap.Int("skipped", skipped))
	}

	return segments, nil
}

// shapeCentroid averages a polyline's points into (lat, lon).
func shapeCentroid(shape shp.Shape) (float64, float64, bool) {
	pl, ok := shape.(*shp.PolyLine)
	if !ok || len(pl.Points) == 0 {
		return 0, 0, false
	}
	var sumX, sumY float64
	for _, p := range pl.Points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(pl.Points))
	return sumY / n, sumX / n, true
}
