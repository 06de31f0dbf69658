// Package resolver turns free-form street names into ranked geobase
// segments. Matching is accent- and abbreviation-insensitive: both the
// query and the dataset names pass through the same canonical form before
// comparison.
package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// abbreviations maps the short forms common in Montreal addresses to the
// full words the geobase uses. Keys are matched against whole
// space-delimited tokens of the already-lowercased name.
var abbreviations = map[string]string{
	"st-":   "saint-",
	"ste-":  "sainte-",
	"st.":   "saint",
	"ste.":  "sainte",
	"av.":   "avenue",
	"av":    "avenue",
	"ave":   "avenue",
	"ave.":  "avenue",
	"boul.": "boulevard",
	"boul":  "boulevard",
	"blvd":  "boulevard",
	"blvd.": "boulevard",
	"ch.":   "chemin",
	"ch":    "chemin",
	"pl.":   "place",
	"mtee":  "montée",
}

var stripAccents = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// particles are the filler words dropped from canonical names. The
// geobase stores "Acadie" where an address reads "rue de l'Acadie".
var particles = map[string]bool{
	"rue": true,
	"de":  true,
	"du":  true,
	"des": true,
	"la":  true,
	"le":  true,
}

// Canonical reduces a street name to the form used for matching:
// lowercased, accents stripped, abbreviations expanded, the generic "rue"
// and French particles dropped, and whitespace collapsed.
func Canonical(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(stripAccents, s); err == nil {
		s = folded
	}

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		// "st-denis" style prefixes live inside a token, not as a
		// token of their own.
		for short, full := range abbreviations {
			if strings.HasSuffix(short, "-") && strings.HasPrefix(f, short) {
				f = full + f[len(short):]
				break
			}
		}
		if full, ok := abbreviations[f]; ok {
			f = full
		}
		if strings.HasPrefix(f, "l'") || strings.HasPrefix(f, "d'") {
			f = f[2:]
		}
		if particles[f] || f == "" {
			continue
		}
		out = append(out, f)
	}

	// Expansion can reintroduce accents ("montée"); fold once more so the
	// result is stable.
	s = strings.Join(out, " ")
	if folded, _, err := transform.String(stripAccents, s); err == nil {
		s = folded
	}
	return s
}
