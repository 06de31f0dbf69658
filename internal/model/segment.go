package model

import (
	"fmt"
	"time"
)

// Side identifies which side of the street a segment covers.
type Side string

const (
	SideLeft    Side = "left"
	SideRight   Side = "right"
	SideUnknown Side = ""
)

// SideFromGeobase maps the geobase COTE attribute to a Side.
func SideFromGeobase(cote string) Side {
	switch cote {
	case "Gauche":
		return SideLeft
	case "Droit":
		return SideRight
	default:
		return SideUnknown
	}
}

// StreetSegment is one side of one block of a street, the atomic unit the
// city schedules snow removal against. Segments are immutable once loaded
// from the geobase; a refresh replaces the whole set.
type StreetSegment struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Side         Side    `json:"side"`
	AddressStart int     `json:"address_start"`
	AddressEnd   int     `json:"address_end"`
	Borough      string  `json:"borough,omitempty"`
	City         string  `json:"city,omitempty"`
	Lat          float64 `json:"lat,omitempty"`
	Lon          float64 `json:"lon,omitempty"`
}

// Unbounded reports whether the segment carries no usable address range.
// The geobase encodes this as start=end=0.
func (s StreetSegment) Unbounded() bool {
	return s.AddressStart == 0 && s.AddressEnd == 0
}

// ContainsCivic reports whether the civic number falls inside the segment's
// address range. Unbounded segments match nothing here; callers decide
// whether to keep them as fallbacks.
func (s StreetSegment) ContainsCivic(civic int) bool {
	if s.Unbounded() {
		return false
	}
	// A zero endpoint means the range is open on that side: start-only
	// reads "start and up", end-only reads "up to end".
	if s.AddressEnd == 0 {
		return civic >= s.AddressStart
	}
	if s.AddressStart == 0 {
		return civic <= s.AddressEnd
	}
	lo, hi := s.AddressStart, s.AddressEnd
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo <= civic && civic <= hi
}

// AddressRange returns a human-readable address range.
func (s StreetSegment) AddressRange() string {
	switch {
	case s.AddressStart != 0 && s.AddressEnd != 0:
		return fmt.Sprintf("%d-%d", s.AddressStart, s.AddressEnd)
	case s.AddressStart != 0:
		return fmt.Sprintf("%d+", s.AddressStart)
	case s.AddressEnd != 0:
		return fmt.Sprintf("up to %d", s.AddressEnd)
	default:
		return "N/A"
	}
}

// DisplayName returns the label shown when picking a segment,
// e.g. "Acadie (1000-1200, L)".
func (s StreetSegment) DisplayName() string {
	side := "?"
	switch s.Side {
	case SideLeft:
		side = "L"
	case SideRight:
		side = "R"
	}
	return fmt.Sprintf("%s (%s, %s)", s.Name, s.AddressRange(), side)
}

// ResolvedStreet is a user's chosen street segment, persisted once at setup
// time and read-only afterward. Status polling is keyed by StreetID.
type ResolvedStreet struct {
	ID          string    `json:"id"`
	StreetID    int       `json:"street_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
