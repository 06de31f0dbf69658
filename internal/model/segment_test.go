package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideFromGeobase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SideLeft, SideFromGeobase("Gauche"))
	assert.Equal(t, SideRight, SideFromGeobase("Droit"))
	assert.Equal(t, SideUnknown, SideFromGeobase("Milieu"))
	assert.Equal(t, SideUnknown, SideFromGeobase(""))
}

func TestContainsCivic(t *testing.T) {
	t.Parallel()

	seg := StreetSegment{ID: 10200162, Name: "Acadie", AddressStart: 1000, AddressEnd: 1200}

	assert.True(t, seg.ContainsCivic(1000))
	assert.True(t, seg.ContainsCivic(1100))
	assert.True(t, seg.ContainsCivic(1200))
	assert.False(t, seg.ContainsCivic(999))
	assert.False(t, seg.ContainsCivic(5000))
}

func TestContainsCivicOpenRange(t *testing.T) {
	t.Parallel()

	// A zero endpoint opens the range on that side, matching what
	// AddressRange renders as "1000+" and "up to 1200".
	startOnly := StreetSegment{AddressStart: 1000}
	assert.True(t, startOnly.ContainsCivic(1000))
	assert.True(t, startOnly.ContainsCivic(1100))
	assert.True(t, startOnly.ContainsCivic(99999))
	assert.False(t, startOnly.ContainsCivic(500))

	endOnly := StreetSegment{AddressEnd: 1200}
	assert.True(t, endOnly.ContainsCivic(1))
	assert.True(t, endOnly.ContainsCivic(1200))
	assert.False(t, endOnly.ContainsCivic(1300))
}

func TestContainsCivicInvertedRange(t *testing.T) {
	t.Parallel()

	// Some geobase records carry start > end; the range still applies.
	seg := StreetSegment{AddressStart: 1200, AddressEnd: 1000}
	assert.True(t, seg.ContainsCivic(1100))
	assert.False(t, seg.ContainsCivic(1300))
}

func TestUnbounded(t *testing.T) {
	t.Parallel()

	seg := StreetSegment{}
	assert.True(t, seg.Unbounded())
	assert.False(t, seg.ContainsCivic(0))

	seg.AddressStart = 1
	assert.False(t, seg.Unbounded())
}

func TestAddressRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seg  StreetSegment
		want string
	}{
		{"both", StreetSegment{AddressStart: 1000, AddressEnd: 1200}, "1000-1200"},
		{"start only", StreetSegment{AddressStart: 1000}, "1000+"},
		{"end only", StreetSegment{AddressEnd: 1200}, "up to 1200"},
		{"unbounded", StreetSegment{}, "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.seg.AddressRange())
		})
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	seg := StreetSegment{Name: "Acadie", Side: SideLeft, AddressStart: 1000, AddressEnd: 1200}
	assert.Equal(t, "Acadie (1000-1200, L)", seg.DisplayName())

	seg.Side = SideRight
	assert.Equal(t, "Acadie (1000-1200, R)", seg.DisplayName())

	seg.Side = SideUnknown
	assert.Equal(t, "Acadie (1000-1200, ?)", seg.DisplayName())
}
