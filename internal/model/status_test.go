package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code StatusCode
		want string
	}{
		{StatusSnowed, "snowed"},
		{StatusCleared, "cleared"},
		{StatusScheduled, "scheduled"},
		{StatusRescheduled, "rescheduled"},
		{StatusDeferred, "deferred"},
		{StatusInProgress, "in_progress"},
		{StatusClear, "clear"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.State())
			assert.True(t, tt.code.Known())
		})
	}
}

func TestStatusCodeUnknown(t *testing.T) {
	t.Parallel()

	// Unrecognized codes pass through rather than failing.
	code := StatusCode(99)
	assert.False(t, code.Known())
	assert.Equal(t, "unknown", code.State())
	assert.Equal(t, 99, int(code))
}

func TestSnowStatusActive(t *testing.T) {
	t.Parallel()

	active := []StatusCode{StatusScheduled, StatusRescheduled, StatusInProgress}
	for _, c := range active {
		s := SnowStatus{Code: c}
		assert.True(t, s.Active(), "code %d", c)
		assert.True(t, s.ParkingRestricted(), "code %d", c)
	}

	inactive := []StatusCode{StatusSnowed, StatusCleared, StatusDeferred, StatusClear, StatusCode(99)}
	for _, c := range inactive {
		s := SnowStatus{Code: c}
		assert.False(t, s.Active(), "code %d", c)
	}
}
