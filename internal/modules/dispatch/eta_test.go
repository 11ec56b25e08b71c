package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETAMinutes(t *testing.T) {
	cases := []struct {
		km   float64
		want int
	}{
		{0, 2},
		{0.2, 2},
		{0.3, 3},
		{1, 4},
		{15, 32},
		{10, 22},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ETAMinutes(c.km), "distance %.1f km", c.km)
	}
}

func TestTooFarError(t *testing.T) {
	err := error(&TooFarError{DistanceKm: 12.04, LimitKm: 10})
	assert.True(t, errors.Is(err, ErrTooFar))
	assert.Equal(t, "you are 12.0 km away; only helpers within 10 km can respond", err.Error())
}
