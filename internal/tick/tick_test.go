package tick

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappingDiff(t *testing.T) {
	// For all a, b in [0, 256) and d < 256: if b = a + d mod 256, then
	// diff(b, a) == d. Exercised directly against the wrapping uint8
	// arithmetic rather than through the live ticker, since the property
	// is about the arithmetic, not the clock.
	for a := 0; a < 256; a += 7 {
		for d := 0; d < 256; d += 13 {
			b := uint8(a + d)
			got := b - uint8(a)
			assert.Equal(t, uint8(d), got)
		}
	}
}

func TestFastNowAdvances(t *testing.T) {
	s := NewSource()
	defer s.Close()

	start := s.FastNow()
	s.DelayFast(3)
	assert.GreaterOrEqual(t, s.FastDiff(start), uint8(3))
}

func TestSlowAdvancesOnFastWrap(t *testing.T) {
	s := NewSource()
	defer s.Close()

	start := s.SlowNow()
	s.DelayFast(255)
	s.DelayFast(10) // push past one full fast wrap
	assert.GreaterOrEqual(t, s.SlowDiff(start), uint8(1))
}
