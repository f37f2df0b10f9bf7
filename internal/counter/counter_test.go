package counter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/hal"
)

func newStore(t *testing.T) (*counter.Store, *hal.Sim) {
	t.Helper()
	sim, _ := hal.NewSim(nil)
	return counter.New(sim), sim
}

func TestVirginReadsAsSentinel(t *testing.T) {
	s, _ := newStore(t)
	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, counter.Virgin, v)
}

func TestDecrementFromVirginUsesStartvalue(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Decrement(5))
	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), v)
}

func TestMonotoneNonIncreasing(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Decrement(3))
	prev, err := s.Read()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Decrement(3))
		cur, err := s.Read()
		require.NoError(t, err)
		assert.LessOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, uint16(3))
		prev = cur
	}
}

func TestSaturatesAtZero(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Decrement(1))
	v, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(0), v)

	require.NoError(t, s.Decrement(1)) // no-op
	v, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
}

func TestTornWriteTolerance(t *testing.T) {
	s, sim := newStore(t)
	require.NoError(t, s.Write(4))

	// Simulate a crash between slot writes: corrupt slot 2's complement
	// half so it reads as invalid, leaving slots 0 and 1 intact at the
	// old value and slot 2 showing garbage.
	require.NoError(t, sim.NVMWriteWord(2*4+2, 0x0000))

	v, err := s.Read()
	require.NoError(t, err)
	assert.LessOrEqual(t, v, uint16(4))

	require.NoError(t, s.Decrement(4))
	v, err = s.Read()
	require.NoError(t, err)
	assert.LessOrEqual(t, v, uint16(3))
	assert.GreaterOrEqual(t, v, uint16(0))
}

func TestScriptCounterFlow(t *testing.T) {
	// S6 from spec.md §8: virgin store, startvalue 5.
	s, _ := newStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Decrement(5))
	}
	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)

	require.NoError(t, s.Decrement(5)) // sixth run, still a no-op
	v, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
}
