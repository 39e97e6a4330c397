package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_FirstTickIsOne(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Now())

	assert.Equal(t, int64(1), c.Tick())
	assert.Equal(t, int64(2), c.Tick())
	assert.Equal(t, int64(2), c.Now(), "Now must not advance the clock")
}

func TestClock_Reset(t *testing.T) {
	c := NewClock()
	c.Tick()
	c.Tick()
	c.Reset()

	assert.Equal(t, int64(0), c.Now())
	assert.Equal(t, int64(1), c.Tick())
}

// Load restarts cycle numbering but firings keep counting.
func TestMachine_ClocksAcrossLoad(t *testing.T) {
	m, log := tracedMachine(t)

	require.NoError(t, m.Load("( ? a)"))
	runCycles(t, m, 2)
	assert.Equal(t, int64(2), m.Cycle())

	require.NoError(t, m.Load("( ? b)"))
	assert.Equal(t, int64(0), m.Cycle(), "Load resets the cycle clock")
	runCycles(t, m, 1)
	assert.Equal(t, int64(1), m.Cycle())

	require.Len(t, log.Firings, 3)
	for i, f := range log.Firings {
		assert.Equal(t, int64(i+1), f.Seq, "seq is machine-wide")
	}
	assert.Equal(t, []int64{1, 2, 1}, log.Cycles)
}

// Cycle() may be read from another goroutine while Run advances the cycle
// clock.
func TestClock_ConcurrentReaders(t *testing.T) {
	c := NewClock()
	const ticks = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < ticks; i++ {
			c.Tick()
		}
	}()
	go func() {
		defer wg.Done()
		last := int64(0)
		for i := 0; i < ticks; i++ {
			cur := c.Now()
			assert.GreaterOrEqual(t, cur, last, "clock went backwards")
			last = cur
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(ticks), c.Now())
}
