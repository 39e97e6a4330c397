package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kdl/internal/ir"
)

func admitAll(ir.RuleID) error { return nil }

func TestSchedule_ActivateLatches(t *testing.T) {
	var s schedule
	s.reset(3)

	require.NoError(t, s.activate([]ir.RuleID{0, 2}, admitAll))
	require.NoError(t, s.activate([]ir.RuleID{2, 0, 1}, admitAll))

	assert.Equal(t, []ir.RuleID{0, 2, 1}, s.back)
	assert.Empty(t, s.front, "activation only touches the next generation")
	assert.True(t, s.isActive(1))
}

func TestSchedule_AdvanceCarriesForward(t *testing.T) {
	var s schedule
	s.reset(4)
	require.NoError(t, s.activate([]ir.RuleID{0}, admitAll))
	s.advance()

	assert.Equal(t, []ir.RuleID{0}, s.front)
	assert.Equal(t, []ir.RuleID{0}, s.back)

	require.NoError(t, s.activate([]ir.RuleID{3}, admitAll))
	assert.Equal(t, []ir.RuleID{0}, s.front, "front is stable while a cycle runs")

	s.advance()
	assert.Equal(t, []ir.RuleID{0, 3}, s.front)
	assert.Equal(t, 2, s.size())

	s.advance()
	assert.Equal(t, []ir.RuleID{0, 3}, s.front, "nothing is ever removed")
}

func TestSchedule_AdmitVeto(t *testing.T) {
	var s schedule
	s.reset(2)
	veto := errors.New("full")

	err := s.activate([]ir.RuleID{0, 1}, func(id ir.RuleID) error {
		if id == 1 {
			return veto
		}
		return nil
	})
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []ir.RuleID{0}, s.back)
	assert.False(t, s.isActive(1), "a vetoed rule stays inactive")
}

func TestSchedule_ResetReusesBitset(t *testing.T) {
	var s schedule
	s.reset(130)
	require.NoError(t, s.activate([]ir.RuleID{129}, admitAll))
	assert.Len(t, s.active, 3)

	s.reset(64)
	assert.Len(t, s.active, 1)
	assert.Empty(t, s.back)

	s.reset(130)
	assert.False(t, s.isActive(129), "reset clears the latch")
}
