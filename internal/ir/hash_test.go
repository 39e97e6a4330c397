package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleProgram builds ( x > 1 ? print [big] :: ( ? done ) ) by hand.
func sampleProgram(pos int) *Program {
	return &Program{
		Rules: []Rule{
			{
				Guard: Compute{
					{Code: OpPushVar, Name: "x", Pos: pos},
					{Code: OpPushInt, Value: Int(1), Pos: pos + 4},
					{Code: OpGth, Pos: pos + 2},
				},
				Action: Action{
					Verb:   "print",
					Params: []Compute{{{Code: OpPushString, Value: Str("big"), Pos: pos + 14}}},
					Child:  []RuleID{1},
				},
				Pos: pos,
			},
			{Action: Action{Verb: "done"}},
		},
		Root: []RuleID{0},
	}
}

func TestProgramHashDeterminism(t *testing.T) {
	h1, err := ProgramHash(sampleProgram(0))
	require.NoError(t, err)
	h2, err := ProgramHash(sampleProgram(0))
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "ProgramHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestProgramHashIgnoresPositions(t *testing.T) {
	assert.Equal(t, MustProgramHash(sampleProgram(0)), MustProgramHash(sampleProgram(17)))
}

func TestProgramHashChangesWithContent(t *testing.T) {
	base := MustProgramHash(sampleProgram(0))

	changed := sampleProgram(0)
	changed.Rules[1].Action.Verb = "other"
	assert.NotEqual(t, base, MustProgramHash(changed), "verb participates in the hash")

	changed = sampleProgram(0)
	changed.Rules[0].Guard[1].Value = Int(2)
	assert.NotEqual(t, base, MustProgramHash(changed), "literals participate in the hash")

	changed = sampleProgram(0)
	changed.Rules[1].Action.Context = "weather"
	assert.NotEqual(t, base, MustProgramHash(changed), "context participates in the hash")
}

func TestFiringIDDistinct(t *testing.T) {
	a := FiringID("run-1", 1, 1, 0)
	assert.Equal(t, a, FiringID("run-1", 1, 1, 0))
	assert.NotEqual(t, a, FiringID("run-1", 2, 1, 0))
	assert.NotEqual(t, a, FiringID("run-2", 1, 1, 0))
	assert.NotEqual(t, a, FiringID("run-1", 1, 2, 0))
}
