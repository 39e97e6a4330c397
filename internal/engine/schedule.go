package engine

import "github.com/roach88/kdl/internal/ir"

// schedule is the two-generation active rule set.
//
// front is the list evaluated by the current cycle and is never modified
// while the cycle runs. back starts each cycle as a copy of front and
// collects newly unlocked child rules. advance promotes back to front.
//
// A rule enters the schedule at most once over the machine's lifetime: the
// active bitset is indexed by RuleID and is the one-shot activation latch.
// The Program itself is never written.
type schedule struct {
	front  []ir.RuleID
	back   []ir.RuleID
	active []uint64
}

func (s *schedule) reset(rules int) {
	s.front = s.front[:0]
	s.back = s.back[:0]
	words := (rules + 63) / 64
	if cap(s.active) >= words {
		s.active = s.active[:words]
		clear(s.active)
	} else {
		s.active = make([]uint64, words)
	}
}

func (s *schedule) isActive(id ir.RuleID) bool {
	return s.active[id/64]&(1<<(uint(id)%64)) != 0
}

// activate appends to back every id not yet activated and latches it.
// admit is called before each new activation and may veto it.
func (s *schedule) activate(ids []ir.RuleID, admit func(ir.RuleID) error) error {
	for _, id := range ids {
		if s.isActive(id) {
			continue
		}
		if err := admit(id); err != nil {
			return err
		}
		s.active[id/64] |= 1 << (uint(id) % 64)
		s.back = append(s.back, id)
	}
	return nil
}

// advance ends a cycle: back becomes front, and the new back starts as a
// copy of it so that the next cycle's unlocks merge on top.
func (s *schedule) advance() {
	s.front, s.back = s.back, s.front[:0]
	s.back = append(s.back, s.front...)
}

// size returns the number of activated rules.
func (s *schedule) size() int {
	return len(s.front)
}

func (s *schedule) release() {
	s.front, s.back, s.active = nil, nil, nil
}
