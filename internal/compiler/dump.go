package compiler

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/kdl/internal/ir"
)

// Dump writes a disassembly of p: one block per rule in arena order, with
// guard and parameters as postfix op lists.
//
//	rule 0 @1:1 root
//	  context: "weather"
//	  guard:   pvar "weather x" pint 1 gth
//	  verb:    print
//	  param 0: pstr "big"
//	  child:   1
func Dump(w io.Writer, p *ir.Program, src string) error {
	roots := make(map[ir.RuleID]bool, len(p.Root))
	for _, id := range p.Root {
		roots[id] = true
	}

	for id := range p.Rules {
		r := &p.Rules[id]
		line, col := LineCol(src, r.Pos)
		header := fmt.Sprintf("rule %d @%d:%d", id, line, col)
		if roots[ir.RuleID(id)] {
			header += " root"
		}
		lines := []string{header}
		if r.Action.Context != "" {
			lines = append(lines, fmt.Sprintf("  context: %q", r.Action.Context))
		}
		guard := "(always)"
		if len(r.Guard) > 0 {
			guard = formatCompute(r.Guard)
		}
		lines = append(lines, "  guard:   "+guard)
		if r.Action.Verb != "" {
			lines = append(lines, "  verb:    "+r.Action.Verb)
		}
		for i, param := range r.Action.Params {
			lines = append(lines, fmt.Sprintf("  param %d: %s", i, formatCompute(param)))
		}
		if len(r.Action.Child) > 0 {
			ids := make([]string, len(r.Action.Child))
			for i, c := range r.Action.Child {
				ids[i] = fmt.Sprint(int(c))
			}
			lines = append(lines, "  child:   "+strings.Join(ids, " "))
		}
		if _, err := io.WriteString(w, strings.Join(lines, "\n")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func formatCompute(c ir.Compute) string {
	parts := make([]string, len(c))
	for i, op := range c {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}
