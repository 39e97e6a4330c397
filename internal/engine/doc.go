// Package engine implements the kdl production-rule machine.
//
// A Machine owns one loaded Program, a variable table, a verb table and a
// two-generation schedule of active rules. The host drives it one cycle
// at a time:
//
//	m, _ := engine.New()
//	m.AddVerb("print", engine.Verb{Func: printVerb})
//	m.Load(src)
//	for {
//		if err := m.Run(); err != nil {
//			return err
//		}
//	}
//
// SCHEDULING:
//
// Load seeds the schedule with the program's root rules. Each Run visits
// the current schedule (front) in order. A rule whose guard holds
// dispatches its verb and appends its child rules to the next generation
// (back). At the end of the pass back becomes front and a copy of it
// becomes the new back. Children are therefore never evaluated in the
// cycle that unlocked them.
//
// Activation is a one-shot latch per rule: once scheduled, a rule stays
// scheduled and its guard is re-checked every cycle. There is no
// deactivation.
//
// ERRORS:
//
// Every failure inside Run is a *RuntimeError. Run errors are fatal: the
// machine records the first one, and later Run calls return FAULTED until
// a new program is loaded. Parse errors from Load are *compiler.ParseError
// and leave the previous program in place.
//
// ACCOUNTING:
//
// Storage requests go through an Allocator. The Go runtime owns the
// memory; the allocator grants or refuses each request and observes its
// release, which lets tests prove every allocation is paired with a free
// (see CountingAllocator) and lets hosts cap machine growth (see
// BudgetAllocator).
package engine
