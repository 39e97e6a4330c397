// Package store provides SQLite-backed storage for kdl execution traces.
//
// A trace is the observable history of one machine run:
//   - Runs: the program (source and content hash), final status and
//     final variable snapshot
//   - Firings: every verb dispatch with its cycle, dispatch seq, rule,
//     context and evaluated parameters
//   - Cycles: the active rule count at the end of each cycle
//
// Machine state itself is never persisted; the trace exists for
// inspection, golden comparison and determinism checks.
//
// # Ordering
//
// All reads order by the logical counters the machine stamps (cycle, seq)
// with id as a binary tiebreak, so identical runs read back identically.
// Wall-clock time is never recorded.
//
// # Encoding
//
// Parameter lists and variable snapshots are stored as canonical JSON
// (see ir.MarshalCanonical); firing IDs come from ir.FiringID.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
