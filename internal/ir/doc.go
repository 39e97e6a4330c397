// Package ir provides the compiled representation of kdl programs.
//
// This package contains type definitions only. The compiler produces ir;
// the engine executes it. ir imports nothing internal, which keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface: Nil, Int, Float and Str are the only kinds
//   - A Program is an arena of Rules addressed by RuleID; child programs are
//     lists of RuleIDs into the same arena
//   - A parsed Program is never mutated; activation bookkeeping lives in the
//     engine's schedule, not on the Rule
//   - Every compiled node carries the byte offset of its source token
package ir
