// kdl runs guarded-rule programs.
//
// Usage:
//
//	kdl run <program> [--cycles N] [--config kdl.cue] [--var name=value] [--db kdl.db]
//	kdl check <program>
//	kdl tokens <program>
//	kdl dump <program> [-o file]
//	kdl test <scenarios> [--update] [--filter glob]
//	kdl trace --db kdl.db [--run id] [--verb name] [--list]
//	kdl replay --db kdl.db [--run id]
//
// A program path of "-" reads from stdin. --format json switches every
// command to JSON responses.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kdl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kdl: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
