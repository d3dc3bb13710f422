// Command fpgalign maps short DNA-sequence queries against a collection of
// reference sequences, via a "build" subcommand that precomputes per-bin
// index structures and a "search" subcommand that uses them to emit a
// SAM alignment file.
package main

import (
	"os"

	"github.com/fpgalign/fpgalign/cmd/fpgalign/cmd"
)

func main() {
	os.Exit(cmd.Run(os.Args[1:]))
}
