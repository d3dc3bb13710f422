// Package cmd defines the fpgalign subcommand tree, in the same
// cmdline+cmdutil shape as _examples/grailbio-bio/cmd/bio-pamtool/cmd.
package cmd

import (
	"fmt"
	"os"

	"github.com/fpgalign/fpgalign/internal/build"
	"github.com/fpgalign/fpgalign/internal/colorlog"
	"github.com/fpgalign/fpgalign/internal/fpgaconfig"
	"github.com/fpgalign/fpgalign/internal/search"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"v.io/x/lib/cmdline"
)

func boundedUint8(name string, v uint, max uint8) (uint8, error) {
	if v > uint(max) {
		return 0, fmt.Errorf("--%s must be <= %d", name, max)
	}
	return uint8(v), nil
}

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "build",
		Short: "Precompute the Bloom filter and per-bin FM-indices for a set of reference bins",
	}
	inputFlag := cmd.Flags.String("input", "", "A file containing file names: one line per bin, whitespace-separated FASTA paths")
	outputFlag := cmd.Flags.String("output", "", "Output path prefix")
	threadsFlag := cmd.Flags.Int("threads", 1, "The number of threads to use")
	kmerFlag := cmd.Flags.Uint("kmer", 20, "The k-mer size")
	windowFlag := cmd.Flags.Uint("window", 20, "The window size")
	fprFlag := cmd.Flags.Float64("fpr", 0.05, "The false positive rate")
	hashFlag := cmd.Flags.Int("hash", 2, "The number of hash functions to use")

	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		kmerSize, err := boundedUint8("kmer", *kmerFlag, 32)
		if err != nil {
			return err
		}
		cfg := fpgaconfig.Config{
			KmerSize:   kmerSize,
			WindowSize: uint32(*windowFlag),
			HashCount:  *hashFlag,
			FPR:        *fprFlag,
			InputPath:  *inputFlag,
			OutputPath: *outputFlag,
			Threads:    *threadsFlag,
		}
		return build.Run(cfg, os.Stderr)
	})
	return cmd
}

func newCmdSearch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "search",
		Short: "Search query sequences against a build's indices, producing a SAM file",
	}
	inputFlag := cmd.Flags.String("input", "", "Prefix of the build output (.ibf, .meta, .i.fmindex, .i.ref)")
	queryFlag := cmd.Flags.String("query", "", "Query FASTA path")
	outputFlag := cmd.Flags.String("output", "", "Output SAM path")
	threadsFlag := cmd.Flags.Int("threads", 1, "The number of threads to use")
	errorsFlag := cmd.Flags.Int("errors", 0, "Maximum number of edit errors tolerated per query")
	queueCapacityFlag := cmd.Flags.Int("queue-capacity", 1, "Cart queue capacity")

	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		cfg := fpgaconfig.Config{
			InputPath:     *inputFlag,
			QueryPath:     *queryFlag,
			OutputPath:    *outputFlag,
			Threads:       *threadsFlag,
			Errors:        *errorsFlag,
			QueueCapacity: *queueCapacityFlag,
		}
		return search.Run(cfg)
	})
	return cmd
}

// Run is fpgalign's entry point: dispatch argv[0] to the matching
// subcommand's cmdline.Command, then print any returned error per spec.md
// §6's exact "[Error] "-prefixed convention and report the exit code.
// cmdline.Main's own dispatch isn't used here since it doesn't expose
// control over that error-message/exit-code contract; the subcommands
// still use cmd.Flags + cmdutil.RunnerFunc, the same shape
// _examples/grailbio-bio/cmd/bio-pamtool/cmd/main.go builds on.
func Run(argv []string) int {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()

	usage := "usage: fpgalign <build|search> [flags]"
	if len(argv) == 0 {
		colorlog.Error(os.Stderr, usage)
		return -1
	}

	var cmd *cmdline.Command
	switch argv[0] {
	case "build":
		cmd = newCmdBuild()
	case "search":
		cmd = newCmdSearch()
	default:
		colorlog.Error(os.Stderr, "%s\nunknown subcommand %q", usage, argv[0])
		return -1
	}

	if err := cmd.Flags.Parse(argv[1:]); err != nil {
		colorlog.Error(os.Stderr, "%v", err)
		return -1
	}
	if err := cmd.Runner.Run(nil, cmd.Flags.Args()); err != nil {
		colorlog.Error(os.Stderr, "%v", err)
		return -1
	}
	return 0
}
