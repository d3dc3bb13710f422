package pipeline

import (
	"io"

	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/cart"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/fpgalign/fpgalign/internal/ibf"
	"github.com/fpgalign/fpgalign/internal/minimiser"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/fpgalign/fpgalign/internal/threshold"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// Config bundles the pipeline driver's knobs, drawn from the search
// subcommand's Config (spec.md §3: threads, errors, queue_capacity,
// kmer_size, window_size — the latter two shared with build via meta).
type Config struct {
	Threads       int
	Errors        int
	QueueCapacity int
	KmerSize      uint8
	WindowSize    uint32
}

// Run is C7: it constructs Q1 (slots = carts = number_of_bins, capacity =
// queue_capacity) and Q2 (slots = carts = capacity = 1), spawns the
// prefilter and locator worker groups on background goroutines, and runs
// the aligner on the calling goroutine. Per spec.md §4.7, by the time Run
// returns, every background worker has already exited: the aligner only
// sees Q2 close once the locator group has closed it, which only happens
// once the prefilter group has closed Q1.
func Run(cfg Config, loader Loader, filter *ibf.IBF, queries []reference.Sequence, refObjs [][]*sam.Reference, out io.Writer) error {
	numberOfBins := filter.BinCount()

	q1Params, err := cart.NewParams(numberOfBins, numberOfBins, cfg.QueueCapacity)
	if err != nil {
		return err
	}
	q2Params, err := cart.NewParams(1, 1, 1)
	if err != nil {
		return err
	}
	q1 := cart.New[int](q1Params)
	q2 := cart.New[LocateItem](q2Params)

	minParams, err := minimiser.NewParams(cfg.KmerSize, cfg.WindowSize)
	if err != nil {
		return err
	}

	queryLength := 0
	if len(queries) > 0 {
		queryLength = len(queries[0].Ranks)
	}
	thresholdParams, err := threshold.NewParams(cfg.KmerSize, cfg.WindowSize, queryLength, cfg.Errors)
	if err != nil {
		return err
	}

	header, err := sam.NewHeader(nil, flattenRefs(refObjs))
	if err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "pipeline: build sam header")
	}
	writer, err := sam.NewWriter(out, header, sam.FlagDecimal)
	if err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "pipeline: build sam writer")
	}

	log.Debug.Printf("pipeline: %d queries, %d bins, %d threads", len(queries), numberOfBins, cfg.Threads)

	var eg errgroup.Group
	eg.Go(func() error {
		return RunPrefilter(filter, queries, minParams, thresholdParams, cfg.Threads, q1)
	})
	eg.Go(func() error {
		return RunLocator(loader, queries, cfg.Errors, cfg.Threads, q1, q2)
	})

	if err := RunAligner(loader, refObjs, queries, q2, writer); err != nil {
		return err
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	log.Debug.Printf("pipeline: done")
	return nil
}

func flattenRefs(refObjs [][]*sam.Reference) []*sam.Reference {
	var out []*sam.Reference
	for _, bin := range refObjs {
		out = append(out, bin...)
	}
	return out
}
