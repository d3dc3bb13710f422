// Package search implements the search subcommand: load the artifacts a
// build produced, validate them against the persisted meta, and run the
// C4-C7 pipeline (internal/pipeline) to produce a SAM file.
//
// Grounded on original_source/src/search/search.cpp's two-call shape
// (ibf(config) then fmindex(config, hits)), here expressed as one call into
// internal/pipeline.Run since this module's cart queue already chains the
// stages instead of materializing an intermediate hit vector.
package search

import (
	"fmt"
	"os"

	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/fmindex"
	"github.com/fpgalign/fpgalign/internal/fpgaconfig"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/fpgalign/fpgalign/internal/ibf"
	"github.com/fpgalign/fpgalign/internal/pipeline"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/grailbio/base/log"
)

// diskLoader implements pipeline.Loader over the on-disk artifacts a build
// produced, keyed by config.InputPath's prefix.
type diskLoader struct {
	prefix string
	refs   [][]reference.Sequence
	ids    [][]string
}

func (l *diskLoader) FMIndex(bin int) (*fmindex.Index, error) {
	path := fmt.Sprintf("%s.%d.fmindex", l.prefix, bin)
	f, err := os.Open(path)
	if err != nil {
		return nil, fpgaerr.Wrapf(fpgaerr.IoError, "search: open %q", path)
	}
	defer f.Close()
	return fmindex.Load(f)
}

func (l *diskLoader) References(bin int) []reference.Sequence { return l.refs[bin] }
func (l *diskLoader) RefIDs(bin int) []string                  { return l.ids[bin] }

// Run executes the search subcommand end to end: load meta/ibf/references,
// validate consistency, load queries, build the SAM reference objects, and
// hand off to internal/pipeline.Run.
func Run(cfg fpgaconfig.Config) error {
	if err := cfg.ValidateSearch(); err != nil {
		return err
	}

	metaFile, err := os.Open(cfg.InputPath + ".meta")
	if err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "search: open %q", cfg.InputPath+".meta")
	}
	meta, err := fpgaconfig.LoadMeta(metaFile)
	metaFile.Close()
	if err != nil {
		return err
	}

	filterFile, err := os.Open(cfg.InputPath + ".ibf")
	if err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "search: open %q", cfg.InputPath+".ibf")
	}
	filter, err := ibf.Load(filterFile)
	filterFile.Close()
	if err != nil {
		return err
	}

	if filter.BinCount() != meta.NumberOfBins {
		return fpgaerr.Wrapf(fpgaerr.ConsistencyError, "search: ibf has %d bins, meta declares %d", filter.BinCount(), meta.NumberOfBins)
	}

	loader := &diskLoader{
		prefix: cfg.InputPath,
		refs:   make([][]reference.Sequence, meta.NumberOfBins),
		ids:    meta.RefIDs,
	}
	refObjs := make([][]*sam.Reference, meta.NumberOfBins)
	for bin := 0; bin < meta.NumberOfBins; bin++ {
		path := fmt.Sprintf("%s.%d.ref", cfg.InputPath, bin)
		f, err := os.Open(path)
		if err != nil {
			return fpgaerr.Wrapf(fpgaerr.IoError, "search: open %q", path)
		}
		sequences, err := reference.Load(f)
		f.Close()
		if err != nil {
			return err
		}
		if len(sequences) != len(meta.RefIDs[bin]) {
			return fpgaerr.Wrapf(fpgaerr.ConsistencyError, "search: bin %d has %d references on disk, meta declares %d", bin, len(sequences), len(meta.RefIDs[bin]))
		}
		loader.refs[bin] = sequences

		objs := make([]*sam.Reference, len(sequences))
		for i, seq := range sequences {
			ref, err := sam.NewReference(seq.ID, "", "", len(seq.Ranks), nil, nil)
			if err != nil {
				return fpgaerr.Wrapf(fpgaerr.IoError, "search: build sam reference %q", seq.ID)
			}
			objs[i] = ref
		}
		refObjs[bin] = objs
	}

	queryFile, err := os.Open(cfg.QueryPath)
	if err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "search: open %q", cfg.QueryPath)
	}
	queries, err := reference.LoadFASTA(queryFile)
	queryFile.Close()
	if err != nil {
		return err
	}

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "search: create %q", cfg.OutputPath)
	}
	defer out.Close()

	pipelineCfg := pipeline.Config{
		Threads:       cfg.Threads,
		Errors:        cfg.Errors,
		QueueCapacity: cfg.QueueCapacity,
		KmerSize:      meta.KmerSize,
		WindowSize:    meta.WindowSize,
	}

	log.Debug.Printf("search: %d queries against %d bins, errors=%d threads=%d", len(queries), meta.NumberOfBins, cfg.Errors, cfg.Threads)
	return pipeline.Run(pipelineCfg, loader, filter, queries, refObjs, out)
}
