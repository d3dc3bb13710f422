// Package build implements the build subcommand: parse the bin-list input
// file, load each bin's FASTA files, and persist the Bloom filter, the
// per-bin FM-indices, the per-bin reference vectors, and the meta record.
//
// Grounded on original_source/src/build/{build,ibf,fmindex}.cpp for the
// overall shape (parse_input -> ibf -> fmindex -> store meta), adapted to
// this module's per-bin FM-index split (see DESIGN.md's A6 entry).
package build

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fpgalign/fpgalign/internal/colorlog"
	"github.com/fpgalign/fpgalign/internal/fmindex"
	"github.com/fpgalign/fpgalign/internal/fpgaconfig"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/fpgalign/fpgalign/internal/ibf"
	"github.com/fpgalign/fpgalign/internal/minimiser"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/grailbio/base/log"
)

// fmIndexSamplingRate matches original_source/src/build/fmindex.cpp's
// BiFMIndex construction (`/*samplingRate*/ 16`).
const fmIndexSamplingRate = 16

// ParseInput reads config.InputPath: one line per user bin, whitespace
// separating one or more FASTA paths on that line. Blank lines are
// skipped, per original_source/src/build/build.cpp's parse_input.
func ParseInput(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fpgaerr.Wrapf(fpgaerr.IoError, "build: open input file %q", path)
	}
	defer f.Close()

	var bins [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		bins = append(bins, strings.Fields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fpgaerr.Wrapf(fpgaerr.IoError, "build: scan input file %q", path)
	}
	return bins, nil
}

// Run executes the build subcommand end to end. Warnings go to stderr via
// colorlog, progress goes to the teacher's structured logger at debug level,
// and errors are returned to the caller.
func Run(cfg fpgaconfig.Config, stderr io.Writer) error {
	if err := cfg.ValidateBuild(); err != nil {
		return err
	}

	binPaths, err := ParseInput(cfg.InputPath)
	if err != nil {
		return err
	}
	numberOfBins := len(binPaths)
	if numberOfBins == 0 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "build: input file lists no bins")
	}

	minParams, err := minimiser.NewParams(cfg.KmerSize, cfg.WindowSize)
	if err != nil {
		return err
	}

	bins := make([][]reference.Sequence, numberOfBins)
	maxHashesPerBin := uint64(1)
	for bin, paths := range binPaths {
		var sequences []reference.Sequence
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				return fpgaerr.Wrapf(fpgaerr.IoError, "build: open reference file %q", path)
			}
			seqs, err := reference.LoadFASTA(f)
			f.Close()
			if err != nil {
				return err
			}
			for _, seq := range seqs {
				if len(seq.Ranks) < int(cfg.WindowSize) {
					colorlog.Warning(stderr, "file %q contains a sequence of length %d. This is shorter than the window size (%d) and will result in no k-mers being generated for this sequence.", path, len(seq.Ranks), cfg.WindowSize)
				}
			}
			sequences = append(sequences, seqs...)
		}
		bins[bin] = sequences

		var hashCount uint64
		for _, seq := range sequences {
			hashCount += uint64(len(minimiser.All(seq.MinimiserRanks(), minParams)))
		}
		if hashCount > maxHashesPerBin {
			maxHashesPerBin = hashCount
		}
	}

	filterParams, err := ibf.NewParams(numberOfBins, cfg.HashCount, maxHashesPerBin, cfg.FPR)
	if err != nil {
		return err
	}
	filter := ibf.New(filterParams)
	for bin, sequences := range bins {
		for _, seq := range sequences {
			for _, h := range minimiser.All(seq.MinimiserRanks(), minParams) {
				filter.Insert(bin, h)
			}
		}
	}

	meta := fpgaconfig.Meta{
		KmerSize:     cfg.KmerSize,
		WindowSize:   cfg.WindowSize,
		NumberOfBins: numberOfBins,
		RefIDs:       make([][]string, numberOfBins),
	}

	for bin, sequences := range bins {
		ids := make([]string, len(sequences))
		ranks := make([][]byte, len(sequences))
		for i, seq := range sequences {
			ids[i] = seq.ID
			ranks[i] = seq.Ranks
		}
		meta.RefIDs[bin] = ids

		idx, err := fmindex.Build(ranks, fmIndexSamplingRate)
		if err != nil {
			return err
		}
		if err := writeFile(fmt.Sprintf("%s.%d.fmindex", cfg.OutputPath, bin), idx.Store); err != nil {
			return err
		}
		if err := writeFile(fmt.Sprintf("%s.%d.ref", cfg.OutputPath, bin), func(w io.Writer) error {
			return reference.Store(w, sequences)
		}); err != nil {
			return err
		}
		log.Debug.Printf("build: bin %d: %d references, %d bytes of sequence", bin, len(sequences), totalLen(sequences))
	}

	if err := writeFile(cfg.OutputPath+".ibf", filter.Store); err != nil {
		return err
	}
	if err := writeFile(cfg.OutputPath+".meta", func(w io.Writer) error {
		return fpgaconfig.StoreMeta(w, meta)
	}); err != nil {
		return err
	}

	log.Debug.Printf("build: done, %d bins", numberOfBins)
	return nil
}

func totalLen(sequences []reference.Sequence) int {
	n := 0
	for _, s := range sequences {
		n += len(s.Ranks)
	}
	return n
}

func writeFile(path string, store func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "build: create %q", path)
	}
	if err := store(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fpgaerr.Wrapf(fpgaerr.IoError, "build: close %q", path)
	}
	return nil
}
