package pipeline

import (
	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/align"
	"github.com/fpgalign/fpgalign/internal/cart"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/pkg/errors"
)

// RunAligner is C6: drained on the calling goroutine by design (spec.md
// §4.6's single-writer discipline), it slices the reference window for each
// located occurrence, runs the semi-global aligner, and writes the
// resulting SAM record. Alignments with no traceback are silently dropped.
func RunAligner(loader Loader, refObjs [][]*sam.Reference, queries []reference.Sequence, q2 *cart.Queue[LocateItem], writer *sam.Writer) error {
	for {
		handle := q2.Dequeue()
		if !handle.Valid() {
			return nil
		}
		if err := alignCart(loader, refObjs, queries, handle, writer); err != nil {
			handle.Release()
			return err
		}
		handle.Release()
	}
}

func alignCart(loader Loader, refObjs [][]*sam.Reference, queries []reference.Sequence, handle *cart.Handle[LocateItem], writer *sam.Writer) error {
	_, items, err := handle.Get()
	if err != nil {
		return err
	}
	for _, item := range items {
		refSeq := loader.References(item.Bin)[item.RefSeq]
		query := queries[item.QueryIndex]

		start := item.RefPos - 1
		if start < 0 {
			start = 0
		}
		end := start + len(query.Ranks) + 1
		if end > len(refSeq.Ranks) {
			end = len(refSeq.Ranks)
		}
		window := refSeq.Ranks[start:end]

		res, err := align.Align(window, query.Ranks)
		if err != nil {
			if errors.Is(err, fpgaerr.AlignmentEmpty) {
				continue
			}
			return err
		}

		rec, err := sam.NewRecord(query.ID, refObjs[item.Bin][item.RefSeq], nil,
			res.BeginOnRef+start, -1, 0, align.MAPQ(res.Score),
			sam.Cigar(res.Cigar), reference.Letters(query.Ranks), nil, nil)
		if err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "pipeline: build sam record")
		}
		if err := writer.Write(rec); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "pipeline: write sam record")
		}
	}
	return nil
}
