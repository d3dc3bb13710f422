package pipeline_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/fmindex"
	"github.com/fpgalign/fpgalign/internal/ibf"
	"github.com/fpgalign/fpgalign/internal/minimiser"
	"github.com/fpgalign/fpgalign/internal/pipeline"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/stretchr/testify/require"
)

// memLoader is an in-memory Loader: references and FM-indices are already
// resident, matching spec.md §4.6's "loaded in full prior to search start"
// for references, and testing the FM-index lazy-load call path directly.
type memLoader struct {
	fm   map[int]*fmindex.Index
	refs map[int][]reference.Sequence
	ids  map[int][]string
}

func (m *memLoader) FMIndex(bin int) (*fmindex.Index, error) { return m.fm[bin], nil }
func (m *memLoader) References(bin int) []reference.Sequence { return m.refs[bin] }
func (m *memLoader) RefIDs(bin int) []string                 { return m.ids[bin] }

// TestRunEndToEndSingleSubstitution mirrors the spec's scenario #6: a query
// identical to the reference save for one substitution, errors=1, produces
// exactly one SAM record with mapq=59.
func TestRunEndToEndSingleSubstitution(t *testing.T) {
	refRanks := []byte{1, 2, 3, 4, 1, 2, 3, 4} // ACGTACGT
	refSeq := reference.Sequence{ID: "chr1", Ranks: refRanks}

	queryRanks := []byte{1, 2, 3, 4, 1, 2, 2, 4} // ACGTACCT: substitution at index 6
	query := reference.Sequence{ID: "q0", Ranks: queryRanks}

	minParams, err := minimiser.NewParams(2, 4)
	require.NoError(t, err)

	filterParams, err := ibf.NewParams(1, 2, 8, 0.01)
	require.NoError(t, err)
	filter := ibf.New(filterParams)
	for _, h := range minimiser.All(refSeq.MinimiserRanks(), minParams) {
		filter.Insert(0, h)
	}

	idx, err := fmindex.Build([][]byte{refRanks}, 4)
	require.NoError(t, err)

	samRef, err := sam.NewReference("chr1", "", "", len(refRanks), nil, nil)
	require.NoError(t, err)
	refObjs := [][]*sam.Reference{{samRef}}

	loader := &memLoader{
		fm:   map[int]*fmindex.Index{0: idx},
		refs: map[int][]reference.Sequence{0: {refSeq}},
		ids:  map[int][]string{0: {"chr1"}},
	}

	cfg := pipeline.Config{
		Threads:       2,
		Errors:        1,
		QueueCapacity: 4,
		KmerSize:      2,
		WindowSize:    4,
	}

	var buf bytes.Buffer
	require.NoError(t, pipeline.Run(cfg, loader, filter, []reference.Sequence{query}, refObjs, &buf))

	r, err := sam.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var records []*sam.Record
	for {
		rec, err := r.Read()
		if rec == nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		require.NoError(t, err)
		records = append(records, rec)
	}

	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, "q0", rec.Name)
	require.Equal(t, "chr1", rec.Ref.Name())
	require.EqualValues(t, 59, rec.MapQ)
}

// TestRunEndToEndExactRepeatProducesCorrectOffsets mirrors the spec's
// scenario #1: a query exactly matching a repeated reference prefix at
// k=3, w=3, errors=0 must produce one record per occurrence, each with
// CIGAR 4M, mapq=60, and a 1-based SAM POS in {1,5,9} (0-based ref
// positions 0, 4, 8).
func TestRunEndToEndExactRepeatProducesCorrectOffsets(t *testing.T) {
	refRanks := []byte{1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4} // ACGTACGTACGT
	refSeq := reference.Sequence{ID: "chr1", Ranks: refRanks}

	queryRanks := []byte{1, 2, 3, 4} // ACGT
	query := reference.Sequence{ID: "q0", Ranks: queryRanks}

	minParams, err := minimiser.NewParams(3, 3)
	require.NoError(t, err)

	filterParams, err := ibf.NewParams(1, 2, 16, 0.01)
	require.NoError(t, err)
	filter := ibf.New(filterParams)
	for _, h := range minimiser.All(refSeq.MinimiserRanks(), minParams) {
		filter.Insert(0, h)
	}

	idx, err := fmindex.Build([][]byte{refRanks}, 4)
	require.NoError(t, err)

	samRef, err := sam.NewReference("chr1", "", "", len(refRanks), nil, nil)
	require.NoError(t, err)
	refObjs := [][]*sam.Reference{{samRef}}

	loader := &memLoader{
		fm:   map[int]*fmindex.Index{0: idx},
		refs: map[int][]reference.Sequence{0: {refSeq}},
		ids:  map[int][]string{0: {"chr1"}},
	}

	cfg := pipeline.Config{
		Threads:       1,
		Errors:        0,
		QueueCapacity: 4,
		KmerSize:      3,
		WindowSize:    3,
	}

	var buf bytes.Buffer
	require.NoError(t, pipeline.Run(cfg, loader, filter, []reference.Sequence{query}, refObjs, &buf))

	r, err := sam.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	var records []*sam.Record
	for {
		rec, err := r.Read()
		if rec == nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		require.NoError(t, err)
		records = append(records, rec)
	}

	require.Len(t, records, 3)
	wantPos := map[int]bool{1: true, 5: true, 9: true}
	seen := map[int]bool{}
	for _, rec := range records {
		require.Equal(t, "q0", rec.Name)
		require.Equal(t, "chr1", rec.Ref.Name())
		require.EqualValues(t, 60, rec.MapQ)
		require.Len(t, rec.Cigar, 1)
		require.Equal(t, sam.CigarMatch, rec.Cigar[0].Type())
		require.Equal(t, 4, rec.Cigar[0].Len())

		pos := rec.Pos + 1
		require.True(t, wantPos[pos], "unexpected SAM POS %d, want one of 1,5,9", pos)
		seen[pos] = true
	}
	require.Len(t, seen, 3)
}

// TestRunEndToEndNoCandidateBinsProducesNoRecords exercises the case where
// the Bloom filter never reports the bin as a candidate: the prefilter
// drops the query, nothing reaches the locator or aligner, and the SAM
// output has only the header.
func TestRunEndToEndNoCandidateBinsProducesNoRecords(t *testing.T) {
	refRanks := []byte{1, 2, 3, 4, 1, 2, 3, 4}
	refSeq := reference.Sequence{ID: "chr1", Ranks: refRanks}

	// A query sharing no minimizers with the (empty) filter row and with
	// enough error budget pressure that the threshold stays above zero.
	query := reference.Sequence{ID: "q0", Ranks: []byte{4, 4, 4, 4, 4, 4, 4, 4}}

	filterParams, err := ibf.NewParams(1, 2, 8, 0.01)
	require.NoError(t, err)
	filter := ibf.New(filterParams) // nothing ever inserted

	idx, err := fmindex.Build([][]byte{refRanks}, 4)
	require.NoError(t, err)

	samRef, err := sam.NewReference("chr1", "", "", len(refRanks), nil, nil)
	require.NoError(t, err)
	refObjs := [][]*sam.Reference{{samRef}}

	loader := &memLoader{
		fm:   map[int]*fmindex.Index{0: idx},
		refs: map[int][]reference.Sequence{0: {refSeq}},
		ids:  map[int][]string{0: {"chr1"}},
	}

	cfg := pipeline.Config{
		Threads:       1,
		Errors:        0,
		QueueCapacity: 4,
		KmerSize:      2,
		WindowSize:    4,
	}

	var buf bytes.Buffer
	require.NoError(t, pipeline.Run(cfg, loader, filter, []reference.Sequence{query}, refObjs, &buf))

	r, err := sam.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = r.Read()
	require.ErrorIs(t, err, io.EOF)
}
