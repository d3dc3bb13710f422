// Package pipeline wires the prefilter (C4), locator (C5) and aligner (C6)
// stages together through two internal/cart queues, matching the data flow
// in original_source/src/search/search.cpp: shuffle -> hash -> membership ->
// locate -> align.
package pipeline

import (
	"github.com/fpgalign/fpgalign/internal/fmindex"
	"github.com/fpgalign/fpgalign/internal/reference"
)

// LocateItem is one element of Q2: a located occurrence awaiting alignment.
type LocateItem struct {
	Bin        int
	RefSeq     int
	RefPos     int
	QueryIndex int
}

// Loader supplies per-bin artifacts to the pipeline. FMIndex is called once
// per dequeued Q1 cart (lazy load, amortized across the cart's queries);
// References and RefIDs are expected to already be resident, loaded once
// before the pipeline starts (spec.md §4.6: "loaded in full prior to search
// start").
type Loader interface {
	FMIndex(bin int) (*fmindex.Index, error)
	References(bin int) []reference.Sequence
	RefIDs(bin int) []string
}
