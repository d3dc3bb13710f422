// Package threshold computes the minimum shared-minimizer-hash count a
// query must have against a bin's Bloom filter row to be worth a full
// FM-index search. It is a pure function of (kmer_size, window_size,
// query_length, errors), derived from the standard k-mer lemma: a single
// edit can change the minimizer of at most window_size windows, so an error
// budget of e can destroy at most e*window_size of the minimizers a
// perfectly-matching query would have shared.
package threshold

import "github.com/fpgalign/fpgalign/internal/fpgaerr"

// Params fixes the oracle's shape. QueryLength is conventionally the first
// query's length; the oracle is built once and reused for every query
// (see SPEC_FULL.md §4.3 / spec.md §4.3).
type Params struct {
	KmerSize    uint8
	WindowSize  uint32
	QueryLength int
	Errors      int
}

// NewParams validates and constructs Params.
func NewParams(k uint8, w uint32, queryLength, errors int) (Params, error) {
	if k == 0 || k > 32 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "threshold: kmer_size must be in [1,32]")
	}
	if w < uint32(k) {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "threshold: window_size must be >= kmer_size")
	}
	if queryLength < 0 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "threshold: query_length must be >= 0")
	}
	if errors < 0 || errors > 5 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "threshold: errors must be in [0,5]")
	}
	return Params{KmerSize: k, WindowSize: w, QueryLength: queryLength, Errors: errors}, nil
}

// Oracle computes T(h), memoized per observed hash count since workers call
// Get repeatedly with the same small set of query lengths.
type Oracle struct {
	params Params
	cache  map[int]int
}

// New constructs an Oracle. p should come from NewParams.
func New(p Params) *Oracle {
	return &Oracle{params: p, cache: make(map[int]int)}
}

// Get returns T(h): the minimum number of the h minimizer hashes a query
// produced that must be present in a bin's Bloom filter row for that bin to
// be considered a candidate. Not safe for concurrent use; construct one
// Oracle per worker, matching the membership agent it pairs with.
func (o *Oracle) Get(observedHashCount int) int {
	if t, ok := o.cache[observedHashCount]; ok {
		return t
	}
	t := o.compute(observedHashCount)
	o.cache[observedHashCount] = t
	return t
}

func (o *Oracle) compute(observedHashCount int) int {
	w := int(o.params.WindowSize)

	theoreticalMinimisers := o.params.QueryLength - w + 1
	if theoreticalMinimisers < 0 {
		theoreticalMinimisers = 0
	}
	minimisers := theoreticalMinimisers
	if observedHashCount < minimisers {
		minimisers = observedHashCount
	}
	if minimisers < 0 {
		minimisers = 0
	}

	destroyed := o.params.Errors * w
	t := minimisers - destroyed
	if t < 0 {
		t = 0
	}
	return t
}
