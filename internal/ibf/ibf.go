// Package ibf implements an interleaved-Bloom-filter-style prefilter: one
// Bloom filter row per bin, queried together so a single minimizer hash
// multiset yields a per-bin hit count in one pass. It gives C4 (the
// prefilter stage) and build something concrete to call; spec.md treats the
// IBF's internal layout as an external, out-of-scope component, so this is
// not a reproduction of seqan::hibf's actual bit-interleaving, only its
// build/query contract.
package ibf

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	farm "github.com/dgryski/go-farm"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/golang/snappy"
	"github.com/minio/highwayhash"
)

const wordBits = 64

// Params fixes the filter's shape, chosen from an expected element count and
// a target false-positive rate via the closed-form Bloom filter optimum
// m = ceil(-n*ln(p) / ln(2)^2).
type Params struct {
	BinCount   int
	HashCount  int
	BitsPerBin uint64
}

// NewParams validates and sizes a filter for binCount bins, each expected to
// receive up to expectedElements distinct hash values with false-positive
// rate at most fpr, using hashCount independent hash functions.
func NewParams(binCount, hashCount int, expectedElements uint64, fpr float64) (Params, error) {
	if binCount < 1 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "ibf: bin_count must be >= 1")
	}
	if hashCount < 1 || hashCount > 5 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "ibf: hash_count must be in [1,5]")
	}
	if fpr <= 0 || fpr >= 1 {
		return Params{}, fpgaerr.Wrap(fpgaerr.InvalidConfig, "ibf: fpr must be in (0,1)")
	}
	n := float64(expectedElements)
	if n < 1 {
		n = 1
	}
	m := math.Ceil(-n * math.Log(fpr) / (math.Ln2 * math.Ln2))
	bits := uint64(m)
	if bits < wordBits {
		bits = wordBits
	}
	return Params{BinCount: binCount, HashCount: hashCount, BitsPerBin: bits}, nil
}

func (p Params) wordsPerBin() int {
	return int((p.BitsPerBin + wordBits - 1) / wordBits)
}

var highwayKey = [highwayhash.Size]byte{'f', 'p', 'g', 'a', 'l', 'i', 'g', 'n'}

// IBF is one Bloom filter row per bin, sharing a hash-function family.
type IBF struct {
	params Params
	rows   [][]uint64 // rows[bin] has wordsPerBin() words
}

// New constructs an empty filter. p should come from NewParams.
func New(p Params) *IBF {
	f := &IBF{params: p, rows: make([][]uint64, p.BinCount)}
	for i := range f.rows {
		f.rows[i] = make([]uint64, p.wordsPerBin())
	}
	return f
}

// BinCount returns the number of bins (rows) this filter was built with.
func (f *IBF) BinCount() int { return f.params.BinCount }

// hashPositions fills out (len == HashCount) with bit offsets in [0,
// BitsPerBin) for value, mixing a farmhash seed for the first function and
// distinctly-keyed highwayhash sums for the rest.
func (f *IBF) hashPositions(value uint64, out []uint64) {
	out[0] = farm.Hash64WithSeed(nil, value) % f.params.BitsPerBin
	if f.params.HashCount == 1 {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	key := highwayKey
	for i := 1; i < f.params.HashCount; i++ {
		key[0] = highwayKey[0] ^ byte(i)
		out[i] = highwayhash.Sum64(buf[:], key[:]) % f.params.BitsPerBin
	}
}

// Insert sets value's hashCount bits in bin's row.
func (f *IBF) Insert(bin int, value uint64) {
	row := f.rows[bin]
	positions := make([]uint64, f.params.HashCount)
	f.hashPositions(value, positions)
	for _, pos := range positions {
		row[pos/wordBits] |= 1 << (pos % wordBits)
	}
}

// ThresholdFunc returns the minimum hit count required for a bin to be
// reported, given the number of hashes in a query (see internal/threshold).
type ThresholdFunc func(hashCount int) int

// MembershipAgent holds per-worker scratch state for Query, so concurrent
// callers each need their own agent (mirrors seqan::hibf's membership_agent
// contract referenced in spec.md §4.4).
type MembershipAgent struct {
	ibf       *IBF
	counts    []int
	positions []uint64
}

// NewMembershipAgent allocates an agent bound to f. Not safe to share across
// goroutines.
func (f *IBF) NewMembershipAgent() *MembershipAgent {
	return &MembershipAgent{
		ibf:       f,
		counts:    make([]int, f.params.BinCount),
		positions: make([]uint64, f.params.HashCount),
	}
}

// Query returns, in ascending order, the bin ids whose hit count over hashes
// meets or exceeds threshold(len(hashes)).
func (a *MembershipAgent) Query(hashes []uint64, threshold ThresholdFunc) []uint32 {
	for i := range a.counts {
		a.counts[i] = 0
	}
	f := a.ibf
	for _, h := range hashes {
		f.hashPositions(h, a.positions)
		for bin := 0; bin < f.params.BinCount; bin++ {
			row := f.rows[bin]
			hit := true
			for _, pos := range a.positions {
				if row[pos/wordBits]&(1<<(pos%wordBits)) == 0 {
					hit = false
					break
				}
			}
			if hit {
				a.counts[bin]++
			}
		}
	}
	thr := threshold(len(hashes))
	var out []uint32
	for bin, c := range a.counts {
		if c >= thr {
			out = append(out, uint32(bin))
		}
	}
	return out
}

// Store persists the filter to w, snappy-compressed. Field order:
// hash_count, bin_count, bits_per_bin, then each row's words.
func (f *IBF) Store(w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	bw := bufio.NewWriter(sw)

	if err := binary.Write(bw, binary.LittleEndian, uint32(f.params.HashCount)); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ibf: write hash_count")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.params.BinCount)); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ibf: write bin_count")
	}
	if err := binary.Write(bw, binary.LittleEndian, f.params.BitsPerBin); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ibf: write bits_per_bin")
	}
	for _, row := range f.rows {
		if err := binary.Write(bw, binary.LittleEndian, row); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "ibf: write row")
		}
	}
	if err := bw.Flush(); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ibf: flush")
	}
	if err := sw.Close(); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ibf: close snappy writer")
	}
	return nil
}

// Load reads a filter previously written by Store.
func Load(r io.Reader) (*IBF, error) {
	sr := bufio.NewReader(snappy.NewReader(r))

	var hashCount, binCount uint32
	var bitsPerBin uint64
	if err := binary.Read(sr, binary.LittleEndian, &hashCount); err != nil {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "ibf: read hash_count")
	}
	if err := binary.Read(sr, binary.LittleEndian, &binCount); err != nil {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "ibf: read bin_count")
	}
	if err := binary.Read(sr, binary.LittleEndian, &bitsPerBin); err != nil {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "ibf: read bits_per_bin")
	}
	params := Params{BinCount: int(binCount), HashCount: int(hashCount), BitsPerBin: bitsPerBin}
	f := New(params)
	for bin := range f.rows {
		if err := binary.Read(sr, binary.LittleEndian, f.rows[bin]); err != nil {
			return nil, fpgaerr.Wrapf(fpgaerr.IoError, "ibf: read row %d", bin)
		}
	}
	return f, nil
}
