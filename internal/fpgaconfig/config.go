// Package fpgaconfig holds the parsed, immutable-after-parse configuration
// shared by build and search (spec.md §3's Config), plus the persisted Meta
// record's shape and its consistency checksum (SPEC_FULL.md §3).
//
// Grounded on original_source/include/fpgalign/config.hpp's flat struct of
// defaulted fields; Go has no in-class default-initializer syntax, so
// defaults live in DefaultConfig below instead.
package fpgaconfig

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/minio/highwayhash"
)

// Config bundles every CLI-parsed knob. Not every field applies to every
// subcommand: Validate is split into ValidateBuild and ValidateSearch so
// each subcommand only checks the fields it actually consumes, mirroring
// the original's single config struct shared by both argument parsers.
type Config struct {
	KmerSize   uint8
	WindowSize uint32

	HashCount int
	FPR       float64

	InputPath  string
	OutputPath string
	QueryPath  string

	Errors        int
	Threads       int
	QueueCapacity int
}

// DefaultConfig mirrors original_source/include/fpgalign/config.hpp's
// in-class defaults (kmer_size 20, window_size = kmer_size, hash_count 2,
// fpr 0.05, threads 1, queue_capacity 1).
func DefaultConfig() Config {
	return Config{
		KmerSize:      20,
		WindowSize:    20,
		HashCount:     2,
		FPR:           0.05,
		Errors:        0,
		Threads:       1,
		QueueCapacity: 1,
	}
}

// ValidateBuild checks the fields the build subcommand consumes: kmer_size,
// window_size, hash_count, fpr, input_path, output_path, threads.
func (c Config) ValidateBuild() error {
	if c.KmerSize == 0 || c.KmerSize > 32 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "kmer_size must be in [1,32]")
	}
	if c.WindowSize < uint32(c.KmerSize) {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "window_size must be >= kmer_size")
	}
	if c.HashCount < 1 || c.HashCount > 5 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "hash_count must be in [1,5]")
	}
	if c.FPR <= 0 || c.FPR >= 1 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "fpr must be in (0,1)")
	}
	if c.InputPath == "" {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "--input is required")
	}
	if c.OutputPath == "" {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "--output is required")
	}
	if c.Threads < 1 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "threads must be >= 1")
	}
	return nil
}

// ValidateSearch checks the fields the search subcommand consumes:
// input_path (the build output prefix), query_path, output_path, errors,
// threads, queue_capacity.
func (c Config) ValidateSearch() error {
	if c.InputPath == "" {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "--input is required")
	}
	if c.QueryPath == "" {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "--query is required")
	}
	if c.OutputPath == "" {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "--output is required")
	}
	if c.Errors < 0 || c.Errors > 5 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "errors must be in [0,5]")
	}
	if c.Threads < 1 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "threads must be >= 1")
	}
	if c.QueueCapacity < 1 {
		return fpgaerr.Wrap(fpgaerr.InvalidConfig, "queue_capacity must be >= 1")
	}
	return nil
}

// Meta is the persisted record describing how a set of indices was built:
// kmer_size, window_size, number_of_bins, and the human-readable reference
// ids per bin (spec.md §3). RefIDs[bin] lists the local references in the
// same order the Bloom filter and FM-index for that bin were built from.
type Meta struct {
	KmerSize     uint8
	WindowSize   uint32
	NumberOfBins int
	RefIDs       [][]string
}

// checksumKey is the fixed well-known key used to strengthen the meta
// consistency check beyond the plain bin-count comparison spec.md already
// requires (SPEC_FULL.md §3). Grounded on fusion/postprocess.go's
// highwayhash.Sum(data, key) pattern, keyed rather than zero-keyed since
// this checksum guards a correctness invariant, not just a grouping key.
var checksumKey = [highwayhash.Size]byte{'f', 'p', 'g', 'a', 'l', 'i', 'g', 'n', '-', 'm', 'e', 't', 'a'}

// Checksum returns the 64-bit HighwayHash digest of m's consistency-bearing
// fields: kmer_size, window_size, number_of_bins, ref_ids. Search
// recomputes this after loading .meta and rejects a mismatch as a
// ConsistencyError, in addition to the bin-count check spec.md names.
func (m Meta) Checksum() uint64 {
	h, err := highwayhash.New64(checksumKey[:])
	if err != nil {
		// checksumKey is a fixed, correctly-sized constant: New64 can only
		// fail on a malformed key.
		panic(err)
	}
	var buf [4]byte
	buf[0] = m.KmerSize
	h.Write(buf[:1])
	binary.LittleEndian.PutUint32(buf[:], m.WindowSize)
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], uint32(m.NumberOfBins))
	h.Write(buf[:])
	for _, bin := range m.RefIDs {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(bin)))
		h.Write(buf[:])
		for _, id := range bin {
			binary.LittleEndian.PutUint32(buf[:], uint32(len(id)))
			h.Write(buf[:])
			h.Write([]byte(id))
		}
	}
	return h.Sum64()
}

// Verify recomputes m's checksum and compares it to want, returning a
// ConsistencyError on mismatch.
func (m Meta) Verify(want uint64) error {
	if got := m.Checksum(); got != want {
		return fpgaerr.Wrapf(fpgaerr.ConsistencyError, "meta checksum mismatch: got %x, want %x", got, want)
	}
	return nil
}

// StoreMeta persists m to w (the P.meta file), field order kmer_size,
// window_size, number_of_bins, ref_ids, then the checksum last so it covers
// every field written before it.
func StoreMeta(w io.Writer, m Meta) error {
	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(m.KmerSize); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "meta: write kmer_size")
	}
	if err := binary.Write(bw, binary.LittleEndian, m.WindowSize); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "meta: write window_size")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(m.NumberOfBins)); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "meta: write number_of_bins")
	}
	for _, bin := range m.RefIDs {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(bin))); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "meta: write ref_ids bin count")
		}
		for _, id := range bin {
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(id))); err != nil {
				return fpgaerr.Wrap(fpgaerr.IoError, "meta: write ref_id length")
			}
			if _, err := bw.WriteString(id); err != nil {
				return fpgaerr.Wrap(fpgaerr.IoError, "meta: write ref_id")
			}
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, m.Checksum()); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "meta: write checksum")
	}
	if err := bw.Flush(); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "meta: flush")
	}
	return nil
}

// LoadMeta reads a Meta previously written by StoreMeta and verifies its
// trailing checksum, returning a ConsistencyError if the file was corrupted
// or hand-edited since write.
func LoadMeta(r io.Reader) (Meta, error) {
	br := bufio.NewReader(r)
	var m Meta

	kmerSize, err := br.ReadByte()
	if err != nil {
		return Meta{}, fpgaerr.Wrap(fpgaerr.IoError, "meta: read kmer_size")
	}
	m.KmerSize = kmerSize

	if err := binary.Read(br, binary.LittleEndian, &m.WindowSize); err != nil {
		return Meta{}, fpgaerr.Wrap(fpgaerr.IoError, "meta: read window_size")
	}
	var numberOfBins uint32
	if err := binary.Read(br, binary.LittleEndian, &numberOfBins); err != nil {
		return Meta{}, fpgaerr.Wrap(fpgaerr.IoError, "meta: read number_of_bins")
	}
	m.NumberOfBins = int(numberOfBins)

	m.RefIDs = make([][]string, m.NumberOfBins)
	for bin := range m.RefIDs {
		var refCount uint32
		if err := binary.Read(br, binary.LittleEndian, &refCount); err != nil {
			return Meta{}, fpgaerr.Wrapf(fpgaerr.IoError, "meta: read ref_ids bin %d count", bin)
		}
		ids := make([]string, refCount)
		for i := range ids {
			var idLen uint32
			if err := binary.Read(br, binary.LittleEndian, &idLen); err != nil {
				return Meta{}, fpgaerr.Wrapf(fpgaerr.IoError, "meta: read ref_id length bin %d", bin)
			}
			idBuf := make([]byte, idLen)
			if _, err := io.ReadFull(br, idBuf); err != nil {
				return Meta{}, fpgaerr.Wrapf(fpgaerr.IoError, "meta: read ref_id bin %d", bin)
			}
			ids[i] = string(idBuf)
		}
		m.RefIDs[bin] = ids
	}

	var storedChecksum uint64
	if err := binary.Read(br, binary.LittleEndian, &storedChecksum); err != nil {
		return Meta{}, fpgaerr.Wrap(fpgaerr.IoError, "meta: read checksum")
	}
	if err := m.Verify(storedChecksum); err != nil {
		return Meta{}, err
	}
	return m, nil
}
