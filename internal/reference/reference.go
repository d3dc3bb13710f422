// Package reference loads FASTA reference sequences and encodes them as the
// 2-bit DNA ranks used throughout build and search, persisting them to the
// `.ref` format.
//
// Loading follows the scanning style of the teacher's encoding/fasta
// package (bufio.Scanner, '>' starts a new record, name is the token before
// the first space): see _examples/grailbio-bio/encoding/fasta/fasta.go.
package reference

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/fpgalign/fpgalign/internal/fpgaerr"
	"github.com/golang/snappy"
)

// Sequence is one named reference, ranks encoded 1..4 (A,C,G,T) — the
// on-disk and FM-index alphabet resolved in SPEC_FULL.md §3. No `5`
// separator is ever embedded in a Sequence's Ranks; that value is
// synthesized only by internal/fmindex between concatenated sequences of a
// bin.
type Sequence struct {
	ID    string
	Ranks []byte
}

// MinimiserRanks returns the sequence re-based to {0,1,2,3} for C1's rolling
// hash, which operates on 0-based ranks (spec.md §4.1).
func (s Sequence) MinimiserRanks() []uint8 {
	out := make([]uint8, len(s.Ranks))
	for i, r := range s.Ranks {
		out[i] = r - 1
	}
	return out
}

// Complement returns the reverse-complement of ranks encoded in {1,2,3,4}:
// complement(r) = 5-r pairs A<->T (1<->4) and C<->G (2<->3), the same
// pairing as C1's 0-based XOR-0b11 complement shifted by the +1 encoding.
func Complement(ranks []byte) []byte {
	out := make([]byte, len(ranks))
	for i, r := range ranks {
		out[len(ranks)-1-i] = 5 - r
	}
	return out
}

var baseRank = map[byte]byte{
	'A': 1, 'a': 1,
	'C': 2, 'c': 2,
	'G': 3, 'g': 3,
	'T': 4, 't': 4,
}

var rankBase = [5]byte{0, 'A', 'C', 'G', 'T'}

// Letters converts rank-encoded bases ({1,2,3,4}) back to upper-case ACGT,
// for emitting the SAM SEQ field.
func Letters(ranks []byte) []byte {
	out := make([]byte, len(ranks))
	for i, r := range ranks {
		out[i] = rankBase[r]
	}
	return out
}

// LoadFASTA parses FASTA-formatted records from r into Sequences, in file
// order. Any base outside {A,C,G,T} (case-insensitive) is an IoError: the
// pipeline has no ambiguity-code handling.
func LoadFASTA(r io.Reader) ([]Sequence, error) {
	var out []Sequence
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 64*1024*1024)

	var cur *Sequence
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name := strings.SplitN(line[1:], " ", 2)[0]
			cur = &Sequence{ID: name}
			continue
		}
		if cur == nil {
			return nil, fpgaerr.Wrap(fpgaerr.IoError, "fasta: sequence data before any header")
		}
		for i := 0; i < len(line); i++ {
			rank, ok := baseRank[line[i]]
			if !ok {
				return nil, fpgaerr.Wrapf(fpgaerr.IoError, "fasta: sequence %q has non-ACGT base %q", cur.ID, line[i])
			}
			cur.Ranks = append(cur.Ranks, rank)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "fasta: scan")
	}
	if len(out) == 0 {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "fasta: no sequences found")
	}
	return out, nil
}

// Store persists sequences (one bin's worth) to w, snappy-compressed.
// Field order: sequence count, then per sequence: id length, id bytes,
// rank count, rank bytes.
func Store(w io.Writer, sequences []Sequence) error {
	sw := snappy.NewBufferedWriter(w)
	bw := bufio.NewWriter(sw)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(sequences))); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ref: write sequence count")
	}
	for _, seq := range sequences {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(seq.ID))); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "ref: write id length")
		}
		if _, err := bw.WriteString(seq.ID); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "ref: write id")
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(seq.Ranks))); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "ref: write rank count")
		}
		if _, err := bw.Write(seq.Ranks); err != nil {
			return fpgaerr.Wrap(fpgaerr.IoError, "ref: write ranks")
		}
	}
	if err := bw.Flush(); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ref: flush")
	}
	if err := sw.Close(); err != nil {
		return fpgaerr.Wrap(fpgaerr.IoError, "ref: close snappy writer")
	}
	return nil
}

// Load reads sequences previously written by Store.
func Load(r io.Reader) ([]Sequence, error) {
	sr := bufio.NewReader(snappy.NewReader(r))

	var count uint32
	if err := binary.Read(sr, binary.LittleEndian, &count); err != nil {
		return nil, fpgaerr.Wrap(fpgaerr.IoError, "ref: read sequence count")
	}
	out := make([]Sequence, count)
	for i := range out {
		var idLen uint32
		if err := binary.Read(sr, binary.LittleEndian, &idLen); err != nil {
			return nil, fpgaerr.Wrap(fpgaerr.IoError, "ref: read id length")
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(sr, idBuf); err != nil {
			return nil, fpgaerr.Wrap(fpgaerr.IoError, "ref: read id")
		}
		var rankLen uint32
		if err := binary.Read(sr, binary.LittleEndian, &rankLen); err != nil {
			return nil, fpgaerr.Wrap(fpgaerr.IoError, "ref: read rank count")
		}
		ranks := make([]byte, rankLen)
		if _, err := io.ReadFull(sr, ranks); err != nil {
			return nil, fpgaerr.Wrap(fpgaerr.IoError, "ref: read ranks")
		}
		out[i] = Sequence{ID: string(idBuf), Ranks: ranks}
	}
	return out, nil
}
