// Package align implements the pairwise aligner (C6): a semi-global,
// unit-cost edit-distance alignment with free leading/trailing gaps on the
// reference and charged end gaps on the query, producing a CIGAR via
// github.com/biogo/hts/sam.
//
// Grounded on original_source/src/search/do_alignment.cpp's align_cfg:
// match 0, mismatch -1, gap open -1, gap extend -1 (since open == extend,
// a single linear-gap DP is an exact, not approximate, rendition of the
// unit-cost affine scheme), sequence1 (reference) free end gaps,
// sequence2 (query) end gaps charged.
package align

import (
	"github.com/biogo/hts/sam"
	"github.com/fpgalign/fpgalign/internal/fpgaerr"
)

const mismatchPenalty = -1
const gapPenalty = -1

// Result is one alignment's outcome.
type Result struct {
	Score      int
	BeginOnRef int // row in ref where the optimal alignment starts
	Cigar      []sam.CigarOp
}

// Align runs the semi-global alignment of query against ref. ref is
// expected to already be the sliced window C6 computes (start =
// max(ref_pos-1,0), length |query|+1, clamped to the reference's end).
// Returns fpgaerr.AlignmentEmpty if no traceback exists (ref or query is
// empty after slicing).
func Align(ref, query []byte) (Result, error) {
	n, m := len(ref), len(query)
	if n == 0 || m == 0 {
		return Result{}, fpgaerr.Wrap(fpgaerr.AlignmentEmpty, "alignment produced no traceback")
	}

	dp := make([][]int, n+1)
	trace := make([][]byte, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		trace[i] = make([]byte, m+1)
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = -j
		trace[0][j] = 'L'
	}
	for i := 0; i <= n; i++ {
		dp[i][0] = 0
		trace[i][0] = 'U'
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			diag := dp[i-1][j-1]
			if ref[i-1] != query[j-1] {
				diag += mismatchPenalty
			}
			up := dp[i-1][j] + gapPenalty
			left := dp[i][j-1] + gapPenalty

			best, dir := diag, byte('D')
			if up > best {
				best, dir = up, 'U'
			}
			if left > best {
				best, dir = left, 'L'
			}
			dp[i][j] = best
			trace[i][j] = dir
		}
	}

	bestI, bestScore := 0, dp[0][m]
	for i := 1; i <= n; i++ {
		if dp[i][m] > bestScore {
			bestScore, bestI = dp[i][m], i
		}
	}

	i, j := bestI, m
	var ops []byte
	for j > 0 {
		switch trace[i][j] {
		case 'D':
			ops = append(ops, 'M')
			i--
			j--
		case 'U':
			ops = append(ops, 'D')
			i--
		default: // 'L'
			ops = append(ops, 'I')
			j--
		}
	}
	if len(ops) == 0 {
		return Result{}, fpgaerr.Wrap(fpgaerr.AlignmentEmpty, "alignment produced no traceback")
	}
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}

	return Result{Score: bestScore, BeginOnRef: i, Cigar: runLengthEncode(ops)}, nil
}

func runLengthEncode(ops []byte) []sam.CigarOp {
	var out []sam.CigarOp
	i := 0
	for i < len(ops) {
		j := i
		for j < len(ops) && ops[j] == ops[i] {
			j++
		}
		out = append(out, sam.NewCigarOp(cigarType(ops[i]), j-i))
		i = j
	}
	return out
}

func cigarType(b byte) sam.CigarOpType {
	switch b {
	case 'M':
		return sam.CigarMatch
	case 'I':
		return sam.CigarInsertion
	case 'D':
		return sam.CigarDeletion
	default:
		panic("align: unreachable cigar op")
	}
}

// MAPQ implements the resolved Open Question from spec.md §9: mapq =
// 60+score, clamped to [0,60] rather than left to wrap via unsigned
// arithmetic.
func MAPQ(score int) byte {
	v := 60 + score
	if v < 0 {
		v = 0
	}
	if v > 60 {
		v = 60
	}
	return byte(v)
}
