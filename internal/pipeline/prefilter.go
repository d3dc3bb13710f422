package pipeline

import (
	"math/rand"

	"github.com/fpgalign/fpgalign/internal/cart"
	"github.com/fpgalign/fpgalign/internal/ibf"
	"github.com/fpgalign/fpgalign/internal/minimiser"
	"github.com/fpgalign/fpgalign/internal/reference"
	"github.com/fpgalign/fpgalign/internal/threshold"
	"golang.org/x/sync/errgroup"
)

// shuffleOrder returns a permutation of [0,n) from the fixed seed-0 PRNG
// spec.md §4.4 requires, so adjacent-similar queries spread across bins.
func shuffleOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rand.New(rand.NewSource(0)).Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// chunks splits order into up to `workers` contiguous slices, as even as
// possible, one per C4 worker.
func chunks(order []int, workers int) [][]int {
	if workers < 1 {
		workers = 1
	}
	if workers > len(order) {
		workers = len(order)
	}
	if workers == 0 {
		return nil
	}
	out := make([][]int, 0, workers)
	base, rem := len(order)/workers, len(order)%workers
	start := 0
	for w := 0; w < workers; w++ {
		size := base
		if w < rem {
			size++
		}
		out = append(out, order[start:start+size])
		start += size
	}
	return out
}

// RunPrefilter is C4: it hashes every query to its minimizer set, queries
// the Bloom filter for candidate bins, and enqueues (bin, query_index) onto
// q1. It closes q1 once every worker has finished, per spec.md §4.4.
func RunPrefilter(filter *ibf.IBF, queries []reference.Sequence, minParams minimiser.Params, thresholdParams threshold.Params, threads int, q1 *cart.Queue[int]) error {
	defer q1.Close()
	if len(queries) == 0 {
		return nil
	}

	work := chunks(shuffleOrder(len(queries)), threads)

	var eg errgroup.Group
	for _, chunk := range work {
		chunk := chunk
		eg.Go(func() error {
			// Each worker owns its membership agent and its own oracle
			// instance (neither is safe to share across goroutines).
			agent := filter.NewMembershipAgent()
			oracle := threshold.New(thresholdParams)
			thresholdFn := func(h int) int { return oracle.Get(h) }

			for _, idx := range chunk {
				hashes := minimiser.All(queries[idx].MinimiserRanks(), minParams)
				for _, bin := range agent.Query(hashes, thresholdFn) {
					if err := q1.Enqueue(int(bin), idx); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
