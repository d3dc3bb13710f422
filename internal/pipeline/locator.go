package pipeline

import (
	"github.com/fpgalign/fpgalign/internal/cart"
	"github.com/fpgalign/fpgalign/internal/reference"
	"golang.org/x/sync/errgroup"
)

// RunLocator is C5: each worker dequeues a cart of same-bin query indices
// from q1, loads that bin's FM-index once (amortized across the cart), runs
// a bounded-error search per query, and pushes located occurrences onto q2.
// It closes q2 once every worker has drained q1, per spec.md §4.5.
func RunLocator(loader Loader, queries []reference.Sequence, errorsBudget, threads int, q1 *cart.Queue[int], q2 *cart.Queue[LocateItem]) error {
	defer q2.Close()
	if threads < 1 {
		threads = 1
	}

	var eg errgroup.Group
	for w := 0; w < threads; w++ {
		eg.Go(func() error {
			for {
				handle := q1.Dequeue()
				if !handle.Valid() {
					return nil
				}

				bin, values, err := handle.Get()
				if err != nil {
					handle.Release()
					return err
				}

				index, err := loader.FMIndex(bin)
				if err != nil {
					handle.Release()
					return err
				}

				for _, queryIdx := range values {
					query := queries[queryIdx]
					for _, occ := range index.Search(query.Ranks, errorsBudget) {
						item := LocateItem{Bin: bin, RefSeq: occ.SeqIdx, RefPos: occ.Pos, QueryIndex: queryIdx}
						if err := q2.Enqueue(0, item); err != nil {
							handle.Release()
							return err
						}
					}
				}
				handle.Release()
			}
		})
	}
	return eg.Wait()
}
