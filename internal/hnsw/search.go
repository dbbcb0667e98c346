package hnsw

import (
	"time"

	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/metrics"
)

// Search implements §4.H search: descend greedily to level 1, run a
// beam search of width ef at level 0, drop candidates rejected by
// filter, and return the top-k by distance.
func (idx *Index) Search(query SearchQuery) ([]SimilarVector, error) {
	timer := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(timer).Seconds()) }()

	root := idx.Root()
	if root == nil {
		return nil, errs.Invariant(false, "search called on an empty index")
	}

	rootData, err := root.TryGetData(idx.Cache)
	if err != nil {
		return nil, err
	}

	cur := root
	for l := rootData.HNSWLevel; l > 0; l-- {
		best, err := idx.beamSearch(cur, query.Vector, 1)
		if err != nil {
			return nil, err
		}
		cur = best[0].item
		curData, err := cur.TryGetData(idx.Cache)
		if err != nil {
			return nil, err
		}
		if child := curData.Child(); child != nil {
			cur = child
		}
	}

	ef := idx.Hyper.EfSearch
	candidates, err := idx.beamSearch(cur, query.Vector, ef)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarVector, 0, query.K)
	for _, c := range candidates {
		if query.Filter != nil && !query.Filter(c.id) {
			continue
		}
		out = append(out, SimilarVector{ID: c.id, Score: c.dist.Value})
		if len(out) == query.K {
			break
		}
	}
	return out, nil
}

// BatchSearch runs queries in parallel over the index's worker pool,
// per §4.H step 2: per-query tasks unordered, results retaining input
// order.
func (idx *Index) BatchSearch(queries []SearchQuery) ([][]SimilarVector, error) {
	return idx.searchPool.RunAll(queries, idx.Search)
}
