package hnsw

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/cosdata/vecgraph/internal/cache"
	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/cosdata/vecgraph/internal/version"
	"github.com/cosdata/vecgraph/internal/workerpool"
)

// VectorStore resolves a node id to its quantized vector, standing in
// for the property-file + quantizer pipeline the data-flow note in
// §2 describes (out of this core's module list, §1.A-H); callers wire
// a real implementation backed by the property file and quantizer.
type VectorStore interface {
	Vector(id uint64) ([]float32, bool)
}

// DistanceFunc computes a metric.Result between two vectors, one of
// metric.CosineSimilarity / DotProduct / EuclideanDistance.
type DistanceFunc func(a, b []float32) metric.Result

// SearchQuery is one batched search request.
type SearchQuery struct {
	ID     uint64
	Vector []float32
	K      int
	Filter func(nodeID uint64) bool // metadata-predicate filter; nil accepts everything
}

// SimilarVector is one ranked search result, per §6's SimilarVector DTO.
type SimilarVector struct {
	ID    uint64
	Score float32
}

// Index is one open HNSW index over a collection's dense vectors.
// Construct one per open collection; it owns the cache and the
// top-level entry point.
type Index struct {
	Hyper    HyperParams
	Cache    *cache.Cache
	Vectors  VectorStore
	Distance DistanceFunc
	Versions *version.Controller
	Branch   string

	levelProbs       []float64
	pseudoLevelProbs []float64
	reservedLevels   uint8

	rootMu sync.RWMutex
	root   *lazy.Item[*probnode.ProbNode]

	rngMu sync.Mutex
	rng   *rand.Rand

	searchPool *workerpool.Pool[SearchQuery, []SimilarVector]
}

// New constructs an Index. reservedLevels is the number of top layers
// set aside for the pseudo-replica construction when a metadata
// schema is bound; pass 0 when the collection has no metadata schema.
func New(hyper HyperParams, c *cache.Cache, vectors VectorStore, distance DistanceFunc, versions *version.Controller, branch string, reservedLevels uint8) *Index {
	return &Index{
		Hyper:            hyper,
		Cache:            c,
		Vectors:          vectors,
		Distance:         distance,
		Versions:         versions,
		Branch:           branch,
		levelProbs:       LevelProbs(hyper.NumLayers, hyper.LevelEntryRatio),
		pseudoLevelProbs: PseudoLevelProbs(hyper.NumLayers, reservedLevels),
		reservedLevels:   reservedLevels,
		rng:              rand.New(rand.NewSource(1)),
		searchPool:       workerpool.NewPool[SearchQuery, []SimilarVector](workerpool.DefaultConfig()),
	}
}

func (idx *Index) Root() *lazy.Item[*probnode.ProbNode] {
	idx.rootMu.RLock()
	defer idx.rootMu.RUnlock()
	return idx.root
}

func (idx *Index) setRoot(item *lazy.Item[*probnode.ProbNode]) {
	idx.rootMu.Lock()
	idx.root = item
	idx.rootMu.Unlock()
}

func (idx *Index) sampleLevel(probs []float64) uint8 {
	idx.rngMu.Lock()
	u := idx.rng.Float64()
	idx.rngMu.Unlock()
	return SampleLevel(probs, u)
}

// candidate is one beam-search frontier entry.
type candidate struct {
	item *lazy.Item[*probnode.ProbNode]
	id   uint64
	dist metric.Result
}

func sortByBetter(c []candidate) {
	sort.Slice(c, func(i, j int) bool { return metric.Better(c[i].dist, c[j].dist) })
}

// beamSearch runs best-first search from entry over entry's level's
// neighbor graph, keeping the ef best candidates seen and stopping once
// the nearest unexpanded frontier node is worse than the ef-th best,
// per §4.H step 1/2.
func (idx *Index) beamSearch(entry *lazy.Item[*probnode.ProbNode], query []float32, ef int) ([]candidate, error) {
	visited := make(map[uint64]bool)

	entryData, err := entry.TryGetData(idx.Cache)
	if err != nil {
		return nil, err
	}
	entryVec, ok := idx.Vectors.Vector(entryData.ID)
	if !ok {
		return nil, errs.Invariant(false, "beam search entry point has no stored vector")
	}
	start := candidate{item: entry, id: entryData.ID, dist: idx.Distance(query, entryVec)}
	visited[start.id] = true

	frontier := []candidate{start}
	best := []candidate{start}

	for len(frontier) > 0 {
		sortByBetter(frontier)
		cur := frontier[0]
		frontier = frontier[1:]

		if len(best) >= ef {
			sortByBetter(best)
			if metric.Better(best[ef-1].dist, cur.dist) {
				break
			}
		}

		curData, err := cur.item.TryGetData(idx.Cache)
		if err != nil {
			return nil, err
		}
		for _, nb := range curData.Neighbors() {
			id := uint64(nb.ID)
			if visited[id] {
				continue
			}
			visited[id] = true

			vec, ok := idx.Vectors.Vector(id)
			if !ok {
				continue
			}
			d := idx.Distance(query, vec)
			entry := candidate{item: nb.Ref, id: id, dist: d}
			frontier = append(frontier, entry)
			best = append(best, entry)
		}
	}

	sortByBetter(best)
	if len(best) > ef {
		best = best[:ef]
	}
	return best, nil
}

func (idx *Index) newNode(id uint64, level uint8, loc probnode.PropLocation) *probnode.ProbNode {
	isLevel0 := level == 0
	return probnode.New(id, level, isLevel0, idx.Hyper.fanOutForLevel(isLevel0), loc, nil)
}

func (idx *Index) wrap(n *probnode.ProbNode, versionHash version.Hash, versionNumber version.Number) *lazy.Item[*probnode.ProbNode] {
	return lazy.NewReady[*probnode.ProbNode](n, versionHash, versionNumber, n.IsLevel0, 0)
}
