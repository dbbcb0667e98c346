// Command vecgraph-inspect exercises the core end to end: it builds an
// in-memory HNSW index over randomly generated vectors, serializes the
// resulting graph to a version-partitioned index directory, reads the
// root node's record back from disk with serializer.ReadNode, and runs
// one ANN query against the live index. It is a debugging aid in the style of
// frigg-cli, not a production ingest path.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cosdata/vecgraph/internal/bufio"
	"github.com/cosdata/vecgraph/internal/cache"
	"github.com/cosdata/vecgraph/internal/config"
	"github.com/cosdata/vecgraph/internal/hnsw"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/cosdata/vecgraph/internal/serializer"
	"github.com/cosdata/vecgraph/internal/version"
)

var (
	dir       string
	dims      int
	numVecs   int
	queryK    int
	metricTag string
	seed      int64
)

func init() {
	flag.StringVar(&dir, "dir", "", "index directory to write the demo graph into")
	flag.IntVar(&dims, "dims", 8, "vector dimensionality")
	flag.IntVar(&numVecs, "n", 100, "number of random vectors to insert")
	flag.IntVar(&queryK, "k", 5, "number of nearest neighbors to return per query")
	flag.StringVar(&metricTag, "metric", "cosine", "cosine|dot|euclidean")
	flag.Int64Var(&seed, "seed", 1, "random seed for the generated vectors")
}

func main() {
	flag.Parse()
	logger := log.NewLogfmtLogger(os.Stdout)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if dir == "" {
		level.Error(logger).Log("msg", "-dir is required")
		os.Exit(1)
	}

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "run failed", "err", err)
		os.Exit(1)
	}
}

func distanceFuncFor(tag string) (hnsw.DistanceFunc, error) {
	switch tag {
	case "cosine":
		return metric.CosineSimilarity, nil
	case "dot":
		return metric.DotProduct, nil
	case "euclidean":
		return metric.EuclideanDistance, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", tag)
	}
}

type memVectorStore struct {
	vecs map[uint64][]float32
}

func (s *memVectorStore) Vector(id uint64) ([]float32, bool) {
	v, ok := s.vecs[id]
	return v, ok
}

func run(logger log.Logger) error {
	dist, err := distanceFuncFor(metricTag)
	if err != nil {
		return err
	}

	mgr, err := bufio.New(dir)
	if err != nil {
		return err
	}
	defer mgr.Close()

	coll := config.NewCollection("vecgraph-inspect-demo", dir)
	coll.CacheExpectedEntries = uint(numVecs*2 + 16)
	handle := config.NewHandle(coll)
	if err := coll.Save(filepath.Join(dir, "collection.yaml")); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	level.Info(logger).Log("msg", "collection config written", "id", coll.ID, "path", filepath.Join(dir, "collection.yaml"))

	versions := version.NewController()
	versionHash, versionNumber := versions.AddNextVersion(handle.Get().Branch)

	store := &memVectorStore{vecs: make(map[uint64][]float32)}
	c := cache.New(panicSource{}, handle.Get().CacheExpectedEntries)

	hyper := handle.Get().HNSW.ToHyperParams()
	idx := hnsw.New(hyper, c, store, dist, versions, handle.Get().Branch, 0)

	rng := rand.New(rand.NewSource(seed))
	level.Info(logger).Log("msg", "inserting vectors", "count", numVecs, "dims", dims)
	for i := 0; i < numVecs; i++ {
		id := uint64(i + 1)
		vec := randomVector(rng, dims)
		store.vecs[id] = vec
		if err := idx.Insert(id, vec, probnode.PropLocation{}); err != nil {
			return fmt.Errorf("insert %d: %w", id, err)
		}
	}
	level.Info(logger).Log("msg", "insertion complete", "version_hash", versionHash, "version_number", versionNumber)

	cur, err := mgr.Open(fmt.Sprintf("%d.index", versionHash))
	if err != nil {
		return err
	}
	codec := serializer.NewCodec(cur, c)

	root := idx.Root()
	if root == nil {
		return fmt.Errorf("index has no root after insertion")
	}
	loc, err := codec.WriteNode(root)
	if err != nil {
		return fmt.Errorf("serialize root: %w", err)
	}
	level.Info(logger).Log("msg", "root serialized", "offset", loc.Offset, "nodes_written", codec.Written())

	reloaded, err := serializer.ReadNode(cur, loc)
	if err != nil {
		return fmt.Errorf("reload root: %w", err)
	}
	level.Info(logger).Log("msg", "root reloaded from disk", "id", reloaded.ID, "level", reloaded.HNSWLevel)

	query := randomVector(rng, dims)
	results, err := idx.Search(hnsw.SearchQuery{Vector: query, K: queryK})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for i, r := range results {
		level.Info(logger).Log("msg", "search result", "rank", i, "id", r.ID, "score", r.Score)
	}

	return nil
}

func randomVector(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

// panicSource backs the cache for this demo: every node the demo
// touches is constructed in memory during insertion, so a real
// disk-fault path is never exercised here.
type panicSource struct{}

func (panicSource) Load(loc lazy.FileLocator, isLevel0 bool) (*probnode.ProbNode, error) {
	return nil, fmt.Errorf("unexpected disk load in demo")
}
