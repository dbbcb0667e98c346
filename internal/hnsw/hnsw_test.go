package hnsw

import (
	"fmt"
	"testing"

	"github.com/cosdata/vecgraph/internal/cache"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/cosdata/vecgraph/internal/version"
	"github.com/stretchr/testify/require"
)

// panicSource is wired into the cache for these tests: every node
// created here is constructed Ready in memory, so the cache never
// needs to fault one in from durable storage.
type panicSource struct{}

func (panicSource) Load(loc lazy.FileLocator, isLevel0 bool) (*probnode.ProbNode, error) {
	return nil, fmt.Errorf("unexpected cache miss for %+v", loc)
}

// memVectorStore is an in-memory VectorStore fixture.
type memVectorStore struct {
	vecs map[uint64][]float32
}

func newMemVectorStore() *memVectorStore { return &memVectorStore{vecs: make(map[uint64][]float32)} }

func (s *memVectorStore) put(id uint64, v []float32) { s.vecs[id] = v }

func (s *memVectorStore) Vector(id uint64) ([]float32, bool) {
	v, ok := s.vecs[id]
	return v, ok
}

func newTestIndex(t *testing.T, numLayers uint8) (*Index, *memVectorStore) {
	t.Helper()
	c := cache.New(panicSource{}, 1000)
	store := newMemVectorStore()
	hyper := HyperParams{
		NumLayers:       numLayers,
		M:               4,
		M0:              8,
		EfConstruction:  10,
		EfSearch:        10,
		LevelEntryRatio: 4.0,
	}
	idx := New(hyper, c, store, metric.CosineSimilarity, version.NewController(), version.DefaultBranch, 0)
	return idx, store
}

func TestInsertFirstNodeBecomesRoot(t *testing.T) {
	idx, store := newTestIndex(t, 4)
	store.put(1, []float32{1, 0, 0})

	require.NoError(t, idx.insertFirstNode(1, []float32{1, 0, 0}, probnode.PropLocation{}, 2, 0, 0))
	require.NotNil(t, idx.Root())

	rootData, err := idx.Root().TryGetData(idx.Cache)
	require.NoError(t, err)
	require.EqualValues(t, 1, rootData.ID)
	require.EqualValues(t, 2, rootData.HNSWLevel)
}

func TestInsertAndSearchFindsNearestVector(t *testing.T) {
	idx, store := newTestIndex(t, 1)

	vectors := map[uint64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {0.9, 0.1},
		4: {-1, 0},
	}
	for id, v := range vectors {
		store.put(id, v)
		require.NoError(t, idx.Insert(id, v, probnode.PropLocation{}))
	}

	results, err := idx.Search(SearchQuery{Vector: []float32{1, 0}, K: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, uint64(1), results[0].ID, "the query vector's exact match must rank first")
}

func TestBatchSearchPreservesInputOrder(t *testing.T) {
	idx, store := newTestIndex(t, 1)
	for id, v := range map[uint64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {-1, 0},
	} {
		store.put(id, v)
		require.NoError(t, idx.Insert(id, v, probnode.PropLocation{}))
	}

	queries := []SearchQuery{
		{Vector: []float32{1, 0}, K: 1},
		{Vector: []float32{0, 1}, K: 1},
		{Vector: []float32{-1, 0}, K: 1},
	}
	results, err := idx.BatchSearch(queries)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, uint64(1), results[0][0].ID)
	require.Equal(t, uint64(2), results[1][0].ID)
	require.Equal(t, uint64(3), results[2][0].ID)
}

func TestPseudoReplicaReachableFromRoot(t *testing.T) {
	idx, store := newTestIndex(t, 3)

	store.put(1, []float32{1, 0, 0})
	require.NoError(t, idx.Insert(1, []float32{1, 0, 0}, probnode.PropLocation{}))

	allOnes := []float32{1, 1, 1}
	store.put(PseudoReplicaID, allOnes)
	require.NoError(t, idx.InsertPseudoReplica(allOnes, probnode.PropLocation{}))

	// Descend level 0 neighbor links from the root's level-0
	// identity and confirm the pseudo-replica id is reachable.
	root := idx.Root()
	rootData, err := root.TryGetData(idx.Cache)
	require.NoError(t, err)

	cur := rootData
	curItem := root
	for cur.HNSWLevel > 0 {
		child := cur.Child()
		require.NotNil(t, child)
		curItem = child
		cur, err = child.TryGetData(idx.Cache)
		require.NoError(t, err)
	}

	found := cur.ID == PseudoReplicaID
	for _, nb := range cur.Neighbors() {
		if nb.ID == uint32(PseudoReplicaID) {
			found = true
		}
	}
	require.True(t, found, "pseudo-replica must be reachable from the root's level-0 node")
	_ = curItem
}

func TestReciprocalNeighborAtOlderVersionIsForwarded(t *testing.T) {
	// §4.H insertion step 4: a neighbor discovered by beam search that
	// was last mutated at an older commit than the one now being
	// written must not be mutated in place — its current-version
	// successor takes the reciprocal add_neighbor instead, attached to
	// its version chain.
	idx, store := newTestIndex(t, 1)

	store.put(1, []float32{1, 0})
	require.NoError(t, idx.Insert(1, []float32{1, 0}, probnode.PropLocation{}))

	root := idx.Root()
	require.EqualValues(t, 0, root.CurrentVersionNumber(), "first node commits at the implicit version 0")

	// The first AddNextVersion call only registers the hash for the
	// implicit version 0 already committed above; the second actually
	// advances the branch tip to version 1.
	idx.Versions.AddNextVersion(idx.Branch)
	_, versionNumber := idx.Versions.AddNextVersion(idx.Branch)
	require.EqualValues(t, 1, versionNumber)

	store.put(2, []float32{0.9, 0.1})
	require.NoError(t, idx.Insert(2, []float32{0.9, 0.1}, probnode.PropLocation{}))

	rootData, err := root.TryGetData(idx.Cache)
	require.NoError(t, err)
	require.Equal(t, 1, rootData.VersionsArray().Len(),
		"the older-version root must have gained exactly one version-chain successor")

	successor, ok := rootData.VersionsArray().Get(0)
	require.True(t, ok)
	require.EqualValues(t, 1, successor.CurrentVersionNumber())

	successorData, err := successor.TryGetData(idx.Cache)
	require.NoError(t, err)

	foundReciprocal := false
	for _, nb := range successorData.Neighbors() {
		if nb.ID == 2 {
			foundReciprocal = true
		}
	}
	require.True(t, foundReciprocal, "the new node must be reciprocally linked onto the version successor, not the frozen original")

	for _, nb := range rootData.Neighbors() {
		require.NotEqual(t, uint32(2), nb.ID, "the original, older-version node must stay untouched")
	}
}

func TestLevelProbsSumToOne(t *testing.T) {
	probs := LevelProbs(8, 4.0)
	var sum float64
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestLevelProbsMonotonicallyDecrease(t *testing.T) {
	probs := LevelProbs(8, 4.0)
	for i := 1; i < len(probs); i++ {
		require.Less(t, probs[i], probs[i-1])
	}
}

func TestPseudoLevelProbsZeroesReservedLevels(t *testing.T) {
	probs := PseudoLevelProbs(8, 2)
	require.Zero(t, probs[6])
	require.Zero(t, probs[7])
	var sum float64
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestSampleLevelRespectsDistributionBounds(t *testing.T) {
	probs := []float64{0.5, 0.3, 0.2}
	require.EqualValues(t, 0, SampleLevel(probs, 0.0))
	require.EqualValues(t, 1, SampleLevel(probs, 0.5))
	require.EqualValues(t, 2, SampleLevel(probs, 0.9))
}
