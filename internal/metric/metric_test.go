package metric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBetterForSimilarityIsHigherIsBetter(t *testing.T) {
	a := Result{Kind: CosineSimilarityKind, Value: 0.9}
	b := Result{Kind: CosineSimilarityKind, Value: 0.3}
	require.True(t, Better(a, b))
	require.False(t, Better(b, a))
}

func TestBetterForEuclideanIsLowerIsBetter(t *testing.T) {
	near := Result{Kind: EuclideanDistanceKind, Value: 0.1}
	far := Result{Kind: EuclideanDistanceKind, Value: 5.0}
	require.True(t, Better(near, far))
	require.False(t, Better(far, near))
}

func TestWorstPicksWorseOfSimilarityCandidates(t *testing.T) {
	candidates := []Result{
		{Kind: CosineSimilarityKind, Value: 0.5},
		{Kind: CosineSimilarityKind, Value: 0.1},
		{Kind: CosineSimilarityKind, Value: 0.9},
	}
	require.Equal(t, 1, Worst(candidates))
}

func TestCosineSimilarityOfIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	r := CosineSimilarity(v, v)
	require.InDelta(t, 1.0, r.Value, 1e-6)
}

func TestCosineSimilarityOfOrthogonalVectorsIsZero(t *testing.T) {
	r := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.InDelta(t, 0.0, r.Value, 1e-6)
}

func TestCosineSimilarityZeroVectorIsZero(t *testing.T) {
	r := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.Zero(t, r.Value)
}

// TestNeighborOverwriteKeepsEightBestOfTen is the M=8 neighbor overwrite
// scenario: inserting 10 distances under CosineSimilarity ordering and
// keeping the slot set open must retain the 8 highest after each
// eviction, matching the add_neighbor worst-replace policy in
// internal/probnode.
func TestNeighborOverwriteKeepsEightBestOfTen(t *testing.T) {
	const m = 8
	slots := make([]Result, 0, m)

	for i := 1; i <= 10; i++ {
		d := Result{Kind: CosineSimilarityKind, Value: float32(i) / 10}
		if len(slots) < m {
			slots = append(slots, d)
			continue
		}
		worstIdx := Worst(slots)
		if Better(d, slots[worstIdx]) {
			slots[worstIdx] = d
		}
	}

	require.Len(t, slots, m)
	var sum float32
	for _, s := range slots {
		require.GreaterOrEqual(t, s.Value, float32(0.3)-1e-6)
		sum += s.Value
	}
	// 0.3 + 0.4 + ... + 1.0
	require.InDelta(t, float32(5.2), sum, 1e-4)
}
