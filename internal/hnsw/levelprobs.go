package hnsw

import "math"

// PseudoReplicaID is the id reserved for the single all-ones pseudo
// vector inserted when a metadata schema is bound to the collection,
// per §4.H's pseudo-replica construction: 2^56 - 1.
const PseudoReplicaID uint64 = (1 << 56) - 1

// LevelProbs computes the per-level insertion probability
// distribution: P(level=l) is proportional to exp(-l / levelMult),
// the standard exponentially-decaying layer assignment used by HNSW,
// normalized to sum to 1 across numLayers levels.
func LevelProbs(numLayers uint8, levelMult float64) []float64 {
	probs := make([]float64, numLayers)
	var total float64
	for l := 0; l < int(numLayers); l++ {
		p := math.Exp(-float64(l) / levelMult)
		probs[l] = p
		total += p
	}
	for l := range probs {
		probs[l] /= total
	}
	return probs
}

// PseudoLevelProbs restricts LevelProbs so that the top reservedLevels
// layers have zero probability of hosting a real vector: those layers
// are reserved for the pseudo-replica construction, reachable only
// through the deterministic placement in InsertPseudoReplica.
func PseudoLevelProbs(numLayers uint8, reservedLevels uint8) []float64 {
	probs := LevelProbs(numLayers, 4.0)
	if reservedLevels >= numLayers {
		reservedLevels = numLayers - 1
	}
	for l := int(numLayers) - int(reservedLevels); l < int(numLayers); l++ {
		probs[l] = 0
	}
	var total float64
	for _, p := range probs {
		total += p
	}
	if total == 0 {
		return probs
	}
	for l := range probs {
		probs[l] /= total
	}
	return probs
}

// SampleLevel draws a level from a cumulative distribution computed
// over probs, using u (expected uniform in [0, 1)) as the draw.
func SampleLevel(probs []float64, u float64) uint8 {
	var cum float64
	for l, p := range probs {
		cum += p
		if u < cum {
			return uint8(l)
		}
	}
	return uint8(len(probs) - 1)
}
