// Package hnsw implements HNSW Index Ops (§4.H): insertion and search
// over the Prob Node graph, including the pseudo-replica construction
// that keeps metadata-encoded query dimensions reachable from the
// root. Grounded on the original source's index_manager /
// api_service.rs run_upload path, expressed here as plain Go functions
// over internal/probnode, internal/versionchain, internal/cache, and
// internal/metric rather than the original's free functions closing
// over a global AppState.
package hnsw

// HyperParams mirrors §4.H's HNSWHyperParams.
type HyperParams struct {
	NumLayers                   uint8 // <= 16
	M                           int   // neighbors_count
	M0                          int   // level_0_neighbors_count
	EfConstruction              int
	EfSearch                    int
	LayerZeroNeighborhoodExpansion int
	LevelEntryRatio             float64 // default 4.0
}

// DefaultHyperParams returns a reasonable small-scale configuration,
// the way the original source's config.rs ships working defaults
// rather than forcing every caller to hand-tune all seven knobs.
func DefaultHyperParams() HyperParams {
	return HyperParams{
		NumLayers:                      16,
		M:                              16,
		M0:                             32,
		EfConstruction:                 100,
		EfSearch:                       50,
		LayerZeroNeighborhoodExpansion: 0,
		LevelEntryRatio:                4.0,
	}
}

func (h HyperParams) fanOutForLevel(isLevel0 bool) int {
	if isLevel0 {
		return h.M0
	}
	return h.M
}
