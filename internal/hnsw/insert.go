package hnsw

import (
	"errors"
	"time"

	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metrics"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/cosdata/vecgraph/internal/version"
	"github.com/cosdata/vecgraph/internal/versionchain"
)

// Insert implements §4.H insertion: sample a target level, greedily
// descend to that level, beam-search and link a new Prob Node at
// every level from there down to 0, and reciprocally wire neighbors,
// version-forwarding any neighbor still frozen at an older commit
// (step 4; see resolveCurrentNeighbor).
func (idx *Index) Insert(id uint64, vec []float32, propLoc probnode.PropLocation) error {
	timer := time.Now()
	defer func() { metrics.InsertDuration.Observe(time.Since(timer).Seconds()) }()

	probs := idx.levelProbs
	if idx.reservedLevels > 0 {
		probs = idx.pseudoLevelProbs
	}
	level := idx.sampleLevel(probs)
	return idx.insertAtLevel(id, vec, propLoc, level)
}

// InsertPseudoReplica inserts the all-ones pseudo vector through the
// normal insertion path but at the index's top level, deterministically
// rather than sampled, per §4.H's pseudo-replica construction: this
// forces a replica at every reserved upper layer so metadata-encoded
// query dimensions stay reachable from the root.
func (idx *Index) InsertPseudoReplica(allOnes []float32, propLoc probnode.PropLocation) error {
	return idx.insertAtLevel(PseudoReplicaID, allOnes, propLoc, idx.Hyper.NumLayers-1)
}

func (idx *Index) insertAtLevel(id uint64, vec []float32, propLoc probnode.PropLocation, level uint8) error {
	// The commit version this insertion belongs to: the branch's
	// current tip, the same version the caller most recently allocated
	// via idx.Versions.AddNextVersion. Neighbors last mutated at an
	// older version than this one take the version-forwarding path in
	// step 4 below rather than being mutated directly.
	versionNumber := idx.Versions.Tip(idx.Branch)
	versionHash, _ := idx.Versions.HashForNumber(idx.Branch, versionNumber)

	root := idx.Root()
	if root == nil {
		return idx.insertFirstNode(id, vec, propLoc, level, versionHash, versionNumber)
	}

	rootData, err := root.TryGetData(idx.Cache)
	if err != nil {
		return err
	}
	topLevel := rootData.HNSWLevel

	cur := root
	for l := topLevel; l > level; l-- {
		best, err := idx.beamSearch(cur, vec, 1)
		if err != nil {
			return err
		}
		cur = best[0].item
		if l > 0 {
			curData, err := cur.TryGetData(idx.Cache)
			if err != nil {
				return err
			}
			if child := curData.Child(); child != nil {
				cur = child
			}
		}
	}

	// entry is the best-known node at the highest level where an
	// existing graph can be searched (min(level, topLevel)); at levels
	// above topLevel the new node has no peers to link to yet, since
	// it is about to become the new, higher entry point.
	entry := cur

	levelNodes := make(map[uint8]*lazy.Item[*probnode.ProbNode])
	for l := level; ; l-- {
		var item *lazy.Item[*probnode.ProbNode]

		if l > topLevel {
			n := idx.newNode(id, l, propLoc)
			item = idx.wrap(n, versionHash, versionNumber)
		} else {
			ef := idx.Hyper.EfConstruction
			candidates, err := idx.beamSearch(entry, vec, ef)
			if err != nil {
				return err
			}

			n := idx.newNode(id, l, propLoc)
			item = idx.wrap(n, versionHash, versionNumber)

			fanOut := idx.Hyper.fanOutForLevel(l == 0)
			limit := fanOut
			if limit > len(candidates) {
				limit = len(candidates)
			}
			for i := 0; i < limit; i++ {
				c := candidates[i]
				n.AddNeighbor(uint32(c.id), c.item, c.dist)

				// Step 4: if this neighbor's identity was last mutated
				// at an older version than the one now being committed,
				// do not mutate it directly — derive its current-version
				// successor (version-forwarding it if none exists yet)
				// and reciprocate onto that successor instead.
				target, targetData, err := idx.resolveCurrentNeighbor(c.item, versionHash, versionNumber)
				if err != nil {
					return err
				}
				targetData.AddNeighbor(uint32(id), item, c.dist)
				candidates[i].item = target
			}

			if len(candidates) > 0 {
				entry = candidates[0].item
			}
			if l > 0 {
				entryData, err := entry.TryGetData(idx.Cache)
				if err != nil {
					return err
				}
				if child := entryData.Child(); child != nil {
					entry = child
				}
			}
		}

		levelNodes[l] = item
		if l == 0 {
			break
		}
	}

	for l := level; l > 0; l-- {
		upper := levelNodes[l]
		lower := levelNodes[l-1]
		upperData, err := upper.TryGetData(idx.Cache)
		if err != nil {
			return err
		}
		lowerData, err := lower.TryGetData(idx.Cache)
		if err != nil {
			return err
		}
		upperData.SetChild(lower)
		lowerData.SetParent(upper)
	}

	if level > topLevel {
		idx.setRoot(levelNodes[level])
	}

	return nil
}

// resolveCurrentNeighbor implements §4.H insertion step 4. n is a
// neighbor found by beam search against the existing graph; if n's
// identity is still at the version currently being committed (or was
// already forwarded there by a concurrent insert this same commit),
// it is returned unchanged. Otherwise a version-forwarding successor
// is created: a copy-on-write clone of n's current data (4.E), wrapped
// at the commit version and attached to n's version chain (4.D) via
// versionchain.AddVersion, so the caller's mutation lands on a node no
// reader at an older version can observe.
func (idx *Index) resolveCurrentNeighbor(n *lazy.Item[*probnode.ProbNode], versionHash version.Hash, versionNumber version.Number) (*lazy.Item[*probnode.ProbNode], *probnode.ProbNode, error) {
	terminus, _, err := versionchain.GetLatestVersion[*probnode.ProbNode](n, idx.Cache)
	if err != nil {
		return nil, nil, err
	}

	terminusData, err := terminus.TryGetData(idx.Cache)
	if err != nil {
		return nil, nil, err
	}

	if terminus.CurrentVersionNumber() >= versionNumber {
		return terminus, terminusData, nil
	}

	successor := terminusData.Clone()
	successorItem := idx.wrap(successor, versionHash, versionNumber)

	if _, err := versionchain.AddVersion[*probnode.ProbNode](terminus, successorItem, idx.Cache); err != nil {
		var dup *errs.DuplicateError[*lazy.Item[*probnode.ProbNode]]
		if errors.As(err, &dup) {
			// A concurrent inserter already advanced this identity to
			// (at least) our version; use its successor rather than
			// installing a second one at the same relative slot.
			latest, _, latestErr := versionchain.GetLatestVersion[*probnode.ProbNode](terminus, idx.Cache)
			if latestErr != nil {
				return nil, nil, latestErr
			}
			latestData, latestErr := latest.TryGetData(idx.Cache)
			if latestErr != nil {
				return nil, nil, latestErr
			}
			return latest, latestData, nil
		}
		return nil, nil, err
	}

	return successorItem, successor, nil
}

func (idx *Index) insertFirstNode(id uint64, vec []float32, propLoc probnode.PropLocation, level uint8, versionHash version.Hash, versionNumber version.Number) error {
	levelNodes := make(map[uint8]*lazy.Item[*probnode.ProbNode])
	for l := level; ; l-- {
		n := idx.newNode(id, l, propLoc)
		item := idx.wrap(n, versionHash, versionNumber)
		levelNodes[l] = item
		if l == 0 {
			break
		}
	}
	for l := level; l > 0; l-- {
		upper := levelNodes[l]
		lower := levelNodes[l-1]
		upperData, _ := upper.TryGetData(idx.Cache)
		lowerData, _ := lower.TryGetData(idx.Cache)
		upperData.SetChild(lower)
		lowerData.SetParent(upper)
	}
	idx.setRoot(levelNodes[level])
	return nil
}
