package probnode

import "github.com/cosdata/vecgraph/internal/lazy"

// DeepEqual implements Testable Property #2's round-trip equality: two
// lazy items are equal if their data is equal field-by-field and their
// parent, child, neighbor, and version-chain links are themselves
// recursively equal. Reachable nodes are walked at most once via a
// visited set, so the cross-level parent/child back-edge in scenario
// (b) (and any shared-neighbor cycle) terminates instead of recursing
// forever.
func DeepEqual(a, b *lazy.Item[*ProbNode], r lazy.Resolver[*ProbNode]) (bool, error) {
	return deepEqual(a, b, r, make(map[*lazy.Item[*ProbNode]]bool))
}

func deepEqual(a, b *lazy.Item[*ProbNode], r lazy.Resolver[*ProbNode], visited map[*lazy.Item[*ProbNode]]bool) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if visited[a] {
		return true, nil
	}
	visited[a] = true

	aData, err := a.TryGetData(r)
	if err != nil {
		return false, err
	}
	bData, err := b.TryGetData(r)
	if err != nil {
		return false, err
	}

	// The on-disk Prob Node record (§4.G) carries no id field of its
	// own — an identity is addressed by its PropLoc into the property
	// file, and by the u32 id a referencing neighbor slot stores — so a
	// bare node freshly produced by the deserializer never has ID
	// populated. PropLoc equality is this check's stand-in for identity.
	if aData.HNSWLevel != bData.HNSWLevel || aData.IsLevel0 != bData.IsLevel0 {
		return false, nil
	}
	if aData.PropLoc != bData.PropLoc {
		return false, nil
	}
	if (aData.PropMetadataLoc == nil) != (bData.PropMetadataLoc == nil) {
		return false, nil
	}
	if aData.PropMetadataLoc != nil && *aData.PropMetadataLoc != *bData.PropMetadataLoc {
		return false, nil
	}

	aNeighbors, bNeighbors := aData.Neighbors(), bData.Neighbors()
	if len(aNeighbors) != len(bNeighbors) {
		return false, nil
	}
	for i := range aNeighbors {
		if aNeighbors[i].ID != bNeighbors[i].ID || aNeighbors[i].Dist != bNeighbors[i].Dist {
			return false, nil
		}
		if ok, err := deepEqual(aNeighbors[i].Ref, bNeighbors[i].Ref, r, visited); err != nil || !ok {
			return ok, err
		}
	}

	if ok, err := deepEqual(aData.Parent(), bData.Parent(), r, visited); err != nil || !ok {
		return ok, err
	}
	if ok, err := deepEqual(aData.Child(), bData.Child(), r, visited); err != nil || !ok {
		return ok, err
	}

	aVersions, bVersions := aData.VersionsArray(), bData.VersionsArray()
	if aVersions.Len() != bVersions.Len() {
		return false, nil
	}
	for i := 0; i < aVersions.Len(); i++ {
		av, _ := aVersions.Get(i)
		bv, _ := bVersions.Get(i)
		if ok, err := deepEqual(av, bv, r, visited); err != nil || !ok {
			return ok, err
		}
	}

	return true, nil
}
