// Package probnode implements the Prob Node (§4.E): the HNSW graph
// node with lock-free neighbor slots, parent/child cross-level links,
// and version-chain membership. Grounded on the original source's
// ProbNode (models/types.rs) add_neighbor/set_parent/set_child/
// get_root_version methods, translated from raw AtomicPtr<T> fields to
// Go's sync/atomic.Pointer[T] and from a free-standing arena-indexed
// design to direct *lazy.Item[*ProbNode] references, matching the way
// friggdb's block_meta.go keeps a flat, directly-addressable struct
// instead of an index table.
package probnode

import (
	"sync/atomic"

	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/versionchain"
)

// PropLocation addresses a vector's property blob in the property
// file: (offset, length).
type PropLocation struct {
	Offset uint64
	Length uint32
}

// Neighbor is one occupied slot's contents: the neighbor's external
// id, a reference to its lazy item, and the distance recorded at
// insertion time.
type Neighbor struct {
	ID   uint32
	Ref  *lazy.Item[*ProbNode]
	Dist metric.Result
}

// ProbNode is one HNSW graph node at one level. Neighbor slots are
// independently CAS-mutable; parent, child, and root-version links are
// CAS-set exactly once (nil -> non-nil) and otherwise immutable for
// this node identity.
type ProbNode struct {
	ID       uint64
	HNSWLevel uint8
	IsLevel0 bool

	PropLoc         PropLocation
	PropMetadataLoc *PropLocation

	neighbors []atomic.Pointer[Neighbor]

	parent      atomic.Pointer[lazy.Item[*ProbNode]]
	child       atomic.Pointer[lazy.Item[*ProbNode]]
	rootVersion atomic.Pointer[lazy.Item[*ProbNode]]

	versions versionchain.Array[*ProbNode]
}

// New constructs a node with fanOut neighbor slots: pass hyperparams.M
// for non-level-0 nodes, hyperparams.M0 for level-0 nodes.
func New(id uint64, level uint8, isLevel0 bool, fanOut int, propLoc PropLocation, propMetadataLoc *PropLocation) *ProbNode {
	return &ProbNode{
		ID:              id,
		HNSWLevel:       level,
		IsLevel0:        isLevel0,
		PropLoc:         propLoc,
		PropMetadataLoc: propMetadataLoc,
		neighbors:       make([]atomic.Pointer[Neighbor], fanOut),
	}
}

// VersionsArray satisfies versionchain.Holder[*ProbNode].
func (n *ProbNode) VersionsArray() *versionchain.Array[*ProbNode] { return &n.versions }

// FanOut returns the node's configured neighbor slot count (M or M0).
func (n *ProbNode) FanOut() int { return len(n.neighbors) }

// Neighbors returns a snapshot of the currently occupied neighbor
// slots, in slot order. Empty slots are omitted.
func (n *ProbNode) Neighbors() []Neighbor {
	out := make([]Neighbor, 0, len(n.neighbors))
	for i := range n.neighbors {
		if nb := n.neighbors[i].Load(); nb != nil {
			out = append(out, *nb)
		}
	}
	return out
}

// AddNeighbor implements the §4.E add_neighbor mutation policy:
// occupy the first empty slot, else replace the current worst slot if
// the candidate is strictly better, retrying on CAS contention.
// Reports whether the candidate was installed.
func (n *ProbNode) AddNeighbor(id uint32, ref *lazy.Item[*ProbNode], dist metric.Result) bool {
	candidate := &Neighbor{ID: id, Ref: ref, Dist: dist}

	for {
		// Step 1: claim the first empty slot.
		for i := range n.neighbors {
			if n.neighbors[i].CompareAndSwap(nil, candidate) {
				return true
			}
		}

		// Step 2: every slot occupied; find the current worst.
		worstIdx := -1
		var worst *Neighbor
		for i := range n.neighbors {
			cur := n.neighbors[i].Load()
			if cur == nil {
				// A slot emptied out from under us (shouldn't happen in
				// this design since slots are never cleared, only
				// replaced) - restart from step 1.
				worstIdx = -1
				break
			}
			if worst == nil || metric.Better(worst.Dist, cur.Dist) {
				worst, worstIdx = cur, i
			}
		}
		if worstIdx == -1 {
			continue
		}

		if !metric.Better(candidate.Dist, worst.Dist) {
			return false
		}

		if n.neighbors[worstIdx].CompareAndSwap(worst, candidate) {
			return true
		}
		// Lost the race against a concurrent mutator; retry from step 1.
	}
}

// Clone makes a copy-on-write successor for use as a new version-chain
// entry: same identity, level, and prop locations, with the current
// neighbor/parent/child/root-version snapshot copied into fresh atomic
// slots. Per §4.H step 4, a mutation destined for a node frozen at an
// older version lands on a clone like this instead, which is then
// attached to the frozen node's version chain via versionchain.AddVersion.
func (n *ProbNode) Clone() *ProbNode {
	clone := &ProbNode{
		ID:              n.ID,
		HNSWLevel:       n.HNSWLevel,
		IsLevel0:        n.IsLevel0,
		PropLoc:         n.PropLoc,
		PropMetadataLoc: n.PropMetadataLoc,
		neighbors:       make([]atomic.Pointer[Neighbor], len(n.neighbors)),
	}
	for i := range n.neighbors {
		if nb := n.neighbors[i].Load(); nb != nil {
			clone.neighbors[i].Store(nb)
		}
	}
	if p := n.parent.Load(); p != nil {
		clone.parent.Store(p)
	}
	if c := n.child.Load(); c != nil {
		clone.child.Store(c)
	}
	if rv := n.rootVersion.Load(); rv != nil {
		clone.rootVersion.Store(rv)
	}
	return clone
}

// SetParent CASes the parent link from nil to p. Returns false if a
// parent was already set (the field is immutable once non-nil).
func (n *ProbNode) SetParent(p *lazy.Item[*ProbNode]) bool {
	return n.parent.CompareAndSwap(nil, p)
}

// SetChild CASes the child link from nil to c. Returns false if a
// child was already set.
func (n *ProbNode) SetChild(c *lazy.Item[*ProbNode]) bool {
	return n.child.CompareAndSwap(nil, c)
}

func (n *ProbNode) Parent() *lazy.Item[*ProbNode] { return n.parent.Load() }
func (n *ProbNode) Child() *lazy.Item[*ProbNode]  { return n.child.Load() }

// SetRootVersion CASes the root-version link from nil to r.
func (n *ProbNode) SetRootVersion(r *lazy.Item[*ProbNode]) bool {
	return n.rootVersion.CompareAndSwap(nil, r)
}

// GetRootVersion returns self's root_version if set, otherwise self,
// resolving self through r only to read the root_version field.
func GetRootVersion(self *lazy.Item[*ProbNode], r lazy.Resolver[*ProbNode]) (*lazy.Item[*ProbNode], error) {
	data, err := self.TryGetData(r)
	if err != nil {
		return nil, err
	}
	if rv := data.rootVersion.Load(); rv != nil {
		return rv, nil
	}
	return self, nil
}
