// Package lazy implements the Lazy Item (§4.C): a two-state handle —
// Pending{file locator} or Ready{data} — over any serializable node.
// It transitions Pending to Ready only, atomically, via SetReady; a
// Pending item's data is read through a cache's Resolver, which leaves
// the item itself Pending. Grounded on the original source's ProbLazyItem<T>
// (state: AtomicPtr<ProbLazyItemState<T>>), translated to Go's
// sync/atomic generic Pointer since Go has no raw-pointer ownership
// hazard to work around: the garbage collector retires a swapped-out
// state once the last reader's load has returned, which is exactly the
// "transitive borrow" safety the original source documents by hand.
package lazy

import (
	"sync/atomic"

	"github.com/cosdata/vecgraph/internal/version"
)

// FileLocator addresses one serialized record: (offset, version
// number, version hash).
type FileLocator struct {
	Offset        uint32
	VersionNumber version.Number
	VersionID     version.Hash
}

// SentinelLocator marks an absent version-chain slot on disk.
var SentinelLocator = FileLocator{Offset: ^uint32(0), VersionNumber: 0, VersionID: 0}

func (l FileLocator) IsSentinel() bool { return l == SentinelLocator }

type itemState[T any] struct {
	pending       bool
	loc           FileLocator // valid when pending
	data          T           // valid when ready
	fileOffset    uint32      // valid when ready
	versionID     version.Hash
	versionNumber version.Number
}

// Resolver turns a Pending file locator into another Item, the way the
// HNSW cache resolves a miss by reading through the buffer manager and
// deserializing. TryGetData recurses into whatever Item Resolve
// returns, terminating because locators only ever address bytes that
// were themselves written by a prior serialize pass.
type Resolver[T any] interface {
	Resolve(loc FileLocator, isLevel0 bool) (*Item[T], error)
}

// Item is the two-state handle. Never copy an Item by value; always
// pass *Item[T].
type Item[T any] struct {
	state    atomic.Pointer[itemState[T]]
	IsLevel0 bool
}

func NewReady[T any](data T, versionID version.Hash, versionNumber version.Number, isLevel0 bool, fileOffset uint32) *Item[T] {
	it := &Item[T]{IsLevel0: isLevel0}
	it.state.Store(&itemState[T]{
		data:          data,
		fileOffset:    fileOffset,
		versionID:     versionID,
		versionNumber: versionNumber,
	})
	return it
}

func NewPending[T any](loc FileLocator, isLevel0 bool) *Item[T] {
	it := &Item[T]{IsLevel0: isLevel0}
	it.state.Store(&itemState[T]{pending: true, loc: loc})
	return it
}

// SetReady installs a new Ready state. Pending->Ready is the only
// legal transition; callers never call this on an already-Ready item.
func (it *Item[T]) SetReady(data T, versionID version.Hash, versionNumber version.Number, fileOffset uint32) {
	it.state.Store(&itemState[T]{
		data:          data,
		fileOffset:    fileOffset,
		versionID:     versionID,
		versionNumber: versionNumber,
	})
}

func (it *Item[T]) IsReady() bool   { return !it.state.Load().pending }
func (it *Item[T]) IsPending() bool { return it.state.Load().pending }

// TryGetData returns the underlying data, resolving through the cache
// if the item is still Pending.
func (it *Item[T]) TryGetData(r Resolver[T]) (T, error) {
	st := it.state.Load()
	if !st.pending {
		return st.data, nil
	}
	resolved, err := r.Resolve(st.loc, it.IsLevel0)
	if err != nil {
		var zero T
		return zero, err
	}
	return resolved.TryGetData(r)
}

func (it *Item[T]) FileLocator() FileLocator {
	st := it.state.Load()
	if st.pending {
		return st.loc
	}
	return FileLocator{Offset: st.fileOffset, VersionNumber: st.versionNumber, VersionID: st.versionID}
}

func (it *Item[T]) CurrentVersionID() version.Hash {
	st := it.state.Load()
	if st.pending {
		return st.loc.VersionID
	}
	return st.versionID
}

func (it *Item[T]) CurrentVersionNumber() version.Number {
	st := it.state.Load()
	if st.pending {
		return st.loc.VersionNumber
	}
	return st.versionNumber
}

// Equal reports handle equality: is_level_0 equal and current-state
// equal (same locator if both Pending, same (offset, version) if both
// Ready). It does not deep-compare Ready data; callers needing full
// structural (parent/child/neighbor/version-chain) equality use
// internal/probnode.DeepEqual, which walks the graph with a visited
// set so cycles terminate.
func (it *Item[T]) Equal(other *Item[T]) bool {
	if it == other {
		return true
	}
	if it == nil || other == nil {
		return false
	}
	if it.IsLevel0 != other.IsLevel0 {
		return false
	}
	a, b := it.state.Load(), other.state.Load()
	if a.pending != b.pending {
		return false
	}
	if a.pending {
		return a.loc == b.loc
	}
	return a.fileOffset == b.fileOffset && a.versionID == b.versionID && a.versionNumber == b.versionNumber
}
