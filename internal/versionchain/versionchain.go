// Package versionchain implements the Version Chain (§4.D): the
// per-node exponentially-spaced linked structure of up to eight forward
// version pointers encoding 4^0, 4^1, ... hops. Grounded directly on
// the original source's impl ProbLazyItem<ProbNode> block in
// lazy_item.rs (add_version / add_version_inner / get_version /
// get_latest_version / largest_power_of_4_below), translated from
// recursion-over-raw-pointers to recursion over *lazy.Item[T] with a
// Go generic constraint in place of the Rust impl's specialization to
// ProbNode.
package versionchain

import (
	"math/bits"
	"sync/atomic"

	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/version"
)

// Capacity is the fixed number of slots in a version chain: slot i
// reaches 4^i version-steps ahead of the owning node.
const Capacity = 8

// Array is the fixed-capacity, append-only, lock-free version chain
// attached to a graph node. Slot i may be present only if slots 0..i
// are present; length grows only via an atomic CAS append.
type Array[T any] struct {
	slots  [Capacity]atomic.Pointer[lazy.Item[T]]
	length atomic.Int32
}

func (a *Array[T]) Len() int { return int(a.length.Load()) }

func (a *Array[T]) Get(i int) (*lazy.Item[T], bool) {
	if i < 0 || i >= a.Len() {
		return nil, false
	}
	p := a.slots[i].Load()
	return p, p != nil
}

func (a *Array[T]) Last() (*lazy.Item[T], bool) {
	ln := a.Len()
	if ln == 0 {
		return nil, false
	}
	return a.Get(ln - 1)
}

// tryPushAt CASes the length word from index to index+1 and, on
// success, installs item in that slot. Returns false if a concurrent
// appender won the race, in which case the caller must reread Len and
// retry.
func (a *Array[T]) tryPushAt(index int, item *lazy.Item[T]) bool {
	if index < 0 || index >= Capacity {
		return false
	}
	if !a.length.CompareAndSwap(int32(index), int32(index+1)) {
		return false
	}
	a.slots[index].Store(item)
	return true
}

// RestoreFromDisk installs a version chain read back from a serialized
// record, bypassing the CAS-append path used for live mutation. Only
// the deserializer calls this, on a freshly constructed node no other
// goroutine can yet observe.
func (a *Array[T]) RestoreFromDisk(items []*lazy.Item[T]) {
	for i, it := range items {
		a.slots[i].Store(it)
	}
	a.length.Store(int32(len(items)))
}

// Holder is implemented by a node type that owns a version chain
// Array, letting AddVersion/GetVersion/GetLatestVersion stay generic
// instead of being hand-specialized per node type the way the Rust
// source specializes impl ProbLazyItem<ProbNode>.
type Holder[T any] interface {
	VersionsArray() *Array[T]
}

// LargestPowerOf4Below returns the largest n such that 4^n <= x,
// treating x as 16-bit. Undefined (returns an InvariantViolation) for
// x == 0.
func LargestPowerOf4Below(x uint16) (uint8, error) {
	if x == 0 {
		return 0, errs.Invariant(false, "largest_power_of_4_below(0) is undefined")
	}
	msbPosition := 15 - bits.LeadingZeros16(x)
	return uint8(msbPosition / 2), nil
}

// GetLatestVersion descends into the last-populated slot recursively,
// returning the chain's terminal node and its distance (in version
// steps) from self.
func GetLatestVersion[T Holder[T]](self *lazy.Item[T], r lazy.Resolver[T]) (*lazy.Item[T], uint16, error) {
	data, err := self.TryGetData(r)
	if err != nil {
		return nil, 0, err
	}
	arr := data.VersionsArray()
	ln := arr.Len()
	if ln == 0 {
		return self, 0, nil
	}
	last, _ := arr.Get(ln - 1)
	latest, relative, err := GetLatestVersion(last, r)
	if err != nil {
		return nil, 0, err
	}
	return latest, (uint16(1) << uint((ln-1)*2)) + relative, nil
}

// AddVersion attaches newVersion as the chain successor immediately
// after the current terminus. Returns a DuplicateError wrapping the
// conflicting item if the target slot is already occupied by the exact
// same relative position (a concurrent duplicate insert), never
// silently ignored.
func AddVersion[T Holder[T]](self *lazy.Item[T], newVersion *lazy.Item[T], r lazy.Resolver[T]) (*lazy.Item[T], error) {
	_, latestLocal, err := GetLatestVersion(self, r)
	if err != nil {
		return nil, err
	}
	target := latestLocal + 1
	return addVersionInner(self, newVersion, 0, target, r)
}

func addVersionInner[T Holder[T]](self, newVersion *lazy.Item[T], selfRelative, targetRelative uint16, r lazy.Resolver[T]) (*lazy.Item[T], error) {
	diff := targetRelative - selfRelative
	if diff == 0 {
		return self, &errs.DuplicateError[*lazy.Item[T]]{Conflict: self}
	}

	idx, err := LargestPowerOf4Below(diff)
	if err != nil {
		return nil, err
	}

	data, err := self.TryGetData(r)
	if err != nil {
		return nil, err
	}
	arr := data.VersionsArray()

	if existing, ok := arr.Get(int(idx)); ok {
		return addVersionInner(existing, newVersion, selfRelative+(uint16(1)<<(2*idx)), targetRelative, r)
	}

	for {
		ln := arr.Len()
		if ln != int(idx) {
			// A concurrent writer changed the chain shape underneath us;
			// the slot we wanted may now exist. Recurse through it.
			if existing, ok := arr.Get(int(idx)); ok {
				return addVersionInner(existing, newVersion, selfRelative+(uint16(1)<<(2*idx)), targetRelative, r)
			}
			return nil, errs.Invariant(false, "version chain slot index mismatch")
		}
		if arr.tryPushAt(int(idx), newVersion) {
			return self, nil
		}
		// Lost the CAS race against a concurrent append; retry from the
		// top of the loop with a fresh read of Len().
	}
}

// GetVersion looks up the chain node whose absolute version number is
// target, in O(log4 delta) lazy-item resolutions.
func GetVersion[T Holder[T]](self *lazy.Item[T], target version.Number, r lazy.Resolver[T]) (*lazy.Item[T], error) {
	vn := self.CurrentVersionNumber()
	if target < vn {
		return nil, nil
	}
	if target == vn {
		return self, nil
	}

	data, err := self.TryGetData(r)
	if err != nil {
		return nil, err
	}
	arr := data.VersionsArray()

	prev, ok := arr.Get(0)
	if !ok {
		return nil, nil
	}

	for i := 1; ; i++ {
		next, ok := arr.Get(i)
		if !ok {
			break
		}
		if target < next.CurrentVersionNumber() {
			return GetVersion(prev, target, r)
		}
		prev = next
	}
	return GetVersion(prev, target, r)
}
