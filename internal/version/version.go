// Package version implements Version Control (§4.B): allocation of
// monotonically increasing version ids and 16-bit version numbers per
// named branch, plus the branch-tip map from version number to version
// hash. The "main" branch exists implicitly.
package version

import (
	"encoding/binary"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"
)

// Hash is a 32-bit opaque, content-derived identifier, unique per
// branch commit.
type Hash uint32

// Number is a dense, monotonic per-branch version number.
type Number uint16

// DefaultBranch is the implicitly-existing branch.
const DefaultBranch = "main"

type branch struct {
	mu     sync.Mutex
	tip    Number
	hashes map[Number]Hash
}

// Controller allocates version hashes and numbers. Safe for concurrent
// use; each branch serializes its own tip allocation independently of
// every other branch, the way friggdb hands out a fresh uuid.UUID per
// block without any cross-tenant coordination.
type Controller struct {
	mu       sync.Mutex
	branches map[string]*branch
}

func NewController() *Controller {
	return &Controller{branches: make(map[string]*branch)}
}

func (c *Controller) branchFor(name string) *branch {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.branches[name]
	if !ok {
		b = &branch{hashes: make(map[Number]Hash)}
		c.branches[name] = b
	}
	return b
}

// deriveHash computes a deterministic hash over (branch_name,
// version_number). Grounded on the teacher's use of
// github.com/segmentio/fasthash for non-cryptographic content hashing.
func deriveHash(branchName string, number Number) Hash {
	h := fnv1a.Init64
	h = fnv1a.AddString64(h, branchName)
	var nb [2]byte
	binary.LittleEndian.PutUint16(nb[:], uint16(number))
	for _, bb := range nb {
		h = fnv1a.AddUint64(h, uint64(bb))
	}
	return Hash(uint32(h) ^ uint32(h>>32))
}

// AddNextVersion allocates the branch's next version, returning its
// hash and number. The first call on a branch registers the implicit
// version 0 and returns it without advancing the tip; every later call
// atomically increments the tip by one. Numbers are allocated strictly in
// order; hashes never collide within a branch because they are derived
// from the (branch, number) pair which is itself unique.
func (c *Controller) AddNextVersion(branchName string) (Hash, Number) {
	b := c.branchFor(branchName)

	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.tip
	if len(b.hashes) > 0 {
		next = b.tip + 1
	}
	h := deriveHash(branchName, next)
	b.hashes[next] = h
	b.tip = next
	return h, next
}

// HashForNumber looks up the hash committed for a given version number
// on a branch, if any.
func (c *Controller) HashForNumber(branchName string, number Number) (Hash, bool) {
	b := c.branchFor(branchName)

	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.hashes[number]
	return h, ok
}

// Tip returns the current tip version number for a branch.
func (c *Controller) Tip(branchName string) Number {
	b := c.branchFor(branchName)

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tip
}
