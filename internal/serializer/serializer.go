// Package serializer implements the on-disk schema and two-pass cyclic
// encoding described in §4.G: lazy item, Prob Node, version-chain
// array, and metric result records, written through a
// internal/bufio.Cursor's reserve/patch primitives so that parent,
// child, and neighbor cycles serialize without infinite recursion.
// Grounded on friggdb's record.go fixed-width little-endian encoding
// style, generalized from a flat record to the node's cyclic shape
// described by the original source's bin_serializer module.
package serializer

import (
	"math"

	"github.com/cosdata/vecgraph/internal/bufio"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/cosdata/vecgraph/internal/version"
	"github.com/cosdata/vecgraph/internal/versionchain"
)

// locatorWidth is the fixed encoded size of a lazy.FileLocator: u32
// offset + u16 version number + u32 version hash.
const locatorWidth = 4 + 2 + 4

// neighborWidth is the fixed encoded size of one neighbor slot: u32 id
// + locator + 1-byte metric tag + f32 value.
const neighborWidth = 4 + locatorWidth + 1 + 4

// Codec writes Prob Node subgraphs against one buffer manager cursor;
// records are read back with ReadNode. A Codec is single-pass:
// construct one per serialize call, since the cycle-tracking `written`
// map is only valid for the nodes reachable in that call.
type Codec struct {
	cur      *bufio.Cursor
	resolver lazy.Resolver[*probnode.ProbNode]
	written  map[*lazy.Item[*probnode.ProbNode]]lazy.FileLocator
}

func NewCodec(cur *bufio.Cursor, resolver lazy.Resolver[*probnode.ProbNode]) *Codec {
	return &Codec{
		cur:      cur,
		resolver: resolver,
		written:  make(map[*lazy.Item[*probnode.ProbNode]]lazy.FileLocator),
	}
}

// Written reports how many distinct nodes this Codec has serialized so
// far in its single pass, including nodes reached only as a back-edge.
func (c *Codec) Written() int { return len(c.written) }

func recordSize(fanOut int) int64 {
	return 1 /* hnsw_level */ +
		12 /* prop_loc: u64 offset + u32 len */ +
		13 /* prop_metadata_loc: u8 present + u64 offset + u32 len */ +
		3*locatorWidth /* parent, child, root_version */ +
		2 /* neighbors_len */ +
		int64(fanOut)*neighborWidth +
		1 /* versions_len */ +
		versionchain.Capacity*locatorWidth
}

func readLocator(c *bufio.Cursor) (lazy.FileLocator, error) {
	off, err := c.ReadU32()
	if err != nil {
		return lazy.FileLocator{}, err
	}
	vn, err := c.ReadU16()
	if err != nil {
		return lazy.FileLocator{}, err
	}
	vh, err := c.ReadU32()
	if err != nil {
		return lazy.FileLocator{}, err
	}
	return lazy.FileLocator{Offset: off, VersionNumber: version.Number(vn), VersionID: version.Hash(vh)}, nil
}

// itemLocator is the locator an Item encodes as, for referencing a
// sub-item without re-writing it: its own locator if Pending, or the
// locator this Codec already assigned it if it has been (or is being)
// written in this pass, otherwise it is written now.
func (c *Codec) itemLocator(item *lazy.Item[*probnode.ProbNode]) (lazy.FileLocator, error) {
	if item == nil {
		return lazy.SentinelLocator, nil
	}
	if item.IsPending() {
		return item.FileLocator(), nil
	}
	if loc, ok := c.written[item]; ok {
		return loc, nil
	}
	return c.WriteNode(item)
}

// WriteNode serializes item's node and everything it references that
// has not already been written in this pass, returning item's
// locator. A node already present in c.written is returned by
// reference only: this is what lets parent<->child cycles and shared
// neighbors terminate.
func (c *Codec) WriteNode(item *lazy.Item[*probnode.ProbNode]) (lazy.FileLocator, error) {
	if loc, ok := c.written[item]; ok {
		return loc, nil
	}

	data, err := item.TryGetData(c.resolver)
	if err != nil {
		return lazy.FileLocator{}, err
	}

	size := recordSize(data.FanOut())
	offset := c.cur.Reserve(int(size))
	loc := lazy.FileLocator{
		Offset:        uint32(offset),
		VersionNumber: item.CurrentVersionNumber(),
		VersionID:     item.CurrentVersionID(),
	}
	// Register before recursing: a cycle back to this item must see
	// its locator already assigned, not trigger a second write.
	c.written[item] = loc

	parentLoc, err := c.itemLocator(data.Parent())
	if err != nil {
		return lazy.FileLocator{}, err
	}
	childLoc, err := c.itemLocator(data.Child())
	if err != nil {
		return lazy.FileLocator{}, err
	}
	rootLoc, err := c.itemLocator(rootVersionLocatorSource(data))
	if err != nil {
		return lazy.FileLocator{}, err
	}

	neighbors := data.Neighbors()
	neighborLocs := make([]lazy.FileLocator, len(neighbors))
	for i, nb := range neighbors {
		nl, err := c.itemLocator(nb.Ref)
		if err != nil {
			return lazy.FileLocator{}, err
		}
		neighborLocs[i] = nl
	}

	versionLocs := make([]lazy.FileLocator, 0, versionchain.Capacity)
	versionsArray := data.VersionsArray()
	for i := 0; i < versionchain.Capacity; i++ {
		v, ok := versionsArray.Get(i)
		if !ok {
			break
		}
		vl, err := c.itemLocator(v)
		if err != nil {
			return lazy.FileLocator{}, err
		}
		versionLocs = append(versionLocs, vl)
	}

	buf, err := encodeRecord(data, neighbors, neighborLocs, parentLoc, childLoc, rootLoc, versionLocs)
	if err != nil {
		return lazy.FileLocator{}, err
	}
	if err := c.cur.PatchAt(offset, buf); err != nil {
		return lazy.FileLocator{}, err
	}
	return loc, nil
}

// rootVersionLocatorSource exposes the private root-version link as a
// lazy.Item so the codec can locator-encode it the same way it does
// parent/child, without probnode needing to export the raw field.
func rootVersionLocatorSource(n *probnode.ProbNode) *lazy.Item[*probnode.ProbNode] {
	self := lazy.NewReady[*probnode.ProbNode](n, 0, 0, n.IsLevel0, 0)
	var noResolver lazy.Resolver[*probnode.ProbNode]
	root, err := probnode.GetRootVersion(self, noResolver)
	if err != nil || root == self {
		return nil
	}
	return root
}

func encodeRecord(
	n *probnode.ProbNode,
	neighbors []probnode.Neighbor,
	neighborLocs []lazy.FileLocator,
	parentLoc, childLoc, rootLoc lazy.FileLocator,
	versionLocs []lazy.FileLocator,
) ([]byte, error) {
	buf := &byteCursor{}

	buf.writeU8(n.HNSWLevel)

	buf.writeU64(n.PropLoc.Offset)
	buf.writeU32(n.PropLoc.Length)

	if n.PropMetadataLoc != nil {
		buf.writeU8(1)
		buf.writeU64(n.PropMetadataLoc.Offset)
		buf.writeU32(n.PropMetadataLoc.Length)
	} else {
		buf.writeU8(0)
		buf.writeU64(0)
		buf.writeU32(0)
	}

	buf.writeLocator(parentLoc)
	buf.writeLocator(childLoc)
	buf.writeLocator(rootLoc)

	buf.writeU16(uint16(n.FanOut()))
	for i := 0; i < n.FanOut(); i++ {
		if i < len(neighbors) {
			buf.writeU32(neighbors[i].ID)
			buf.writeLocator(neighborLocs[i])
			buf.writeU8(neighbors[i].Dist.Kind.Tag())
			buf.writeF32(neighbors[i].Dist.Value)
		} else {
			buf.writeU32(0)
			buf.writeLocator(lazy.SentinelLocator)
			buf.writeU8(0)
			buf.writeF32(0)
		}
	}

	buf.writeU8(uint8(len(versionLocs)))
	for i := 0; i < versionchain.Capacity; i++ {
		if i < len(versionLocs) {
			buf.writeLocator(versionLocs[i])
		} else {
			buf.writeLocator(lazy.SentinelLocator)
		}
	}

	return buf.bytes(), nil
}

// ReadNode decodes the record at loc into a fresh, shallow ProbNode:
// parent, child, root-version, neighbors, and version-chain entries
// are all Pending lazy items addressed by locator, resolved lazily by
// the cache on first access (§4.F).
func ReadNode(c *bufio.Cursor, loc lazy.FileLocator) (*probnode.ProbNode, error) {
	c.Seek(int64(loc.Offset))

	level, err := c.ReadU8()
	if err != nil {
		return nil, err
	}

	propOffset, err := c.ReadU64()
	if err != nil {
		return nil, err
	}
	propLen, err := c.ReadU32()
	if err != nil {
		return nil, err
	}

	metaPresent, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	metaOffset, err := c.ReadU64()
	if err != nil {
		return nil, err
	}
	metaLen, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	var propMetaLoc *probnode.PropLocation
	if metaPresent != 0 {
		propMetaLoc = &probnode.PropLocation{Offset: metaOffset, Length: metaLen}
	}

	parentLoc, err := readLocator(c)
	if err != nil {
		return nil, err
	}
	childLoc, err := readLocator(c)
	if err != nil {
		return nil, err
	}
	rootLoc, err := readLocator(c)
	if err != nil {
		return nil, err
	}

	fanOut, err := c.ReadU16()
	if err != nil {
		return nil, err
	}

	isLevel0 := level == 0
	n := probnode.New(0, level, isLevel0, int(fanOut), probnode.PropLocation{Offset: propOffset, Length: propLen}, propMetaLoc)

	for i := 0; i < int(fanOut); i++ {
		id, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		nloc, err := readLocator(c)
		if err != nil {
			return nil, err
		}
		tag, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		val, err := c.ReadF32()
		if err != nil {
			return nil, err
		}
		if nloc.IsSentinel() {
			continue
		}
		ref := lazy.NewPending[*probnode.ProbNode](nloc, nloc.VersionNumber == 0 && isLevel0)
		n.AddNeighbor(id, ref, metric.Result{Kind: metric.KindFromTag(tag), Value: val})
	}

	versionsLen, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	versionItems := make([]*lazy.Item[*probnode.ProbNode], 0, versionsLen)
	for i := 0; i < versionchain.Capacity; i++ {
		vloc, err := readLocator(c)
		if err != nil {
			return nil, err
		}
		if i >= int(versionsLen) || vloc.IsSentinel() {
			continue
		}
		versionItems = append(versionItems, lazy.NewPending[*probnode.ProbNode](vloc, isLevel0))
	}
	n.VersionsArray().RestoreFromDisk(versionItems)

	if !parentLoc.IsSentinel() {
		n.SetParent(lazy.NewPending[*probnode.ProbNode](parentLoc, false))
	}
	if !childLoc.IsSentinel() {
		n.SetChild(lazy.NewPending[*probnode.ProbNode](childLoc, true))
	}
	if !rootLoc.IsSentinel() {
		n.SetRootVersion(lazy.NewPending[*probnode.ProbNode](rootLoc, isLevel0))
	}

	return n, nil
}

// byteCursor is an in-memory little-endian writer used to assemble a
// fixed-size record before a single PatchAt call.
type byteCursor struct {
	buf []byte
}

func (b *byteCursor) bytes() []byte { return b.buf }

func (b *byteCursor) writeU8(v uint8) { b.buf = append(b.buf, v) }

func (b *byteCursor) writeU16(v uint16) {
	b.buf = append(b.buf, byte(v), byte(v>>8))
}

func (b *byteCursor) writeU32(v uint32) {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (b *byteCursor) writeU64(v uint64) {
	for i := 0; i < 8; i++ {
		b.buf = append(b.buf, byte(v>>(8*i)))
	}
}

func (b *byteCursor) writeF32(v float32) {
	b.writeU32(math.Float32bits(v))
}

func (b *byteCursor) writeLocator(loc lazy.FileLocator) {
	b.writeU32(loc.Offset)
	b.writeU16(uint16(loc.VersionNumber))
	b.writeU32(uint32(loc.VersionID))
}

// MetricResultWidth is the encoded size of a metric.Result: 1-byte tag
// + 4-byte payload, per §4.G.
const MetricResultWidth = 1 + 4

// EncodeMetricResult writes a metric.Result's on-disk form.
func EncodeMetricResult(c *bufio.Cursor, r metric.Result) error {
	if err := c.WriteU8(r.Kind.Tag()); err != nil {
		return err
	}
	return c.WriteF32(r.Value)
}

// DecodeMetricResult reads a metric.Result's on-disk form.
func DecodeMetricResult(c *bufio.Cursor) (metric.Result, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return metric.Result{}, err
	}
	val, err := c.ReadF32()
	if err != nil {
		return metric.Result{}, err
	}
	return metric.Result{Kind: metric.KindFromTag(tag), Value: val}, nil
}
