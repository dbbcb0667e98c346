// Package cache implements the HNSW Cache (§4.F): a sharded concurrent
// map from file locator to lazy item, with bloom-filter-assisted miss
// avoidance and cooperative eviction — the cache never evicts while
// the index is open, since Prob Nodes hold raw references into it.
// Grounded on friggdb/backend/cache's get-or-load-under-lock shape
// (disk_cache.go), generalized from a single LRU map to locator-sharded
// maps, and on the original source's LMDB-backed object cache for the
// bloom-filter-gated miss path.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/metric"
	"github.com/cosdata/vecgraph/internal/metrics"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/segmentio/fasthash/fnv1a"
	"github.com/willf/bloom"
)

const shardCount = 32

type shard struct {
	mu    sync.Mutex
	items map[lazy.FileLocator]*lazy.Item[*probnode.ProbNode]
}

// Source reads one node's record from durable storage (buffer manager
// + serializer) when the cache misses.
type Source interface {
	Load(loc lazy.FileLocator, isLevel0 bool) (*probnode.ProbNode, error)
}

// Cache is the HNSW Cache. Construct one per open collection index.
type Cache struct {
	shards [shardCount]*shard
	source Source

	bloomMu sync.Mutex
	bloom   *bloom.BloomFilter

	propertyFile sync.RWMutex

	activeMetric atomic.Int32 // metric.Kind, set by SetMetric/Metric

	open atomic.Bool
}

// New constructs a cache sized for an expected number of entries, with
// a 1% target false-positive rate on the bloom filter's miss check.
func New(source Source, expectedEntries uint) *Cache {
	c := &Cache{
		source: source,
		bloom:  bloom.NewWithEstimates(expectedEntries, 0.01),
	}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[lazy.FileLocator]*lazy.Item[*probnode.ProbNode])}
	}
	c.open.Store(true)
	return c
}

func locatorKey(loc lazy.FileLocator) []byte {
	var b [10]byte
	b[0] = byte(loc.Offset)
	b[1] = byte(loc.Offset >> 8)
	b[2] = byte(loc.Offset >> 16)
	b[3] = byte(loc.Offset >> 24)
	b[4] = byte(loc.VersionNumber)
	b[5] = byte(loc.VersionNumber >> 8)
	b[6] = byte(loc.VersionID)
	b[7] = byte(loc.VersionID >> 8)
	b[8] = byte(loc.VersionID >> 16)
	b[9] = byte(loc.VersionID >> 24)
	return b[:]
}

func (c *Cache) shardFor(loc lazy.FileLocator) *shard {
	h := fnv1a.HashBytes32(locatorKey(loc))
	return c.shards[h%shardCount]
}

// GetObject implements the §4.F get_object algorithm: a bloom-filter
// rejection skips the shard lookup entirely for a locator that was
// never inserted; otherwise look up, and on a genuine miss, load
// through Source under the shard's lock so concurrent callers for the
// same locator observe one deserialization.
func (c *Cache) GetObject(loc lazy.FileLocator, isLevel0 bool) (*lazy.Item[*probnode.ProbNode], error) {
	key := locatorKey(loc)

	c.bloomMu.Lock()
	maybePresent := c.bloom.Test(key)
	c.bloomMu.Unlock()

	if !maybePresent {
		metrics.CacheBloomRejections.Inc()
		return c.loadMiss(loc, isLevel0, key)
	}

	sh := c.shardFor(loc)
	sh.mu.Lock()
	if item, ok := sh.items[loc]; ok {
		sh.mu.Unlock()
		metrics.CacheHits.Inc()
		return item, nil
	}
	sh.mu.Unlock()

	metrics.CacheMisses.Inc()
	return c.loadMiss(loc, isLevel0, key)
}

func (c *Cache) loadMiss(loc lazy.FileLocator, isLevel0 bool, key []byte) (*lazy.Item[*probnode.ProbNode], error) {
	sh := c.shardFor(loc)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if item, ok := sh.items[loc]; ok {
		// Another goroutine deserialized it while we waited for the lock.
		return item, nil
	}

	data, err := c.source.Load(loc, isLevel0)
	if err != nil {
		return nil, err
	}

	item := lazy.NewReady[*probnode.ProbNode](data, loc.VersionID, loc.VersionNumber, isLevel0, loc.Offset)
	sh.items[loc] = item

	c.bloomMu.Lock()
	c.bloom.Add(key)
	c.bloomMu.Unlock()

	metrics.CacheEntries.Inc()
	return item, nil
}

// Resolve implements lazy.Resolver[*probnode.ProbNode], letting the
// cache be handed directly to any lazy.Item.TryGetData call site.
func (c *Cache) Resolve(loc lazy.FileLocator, isLevel0 bool) (*lazy.Item[*probnode.ProbNode], error) {
	return c.GetObject(loc, isLevel0)
}

// SetMetric installs the active distance metric, propagated to lazy
// deserialization paths that need to know how to interpret stored
// MetricResult payloads.
func (c *Cache) SetMetric(k metric.Kind) { c.activeMetric.Store(int32(k)) }

func (c *Cache) Metric() metric.Kind { return metric.Kind(c.activeMetric.Load()) }

// PropertyFile exposes the property-file lock the cache owns per
// §4.F, guarding the shared property blob file against concurrent
// readers and the writer that appends new property records.
func (c *Cache) PropertyFile() *sync.RWMutex { return &c.propertyFile }

// CloseIndex marks the cache closed, the only state in which Evict is
// permitted: while the index is open, Prob Nodes may hold references
// into any cached item, so eviction is unsafe.
func (c *Cache) CloseIndex() { c.open.Store(false) }

func (c *Cache) OpenIndex() { c.open.Store(true) }

// Evict removes one entry, returning an InvariantViolation if the
// index is still open. A real stricter epoch-based reclamation
// scheme could relax this; this cache takes the spec's permitted
// simpler route of never evicting until the index is fully closed.
func (c *Cache) Evict(loc lazy.FileLocator) error {
	if c.open.Load() {
		return errs.Invariant(false, "cache evict called while index is open")
	}
	sh := c.shardFor(loc)
	sh.mu.Lock()
	delete(sh.items, loc)
	sh.mu.Unlock()
	metrics.CacheEntries.Dec()
	return nil
}

// Len reports the total number of cached entries across all shards,
// for tests and diagnostics.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}
