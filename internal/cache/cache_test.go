package cache

import (
	"sync"
	"testing"

	"github.com/cosdata/vecgraph/internal/lazy"
	"github.com/cosdata/vecgraph/internal/probnode"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu    sync.Mutex
	loads int
	nodes map[lazy.FileLocator]*probnode.ProbNode
}

func newCountingSource() *countingSource {
	return &countingSource{nodes: make(map[lazy.FileLocator]*probnode.ProbNode)}
}

func (s *countingSource) Load(loc lazy.FileLocator, isLevel0 bool) (*probnode.ProbNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if n, ok := s.nodes[loc]; ok {
		return n, nil
	}
	n := probnode.New(uint64(loc.Offset), 0, isLevel0, 4, probnode.PropLocation{}, nil)
	s.nodes[loc] = n
	return n, nil
}

func TestGetObjectLoadsOnceThenHitsCache(t *testing.T) {
	src := newCountingSource()
	c := New(src, 100)

	loc := lazy.FileLocator{Offset: 10, VersionNumber: 0, VersionID: 1}

	item1, err := c.GetObject(loc, false)
	require.NoError(t, err)
	item2, err := c.GetObject(loc, false)
	require.NoError(t, err)

	require.True(t, item1.Equal(item2))
	require.Equal(t, 1, src.loads)
	require.Equal(t, 1, c.Len())
}

func TestGetObjectConcurrentMissesResolveOnce(t *testing.T) {
	src := newCountingSource()
	c := New(src, 100)
	loc := lazy.FileLocator{Offset: 20, VersionNumber: 0, VersionID: 2}

	var wg sync.WaitGroup
	const n = 20
	results := make([]*lazy.Item[*probnode.ProbNode], n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := c.GetObject(loc, false)
			require.NoError(t, err)
			results[i] = item
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.True(t, results[0].Equal(results[i]))
	}
	require.Equal(t, 1, src.loads)
}

func TestEvictRefusedWhileIndexOpen(t *testing.T) {
	src := newCountingSource()
	c := New(src, 100)
	loc := lazy.FileLocator{Offset: 1, VersionNumber: 0, VersionID: 1}

	_, err := c.GetObject(loc, false)
	require.NoError(t, err)

	require.Error(t, c.Evict(loc))
	require.Equal(t, 1, c.Len())
}

func TestEvictSucceedsAfterCloseIndex(t *testing.T) {
	src := newCountingSource()
	c := New(src, 100)
	loc := lazy.FileLocator{Offset: 1, VersionNumber: 0, VersionID: 1}

	_, err := c.GetObject(loc, false)
	require.NoError(t, err)

	c.CloseIndex()
	require.NoError(t, c.Evict(loc))
	require.Equal(t, 0, c.Len())
}

func TestResolveSatisfiesLazyResolverInterface(t *testing.T) {
	src := newCountingSource()
	c := New(src, 100)

	var _ lazy.Resolver[*probnode.ProbNode] = c

	loc := lazy.FileLocator{Offset: 5, VersionNumber: 0, VersionID: 1}
	pending := lazy.NewPending[*probnode.ProbNode](loc, false)

	data, err := pending.TryGetData(c)
	require.NoError(t, err)
	require.NotNil(t, data)
}

func TestSetMetricRoundTrips(t *testing.T) {
	src := newCountingSource()
	c := New(src, 10)
	c.SetMetric(2)
	require.EqualValues(t, 2, c.Metric())
}
