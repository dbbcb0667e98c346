package lazy

import (
	"testing"

	"github.com/cosdata/vecgraph/internal/version"
	"github.com/stretchr/testify/require"
)

// stubResolver resolves every locator to a fixed ready item, the way a
// cache resolver would after a successful disk read.
type stubResolver struct {
	resolved *Item[string]
	calls    int
}

func (s *stubResolver) Resolve(loc FileLocator, isLevel0 bool) (*Item[string], error) {
	s.calls++
	return s.resolved, nil
}

func TestReadyItemReturnsDataWithoutResolving(t *testing.T) {
	it := NewReady[string]("payload", version.Hash(1), version.Number(0), false, 128)
	require.True(t, it.IsReady())
	require.False(t, it.IsPending())

	r := &stubResolver{}
	data, err := it.TryGetData(r)
	require.NoError(t, err)
	require.Equal(t, "payload", data)
	require.Zero(t, r.calls)
}

func TestPendingItemResolvesThroughResolver(t *testing.T) {
	loc := FileLocator{Offset: 64, VersionNumber: 3, VersionID: 9}
	pending := NewPending[string](loc, true)
	require.True(t, pending.IsPending())
	require.Equal(t, loc, pending.FileLocator())
	require.Equal(t, version.Hash(9), pending.CurrentVersionID())
	require.EqualValues(t, 3, pending.CurrentVersionNumber())

	ready := NewReady[string]("resolved", version.Hash(9), version.Number(3), true, 64)
	r := &stubResolver{resolved: ready}

	data, err := pending.TryGetData(r)
	require.NoError(t, err)
	require.Equal(t, "resolved", data)
	require.Equal(t, 1, r.calls)
}

func TestSetReadyTransitionsPendingToReady(t *testing.T) {
	loc := FileLocator{Offset: 1, VersionNumber: 0, VersionID: 1}
	it := NewPending[string](loc, false)
	require.True(t, it.IsPending())

	it.SetReady("now ready", version.Hash(1), version.Number(0), 1)
	require.True(t, it.IsReady())

	data, err := it.TryGetData(&stubResolver{})
	require.NoError(t, err)
	require.Equal(t, "now ready", data)
}

func TestSentinelLocator(t *testing.T) {
	require.True(t, SentinelLocator.IsSentinel())

	var zero FileLocator
	require.False(t, zero.IsSentinel())

	occupied := FileLocator{Offset: 0, VersionNumber: 0, VersionID: 0}
	require.False(t, occupied.IsSentinel())
}

func TestEqualComparesLevelAndCurrentState(t *testing.T) {
	a := NewReady[string]("x", version.Hash(5), version.Number(2), false, 10)
	b := NewReady[string]("x", version.Hash(5), version.Number(2), false, 10)
	c := NewReady[string]("x", version.Hash(5), version.Number(2), true, 10)
	d := NewReady[string]("x", version.Hash(6), version.Number(2), false, 10)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c), "differing IsLevel0 must not be equal")
	require.False(t, a.Equal(d), "differing version hash must not be equal")

	loc := FileLocator{Offset: 2, VersionNumber: 1, VersionID: 4}
	p1 := NewPending[string](loc, false)
	p2 := NewPending[string](loc, false)
	require.True(t, p1.Equal(p2))
	require.False(t, a.Equal(p1), "ready and pending items are never equal")
}
