package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCollectionFillsDefaults(t *testing.T) {
	c := NewCollection("demo", "/tmp/demo")
	require.Equal(t, "demo", c.Name)
	require.Equal(t, "main", c.Branch)
	require.NotEqual(t, [16]byte{}, c.ID)
	require.EqualValues(t, 16, c.HNSW.NumLayers)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collection.yaml")

	c := NewCollection("demo", dir)
	c.HNSW.EfSearch = 77

	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, c.ID, loaded.ID)
	require.Equal(t, 77, loaded.HNSW.EfSearch)
}

func TestToHyperParamsCarriesAllFields(t *testing.T) {
	c := NewCollection("demo", "/tmp/demo")
	hp := c.HNSW.ToHyperParams()
	require.EqualValues(t, c.HNSW.NumLayers, hp.NumLayers)
	require.Equal(t, c.HNSW.M, hp.M)
	require.Equal(t, c.HNSW.M0, hp.M0)
	require.Equal(t, c.HNSW.EfConstruction, hp.EfConstruction)
	require.Equal(t, c.HNSW.EfSearch, hp.EfSearch)
	require.Equal(t, c.HNSW.LayerZeroNeighborhoodExpansion, hp.LayerZeroNeighborhoodExpansion)
	require.Equal(t, c.HNSW.LevelEntryRatio, hp.LevelEntryRatio)
}

func TestHandleSetReplacesSnapshotAtomically(t *testing.T) {
	h := NewHandle(NewCollection("a", "/tmp/a"))
	first := h.Get()

	h.Set(NewCollection("b", "/tmp/b"))
	second := h.Get()

	require.Equal(t, "a", first.Name)
	require.Equal(t, "b", second.Name)
}
