// Package config defines the collection-level configuration snapshot
// the index handle holds, per Design Notes §9's "Global mutable
// config" resolution: a value composed once at collection-open time
// and read through small guarded accessors, rather than package-level
// mutable state. Grounded on friggdb.Config's nested yaml-tagged
// struct composing local.Config.
package config

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cosdata/vecgraph/internal/errs"
	"github.com/cosdata/vecgraph/internal/hnsw"
)

// Collection is one collection's on-disk layout and tuning knobs,
// mirroring friggdb.Config's shape: a top-level struct composing
// nested per-subsystem config.
type Collection struct {
	ID   uuid.UUID `yaml:"id"`
	Name string    `yaml:"name"`

	Dir                      string  `yaml:"dir"`
	BloomFilterFalsePositive float64 `yaml:"bloom-filter-false-positive"`
	CacheExpectedEntries     uint    `yaml:"cache-expected-entries"`

	Branch string `yaml:"branch"`

	HNSW HNSWConfig `yaml:"hnsw"`
}

// HNSWConfig mirrors internal/hnsw.HyperParams with yaml tags, decoded
// separately so the HNSW package itself stays free of a serialization
// dependency.
type HNSWConfig struct {
	NumLayers                     uint8   `yaml:"num_layers"`
	M                              int     `yaml:"m"`
	M0                             int     `yaml:"m0"`
	EfConstruction                 int     `yaml:"ef_construction"`
	EfSearch                       int     `yaml:"ef_search"`
	LayerZeroNeighborhoodExpansion int     `yaml:"layer_zero_neighborhood_expansion"`
	LevelEntryRatio                float64 `yaml:"level_entry_ratio"`
}

// ToHyperParams converts the yaml-decodable config shape into the
// internal/hnsw package's own HyperParams, keeping hnsw free of a
// serialization dependency.
func (h HNSWConfig) ToHyperParams() hnsw.HyperParams {
	return hnsw.HyperParams{
		NumLayers:                      h.NumLayers,
		M:                              h.M,
		M0:                             h.M0,
		EfConstruction:                 h.EfConstruction,
		EfSearch:                       h.EfSearch,
		LayerZeroNeighborhoodExpansion: h.LayerZeroNeighborhoodExpansion,
		LevelEntryRatio:                h.LevelEntryRatio,
	}
}

// NewCollection allocates a fresh collection identity and fills in the
// defaults friggdb.Config ships out of the box, the way
// friggdb-consuming callers only override the knobs they care about.
func NewCollection(name, dir string) *Collection {
	return &Collection{
		ID:                       uuid.New(),
		Name:                     name,
		Dir:                      dir,
		BloomFilterFalsePositive: 0.01,
		CacheExpectedEntries:     100000,
		Branch:                   "main",
		HNSW: HNSWConfig{
			NumLayers:      16,
			M:              16,
			M0:             32,
			EfConstruction: 100,
			EfSearch:       50,
			LevelEntryRatio: 4.0,
		},
	}
}

// Load reads a collection config snapshot from a yaml file on disk.
func Load(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.FsError{Path: path, Err: err}
	}
	var c Collection
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &errs.SerializationError{Reason: "config: " + err.Error()}
	}
	return &c, nil
}

// Save writes the collection config snapshot back to disk.
func (c *Collection) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return &errs.SerializationError{Reason: "config: " + err.Error()}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &errs.FsError{Path: path, Err: err}
	}
	return nil
}

// Handle is the guarded accessor friggdb's "reconfiguration before
// is_configured" pattern maps onto: readers take the current snapshot
// under RLock, and a reconfiguration swaps the whole snapshot under
// Lock rather than mutating fields in place, so no in-flight read ever
// observes a half-updated Collection.
type Handle struct {
	mu  sync.RWMutex
	cur *Collection
}

func NewHandle(initial *Collection) *Handle {
	return &Handle{cur: initial}
}

func (h *Handle) Get() *Collection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

func (h *Handle) Set(c *Collection) {
	h.mu.Lock()
	h.cur = c
	h.mu.Unlock()
}
