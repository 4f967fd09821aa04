package indexer

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	"github.com/ragline/ragline/internal/errors"
)

// Supported vector metrics.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
	MetricIP     = "ip"
)

// VectorConfig configures the vector indexer.
type VectorConfig struct {
	// DataDir persists graphs on disk. Empty keeps collections in memory.
	DataDir string
	// CollectionPrefix namespaces physical collection names per
	// deployment. Callers keep passing logical names.
	CollectionPrefix string
	M                int
	EfSearch         int
}

// VectorHit is one ANN neighbor.
type VectorHit struct {
	ID       string
	Content  string
	Distance float32
	Metadata map[string]any
}

// VectorIndexer manages one HNSW graph per collection. Deletions are
// lazy: the node stays in the graph but loses its id mapping, which
// sidesteps coder/hnsw breakage when removing the last node.
type VectorIndexer struct {
	mu          sync.RWMutex
	cfg         VectorConfig
	collections map[string]*vectorCollection
	closed      bool
}

var _ Indexer = (*VectorIndexer)(nil)

type vectorCollection struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	dimension int
	metric    string
	idMap     map[string]uint64
	keyMap    map[uint64]string
	nextKey   uint64
	payloads  map[string]vectorPayload
}

type vectorPayload struct {
	Content  string
	Metadata map[string]any
}

// vectorMeta is the gob-persisted sidecar next to the graph file.
type vectorMeta struct {
	Dimension int
	Metric    string
	IDMap     map[string]uint64
	NextKey   uint64
	Payloads  map[string]vectorPayload
}

// NewVectorIndexer creates a vector indexer.
func NewVectorIndexer(cfg VectorConfig) *VectorIndexer {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &VectorIndexer{
		cfg:         cfg,
		collections: make(map[string]*vectorCollection),
	}
}

// EnsureCollection creates the collection if missing, loading a
// persisted graph when one exists on disk. Calling it again with the
// same dimension is a no-op; a different dimension is rejected.
func (v *VectorIndexer) EnsureCollection(_ context.Context, name string, dimension int, _ string, metric string) error {
	if dimension < 1 {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("collection %q: dimension must be positive", name))
	}
	metric = normalizeMetric(metric)
	name = v.physical(name)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errors.Backend(errors.ErrCodeVectorBackend, "vector indexer is closed", nil)
	}

	if col, ok := v.collections[name]; ok {
		if col.dimension != dimension {
			return errors.Validation(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("collection %q exists with dimension %d, requested %d", name, col.dimension, dimension))
		}
		return nil
	}

	col := v.newCollection(dimension, metric)
	if v.cfg.DataDir != "" {
		loaded, err := v.loadCollection(name, col)
		if err != nil {
			return err
		}
		if loaded && col.dimension != dimension {
			return errors.Validation(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("collection %q persisted with dimension %d, requested %d", name, col.dimension, dimension))
		}
	}
	v.collections[name] = col
	return nil
}

func (v *VectorIndexer) newCollection(dimension int, metric string) *vectorCollection {
	graph := hnsw.NewGraph[uint64]()
	graph.M = v.cfg.M
	graph.EfSearch = v.cfg.EfSearch
	graph.Ml = 0.25

	switch metric {
	case MetricL2:
		graph.Distance = hnsw.EuclideanDistance
	case MetricIP:
		graph.Distance = negativeDotDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}

	return &vectorCollection{
		graph:     graph,
		dimension: dimension,
		metric:    metric,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		payloads:  make(map[string]vectorPayload),
	}
}

// Index adds a batch of records. Dimensions are validated up front so
// the batch is all-or-nothing.
func (v *VectorIndexer) Index(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := v.collection(collection)
	if err != nil {
		return err
	}

	col.mu.Lock()
	for _, r := range records {
		if len(r.Vector) != col.dimension {
			col.mu.Unlock()
			return errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("record %s: vector dimension %d, collection %q wants %d",
					r.ID, len(r.Vector), collection, col.dimension), nil)
		}
	}
	for _, r := range records {
		if oldKey, exists := col.idMap[r.ID]; exists {
			delete(col.keyMap, oldKey)
		}
		key := col.nextKey
		col.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if col.metric == MetricCosine {
			normalizeInPlace(vec)
		}
		col.graph.Add(hnsw.MakeNode(key, vec))
		col.idMap[r.ID] = key
		col.keyMap[key] = r.ID
		col.payloads[r.ID] = vectorPayload{Content: r.Content, Metadata: r.Metadata}
	}
	col.mu.Unlock()

	return v.persist(ctx, collection, col)
}

// Search returns up to k nearest neighbors for the query vector.
// Lazily deleted nodes are skipped.
func (v *VectorIndexer) Search(_ context.Context, collection string, query []float32, k int) ([]VectorHit, error) {
	col, err := v.collection(collection)
	if err != nil {
		return nil, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()

	if len(query) != col.dimension {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query dimension %d, collection %q wants %d", len(query), collection, col.dimension), nil)
	}
	if col.graph.Len() == 0 || k <= 0 {
		return []VectorHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if col.metric == MetricCosine {
		normalizeInPlace(q)
	}

	// Over-fetch to compensate for lazily deleted nodes.
	fetch := k + (col.graph.Len() - len(col.idMap))
	nodes := col.graph.Search(q, fetch)

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, live := col.keyMap[node.Key]
		if !live {
			continue
		}
		payload := col.payloads[id]
		hits = append(hits, VectorHit{
			ID:       id,
			Content:  payload.Content,
			Distance: col.graph.Distance(q, node.Value),
			Metadata: payload.Metadata,
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes ids from the collection mappings.
func (v *VectorIndexer) Delete(ctx context.Context, collection string, ids []string) error {
	col, err := v.collection(collection)
	if err != nil {
		return err
	}

	col.mu.Lock()
	for _, id := range ids {
		if key, exists := col.idMap[id]; exists {
			delete(col.keyMap, key)
			delete(col.idMap, id)
			delete(col.payloads, id)
		}
	}
	col.mu.Unlock()

	return v.persist(ctx, collection, col)
}

// Exists reports whether the collection is known, checking disk when a
// data directory is configured.
func (v *VectorIndexer) Exists(_ context.Context, collection string) (bool, error) {
	collection = v.physical(collection)
	v.mu.RLock()
	_, ok := v.collections[collection]
	v.mu.RUnlock()
	if ok {
		return true, nil
	}
	if v.cfg.DataDir == "" {
		return false, nil
	}
	_, err := os.Stat(v.graphPath(collection))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Backend(errors.ErrCodeVectorBackend, "stat collection", err)
}

// Count reports live vectors in a collection.
func (v *VectorIndexer) Count(collection string) int {
	col, err := v.collection(collection)
	if err != nil {
		return 0
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	return len(col.idMap)
}

// Metric returns the collection's distance metric.
func (v *VectorIndexer) Metric(collection string) string {
	col, err := v.collection(collection)
	if err != nil {
		return MetricCosine
	}
	return col.metric
}

// Close releases all collections. Persisted state stays on disk.
func (v *VectorIndexer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.collections = make(map[string]*vectorCollection)
	return nil
}

// collection resolves a logical name to its live collection.
func (v *VectorIndexer) collection(name string) (*vectorCollection, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, errors.Backend(errors.ErrCodeVectorBackend, "vector indexer is closed", nil)
	}
	col, ok := v.collections[v.physical(name)]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeCollectionNotFound, "collection", name)
	}
	return col, nil
}

func (v *VectorIndexer) physical(name string) string {
	return CollectionName(v.cfg.CollectionPrefix, name)
}

func (v *VectorIndexer) graphPath(collection string) string {
	return filepath.Join(v.cfg.DataDir, collection+".graph")
}

// persist writes the graph and its metadata sidecar atomically
// (temp + rename) under a flock guard, when persistence is enabled.
func (v *VectorIndexer) persist(_ context.Context, collection string, col *vectorCollection) error {
	if v.cfg.DataDir == "" {
		return nil
	}
	collection = v.physical(collection)
	if err := os.MkdirAll(v.cfg.DataDir, 0o755); err != nil {
		return errors.Backend(errors.ErrCodeVectorBackend, "create data dir", err)
	}

	lock := flock.New(v.graphPath(collection) + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Backend(errors.ErrCodeVectorBackend, "lock collection", err)
	}
	defer lock.Unlock()

	col.mu.RLock()
	defer col.mu.RUnlock()

	path := v.graphPath(collection)
	if err := writeAtomic(path, func(f *os.File) error {
		return col.graph.Export(f)
	}); err != nil {
		return errors.Backend(errors.ErrCodeVectorBackend, "export graph", err)
	}

	meta := vectorMeta{
		Dimension: col.dimension,
		Metric:    col.metric,
		IDMap:     col.idMap,
		NextKey:   col.nextKey,
		Payloads:  col.payloads,
	}
	if err := writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return errors.Backend(errors.ErrCodeVectorBackend, "save metadata", err)
	}
	return nil
}

// loadCollection restores a persisted graph, returning false when no
// persisted state exists.
func (v *VectorIndexer) loadCollection(name string, col *vectorCollection) (bool, error) {
	path := v.graphPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return false, errors.Backend(errors.ErrCodeVectorBackend, "lock collection", err)
	}
	defer lock.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return false, errors.Backend(errors.ErrCodeVectorBackend, "open metadata", err)
	}
	defer metaFile.Close()

	var meta vectorMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return false, errors.Backend(errors.ErrCodeVectorBackend, "decode metadata", err)
	}
	col.dimension = meta.Dimension
	col.metric = meta.Metric
	col.idMap = meta.IDMap
	col.nextKey = meta.NextKey
	col.payloads = meta.Payloads
	col.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		col.keyMap[key] = id
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return false, errors.Backend(errors.ErrCodeVectorBackend, "open graph", err)
	}
	defer graphFile.Close()

	// Import requires an io.ByteReader.
	if err := col.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return false, errors.Backend(errors.ErrCodeVectorBackend, "import graph", err)
	}
	return true, nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalizeMetric(metric string) string {
	switch metric {
	case MetricL2, MetricIP:
		return metric
	case "cos", MetricCosine, "":
		return MetricCosine
	default:
		return MetricCosine
	}
}

// negativeDotDistance orders inner-product search: larger dot products
// sort first as smaller distances.
func negativeDotDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
