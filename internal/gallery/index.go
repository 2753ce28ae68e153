package gallery

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW parameters for 512-dim face embeddings.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 100

	// searchMultiplier asks the graph for more neighbors than needed, since several
	// references of the same identity compete for the top slots.
	searchMultiplier = 3

	metadataVersion = 1
)

// ErrIndexNotFound is returned by Load when no saved index exists at the path.
var ErrIndexNotFound = errors.New("gallery index not found")

// Reference is one embedded gallery image.
type Reference struct {
	ID        int64
	Identity  string
	Path      string
	Hash      string
	Embedding []float32
}

// Neighbor is a reference found by a search.
type Neighbor struct {
	Reference *Reference
	Distance  float64
}

// IndexMetadata is written next to a saved index.
type IndexMetadata struct {
	Version   int
	SourceDir string
	BuildTime time.Time
	Refs      []Reference
}

// Index is an HNSW graph over reference embeddings.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	refs  map[int64]*Reference
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// NewIndex builds an index from refs. References without an embedding are skipped.
func NewIndex(refs []Reference) *Index {
	idx := &Index{refs: make(map[int64]*Reference, len(refs))}
	if len(refs) == 0 {
		return idx
	}

	g := newGraph()
	for i := range refs {
		ref := &refs[i]
		if len(ref.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(ref.ID, ref.Embedding))
		idx.refs[ref.ID] = ref
	}
	if len(idx.refs) > 0 {
		idx.graph = g
	}
	return idx
}

// Len returns the number of indexed references.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.refs)
}

// Search returns up to k nearest references, closest first.
func (x *Index) Search(query []float32, k int) []Neighbor {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || k <= 0 || len(query) == 0 {
		return nil
	}

	nodes := x.graph.Search(query, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		ref, ok := x.refs[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Reference: ref, Distance: CosineDistance(query, n.Value)})
	}
	return out
}

// References returns a copy of the indexed references.
func (x *Index) References() []Reference {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Reference, 0, len(x.refs))
	for _, r := range x.refs {
		out = append(out, *r)
	}
	return out
}

// Save writes the graph to path and its references to path+".refs".
func (x *Index) Save(path, sourceDir string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".refs")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create gallery index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export gallery graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close gallery index file: %w", err)
	}

	meta := IndexMetadata{
		Version:   metadataVersion,
		SourceDir: sourceDir,
		BuildTime: time.Now(),
		Refs:      make([]Reference, 0, len(x.refs)),
	}
	for _, r := range x.refs {
		meta.Refs = append(meta.Refs, *r)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("failed to encode gallery references: %w", err)
	}
	if err := os.WriteFile(path+".refs", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write gallery references: %w", err)
	}
	return nil
}

// LoadIndex reads an index written by Save.
func LoadIndex(path string) (*Index, IndexMetadata, error) {
	var meta IndexMetadata

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, meta, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}

	data, err := os.ReadFile(path + ".refs") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, meta, fmt.Errorf("failed to read gallery references: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&meta); err != nil {
		return nil, meta, fmt.Errorf("failed to decode gallery references: %w", err)
	}
	if meta.Version != metadataVersion {
		return nil, meta, fmt.Errorf("unsupported gallery index version %d", meta.Version)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to load gallery index: %w", err)
	}

	idx := &Index{graph: saved.Graph, refs: make(map[int64]*Reference, len(meta.Refs))}
	for i := range meta.Refs {
		idx.refs[meta.Refs[i].ID] = &meta.Refs[i]
	}
	if idx.graph != nil && idx.graph.Len() == 0 {
		idx.graph = nil
	}
	return idx, meta, nil
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - max(-1, min(1, similarity))
}
