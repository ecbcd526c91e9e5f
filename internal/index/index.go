// Package index implements the hierarchical navigable small-world (HNSW)
// vector index over 128-D face descriptors: insert, logical delete, update,
// and k-nearest-neighbor search with on-disk persistence.
//
// It is grounded on the teacher's internal/database/hnsw_index.go, with the
// distance metric swapped from cosine to squared Euclidean (the spec treats
// descriptors as points in L2 space, not as normalized vectors), int64 photo
// IDs replaced by a label/userId bijection, and the teacher's plain
// os.Create persistence replaced with write-then-rename for crash safety.
package index

import (
	"fmt"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facerecog/internal/apierr"
	"github.com/kozaktomas/facerecog/internal/descriptor"
)

// Entry is the metadata the index keeps for every live label.
type Entry struct {
	Label       uint64
	UserID      uint64
	ExternalID  string
	DisplayName string
	ClientRef   string
}

// Config tunes the graph's build and search parameters.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	MaxElements    uint64
	IndexPath      string
	MetaPath       string
}

// DefaultConfig returns the spec's operating point.
func DefaultConfig(indexPath, metaPath string) Config {
	return Config{
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		MaxElements:    DefaultMaxElements,
		IndexPath:      indexPath,
		MetaPath:       metaPath,
	}
}

// Result is a single search hit.
type Result struct {
	UserID      uint64
	ExternalID  string
	DisplayName string
	ClientRef   string
	Distance    float64 // Euclidean
	Similarity  int
}

// Stats summarizes the index's parameters and counters for /recognition/stats.
type Stats struct {
	Size           uint64 `json:"size"`
	TotalVectors   uint64 `json:"totalVectors"`
	M              int    `json:"m"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
	MaxElements    uint64 `json:"maxElements"`
	LastRebuildAt  string `json:"lastRebuildAt,omitempty"`
}

// Index is the single-writer/multi-reader HNSW wrapper described in
// the spec's "vector index" component.
type Index struct {
	mu sync.RWMutex

	cfg Config

	graph *hnsw.Graph[uint64]

	labelToMeta map[uint64]*Entry
	userToLabel map[uint64]uint64
	nextLabel   uint64

	totalVectors  uint64
	addsSincePersist int
	lastRebuildAt *time.Time

	initialized bool
}

// RebuildInput is the minimal shape the store needs to feed Rebuild.
type RebuildInput struct {
	UserID      uint64
	ExternalID  string
	DisplayName string
	ClientRef   string
	Descriptor  descriptor.Descriptor
}

// New constructs an Index with the given configuration. It must be
// initialized with Init before use.
func New(cfg Config) *Index {
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	if cfg.MaxElements == 0 {
		cfg.MaxElements = DefaultMaxElements
	}
	return &Index{
		cfg:         cfg,
		labelToMeta: make(map[uint64]*Entry),
		userToLabel: make(map[uint64]uint64),
	}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// The graph library persists a graph's distance function by registered
// name, so squaredL2 must be registered before Export/Import can use it.
func init() {
	hnsw.RegisterDistanceFunc("squared_l2", squaredL2)
}

func (idx *Index) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.M = idx.cfg.M
	g.Ml = 1.0 / float64(idx.cfg.M)
	g.EfSearch = idx.cfg.EfSearch
	g.Distance = squaredL2
	return g
}

// Init loads the persisted graph and metadata if present, otherwise starts
// empty. A corrupt index is logged and discarded rather than crashing the
// service. Idempotent.
func (idx *Index) Init() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.initialized {
		return nil
	}

	idx.graph = idx.newGraph()

	if idx.cfg.IndexPath != "" {
		if saved, err := hnsw.LoadSavedGraph[uint64](idx.cfg.IndexPath); err == nil {
			// SavedGraph embeds *Graph[K]; the loaded graph is writable in
			// place, so later AddUser/UpdateUser calls extend it directly.
			// A missing or empty file loads as the library's default graph
			// (not squared L2), so the fresh graph above is kept instead.
			if saved.Len() > 0 {
				idx.graph = saved.Graph
				idx.graph.EfSearch = idx.cfg.EfSearch
			}
		} else {
			fmt.Printf("index: failed to load %s, starting empty: %v\n", idx.cfg.IndexPath, err)
		}
	}

	if idx.cfg.MetaPath != "" {
		meta, err := loadMeta(idx.cfg.MetaPath)
		if err != nil {
			fmt.Printf("index: failed to load metadata %s, starting empty: %v\n", idx.cfg.MetaPath, err)
		} else {
			idx.nextLabel = meta.NextLabel
			idx.lastRebuildAt = meta.LastRebuildAt
			idx.labelToMeta = meta.labelToMeta()
			idx.userToLabel = meta.userToLabel()
			idx.totalVectors = uint64(len(idx.userToLabel))
		}
	}

	idx.initialized = true
	return nil
}

func (idx *Index) requireInit() error {
	if !idx.initialized {
		return apierr.New(apierr.NotInitialized, "vector index not initialized")
	}
	return nil
}

// AddUser inserts a new descriptor for userID, or delegates to UpdateUser if
// the user already has a live label.
func (idx *Index) AddUser(userID uint64, desc descriptor.Descriptor, meta Entry) error {
	idx.mu.Lock()
	if err := idx.requireInitLocked(); err != nil {
		idx.mu.Unlock()
		return err
	}
	if _, exists := idx.userToLabel[userID]; exists {
		idx.mu.Unlock()
		return idx.UpdateUser(userID, desc, meta)
	}
	if idx.totalVectors >= idx.cfg.MaxElements {
		idx.mu.Unlock()
		return apierr.New(apierr.CapacityExceeded, "vector index is at capacity")
	}

	label := idx.nextLabel
	idx.nextLabel++

	meta.Label = label
	meta.UserID = userID
	idx.graph.Add(hnsw.MakeNode(label, []float32(desc)))
	idx.labelToMeta[label] = &meta
	idx.userToLabel[userID] = label
	idx.totalVectors++
	idx.addsSincePersist++

	shouldPersist := idx.addsSincePersist >= persistAfterAdds
	if shouldPersist {
		idx.addsSincePersist = 0
	}
	idx.mu.Unlock()

	if shouldPersist {
		go func() {
			if err := idx.Save(); err != nil {
				fmt.Printf("index: background persist failed: %v\n", err)
			}
		}()
	}
	return nil
}

func (idx *Index) requireInitLocked() error {
	if !idx.initialized {
		return apierr.New(apierr.NotInitialized, "vector index not initialized")
	}
	return nil
}

// UpdateUser replaces userID's descriptor: the old label is mark-deleted
// (its labelToMeta entry removed, leaving the point physically present but
// unreachable from search) and a new label is allocated for the new point.
func (idx *Index) UpdateUser(userID uint64, desc descriptor.Descriptor, meta Entry) error {
	idx.mu.Lock()
	if err := idx.requireInitLocked(); err != nil {
		idx.mu.Unlock()
		return err
	}

	oldLabel, exists := idx.userToLabel[userID]
	if !exists {
		idx.mu.Unlock()
		return idx.AddUser(userID, desc, meta)
	}

	if idx.totalVectors >= idx.cfg.MaxElements {
		idx.mu.Unlock()
		return apierr.New(apierr.CapacityExceeded, "vector index is at capacity")
	}

	newLabel := idx.nextLabel
	idx.nextLabel++

	meta.Label = newLabel
	meta.UserID = userID
	idx.graph.Add(hnsw.MakeNode(newLabel, []float32(desc)))
	idx.labelToMeta[newLabel] = &meta
	idx.userToLabel[userID] = newLabel
	delete(idx.labelToMeta, oldLabel)
	idx.addsSincePersist++

	shouldPersist := idx.addsSincePersist >= persistAfterAdds
	if shouldPersist {
		idx.addsSincePersist = 0
	}
	idx.mu.Unlock()

	if shouldPersist {
		go func() {
			if err := idx.Save(); err != nil {
				fmt.Printf("index: background persist failed: %v\n", err)
			}
		}()
	}
	return nil
}

// RemoveUser mark-deletes userID's label. A no-op if the user has none.
func (idx *Index) RemoveUser(userID uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.requireInitLocked(); err != nil {
		return err
	}

	label, exists := idx.userToLabel[userID]
	if !exists {
		return nil
	}

	delete(idx.labelToMeta, label)
	delete(idx.userToLabel, userID)
	if idx.totalVectors > 0 {
		idx.totalVectors--
	}
	return nil
}

// Search returns up to k neighbors of query whose Euclidean distance is at
// most thresholdL2 (already a Euclidean, not squared, value), sorted
// ascending by distance, ties broken by label.
func (idx *Index) Search(query descriptor.Descriptor, k int, threshold float64) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.requireInitLocked(); err != nil {
		return nil, err
	}
	if idx.totalVectors == 0 {
		return nil, nil
	}

	want := k
	if uint64(want) > idx.totalVectors {
		want = int(idx.totalVectors)
	}
	if want <= 0 {
		return nil, nil
	}

	// RemoveUser tombstones labels without removing them from the
	// underlying graph, so over-fetch before filtering or a run of
	// deleted labels among the raw top-k can starve the live result
	// count below k. totalVectors only counts live labels, so it is not
	// a valid upper bound on the raw graph search size here.
	searchK := want * HNSWSearchMultiplier

	neighbors := idx.graph.Search([]float32(query), searchK)
	threshSq := threshold * threshold

	results := make([]Result, 0, want)
	for _, n := range neighbors {
		meta, ok := idx.labelToMeta[n.Key]
		if !ok {
			continue // marked-deleted
		}
		d2 := float64(squaredL2([]float32(query), n.Value))
		if d2 > threshSq {
			continue
		}
		dist := descriptor.EuclideanL2([]float32(query), n.Value)
		results = append(results, Result{
			UserID:      meta.UserID,
			ExternalID:  meta.ExternalID,
			DisplayName: meta.DisplayName,
			ClientRef:   meta.ClientRef,
			Distance:    dist,
			Similarity:  descriptor.Similarity(dist),
		})
	}

	sortResults(results, idx.labelOf)
	if len(results) > want {
		results = results[:want]
	}
	return results, nil
}

func (idx *Index) labelOf(userID uint64) uint64 {
	return idx.userToLabel[userID]
}

func sortResults(results []Result, labelOf func(uint64) uint64) {
	// Insertion sort is fine: k is small (≤5 typically, capped by
	// totalVectors otherwise), and this keeps the tie-break explicit
	// (ascending distance, then ascending label) without pulling in
	// sort.Slice's interface overhead for a handful of elements.
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && less(results[j], results[j-1], labelOf) {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}
}

func less(a, b Result, labelOf func(uint64) uint64) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return labelOf(a.UserID) < labelOf(b.UserID)
}

// Rebuild discards all marks and reinserts every user from scratch,
// stamping lastRebuildAt and persisting synchronously.
func (idx *Index) Rebuild(users []RebuildInput) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	g := idx.newGraph()
	labelToMeta := make(map[uint64]*Entry, len(users))
	userToLabel := make(map[uint64]uint64, len(users))
	var nextLabel uint64

	for _, u := range users {
		if err := u.Descriptor.Validate(); err != nil {
			fmt.Printf("index: rebuild skipping user %d: %v\n", u.UserID, err)
			continue
		}
		label := nextLabel
		nextLabel++
		g.Add(hnsw.MakeNode(label, []float32(u.Descriptor)))
		labelToMeta[label] = &Entry{
			Label:       label,
			UserID:      u.UserID,
			ExternalID:  u.ExternalID,
			DisplayName: u.DisplayName,
			ClientRef:   u.ClientRef,
		}
		userToLabel[u.UserID] = label
	}

	idx.graph = g
	idx.labelToMeta = labelToMeta
	idx.userToLabel = userToLabel
	idx.nextLabel = nextLabel
	idx.totalVectors = uint64(len(userToLabel))
	idx.addsSincePersist = 0
	now := time.Now().UTC()
	idx.lastRebuildAt = &now
	idx.initialized = true

	return idx.saveLocked()
}

// Size returns the number of currently-live labels.
func (idx *Index) Size() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalVectors
}

// Stats exports the index's parameters and counters.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := Stats{
		Size:           idx.totalVectors,
		TotalVectors:   idx.totalVectors,
		M:              idx.cfg.M,
		EfConstruction: idx.cfg.EfConstruction,
		EfSearch:       idx.cfg.EfSearch,
		MaxElements:    idx.cfg.MaxElements,
	}
	if idx.lastRebuildAt != nil {
		s.LastRebuildAt = idx.lastRebuildAt.Format(time.RFC3339)
	}
	return s
}

// Save persists the graph and metadata atomically (write-then-rename for
// both files). Errors are returned, not swallowed — callers (lifecycle,
// rebuild) decide whether to log or propagate.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveLocked()
}
