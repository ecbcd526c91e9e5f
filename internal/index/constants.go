package index

// Default HNSW tuning, carried over from the teacher's own
// internal/database/constants.go values (HNSWMaxNeighbors, HNSWEfSearch,
// HNSWEfConstruction matched the spec's operating point exactly) plus the
// capacity ceiling the teacher's photo/face indexes never needed.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 100
	DefaultMaxElements    = 1_100_000

	// persistAfterAdds controls how often AddUser triggers an asynchronous
	// persist; mirrors the teacher's GobSaveInterval idea, tuned to the
	// spec's "every 100 successful adds" rule.
	persistAfterAdds = 100

	// HNSWSearchMultiplier over-fetches from the graph before filtering out
	// tombstoned labels, matching the teacher's HNSWSearchMultiplier used in
	// postgres/faces.go and postgres/embeddings.go (searchK := k * HNSWSearchMultiplier).
	HNSWSearchMultiplier = 3
)
