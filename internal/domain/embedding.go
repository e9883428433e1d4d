package domain

import "time"

// EmbeddedChunk pairs a chunk with its vector. Every entry of one index
// shares the same dimension.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-" db:"vector"`
}

// ScoredChunk is returned by similarity search.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// QueryResult is ordered by descending similarity.
type QueryResult []ScoredChunk

// IndexInfo describes a persisted vector index.
type IndexInfo struct {
	Backend    string    `json:"backend"`
	Generation string    `json:"generation"` // changes on every rebuild
	Count      int       `json:"count"`
	Dimension  int       `json:"dimension"`
	BuiltAt    time.Time `json:"built_at"`
}
