package domain

import "time"

// PageRecord is the text of one physical PDF page.
type PageRecord struct {
	Text       string            `json:"text"`
	SourceFile string            `json:"source_file"` // basename of the PDF
	PageNumber int               `json:"page"`        // 1-based
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Chunk is a bounded fragment of a single page; the unit of embedding and retrieval.
type Chunk struct {
	ID         string `json:"id"          db:"id"`
	Text       string `json:"text"        db:"content"`
	SourceFile string `json:"source_file" db:"source_file"`
	PageNumber int    `json:"page"        db:"page_number"`
	ChunkIndex int    `json:"chunk_index" db:"chunk_index"` // position within its page
}

// DocumentSummary describes a PDF in the managed directory.
type DocumentSummary struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	SizeMB    float64   `json:"size_mb"`
	ModTime   time.Time `json:"modified_at"`
}
