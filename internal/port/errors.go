package port

import "errors"

// Sentinel errors used across ports. Adapters wrap them with context using %w.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrIngestion          = errors.New("ingestion error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrEmptyCorpus        = errors.New("no documents to index")
	ErrDuplicateDocument  = errors.New("document already exists")
	ErrNotInitialized     = errors.New("system not initialized")
	ErrIndexNotFound      = errors.New("vector index not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrEmptyQuestion      = errors.New("empty question")
)

// Error kinds reported to outward callers.
const (
	KindConfiguration      = "configuration"
	KindIngestion          = "ingestion"
	KindBackendUnavailable = "backend_unavailable"
	KindEmptyCorpus        = "empty_corpus"
	KindDuplicateDocument  = "duplicate_document"
	KindNotInitialized     = "not_initialized"
	KindIndexNotFound      = "index_not_found"
	KindDimensionMismatch  = "dimension_mismatch"
	KindInvalidDocument    = "invalid_document"
	KindEmptyQuestion      = "empty_question"
	KindInternal           = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrConfiguration, KindConfiguration},
	{ErrBackendUnavailable, KindBackendUnavailable},
	{ErrEmptyCorpus, KindEmptyCorpus},
	{ErrDuplicateDocument, KindDuplicateDocument},
	{ErrNotInitialized, KindNotInitialized},
	{ErrIndexNotFound, KindIndexNotFound},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrInvalidDocument, KindInvalidDocument},
	{ErrEmptyQuestion, KindEmptyQuestion},
	{ErrIngestion, KindIngestion},
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
